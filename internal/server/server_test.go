package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/protocol"
)

const planYAML = `
board: 9
source: computer
route:
  - {num: 1, lat: 55.75, lon: 37.61, alt: 120}
  - {num: 2, lat: 55.76, lon: 37.63, alt: 120}
speed: 20
`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	common.SetLogOutput(io.Discard)
	s := NewServer(Options{Now: func() time.Time { return time.Unix(1700000000, 0) }})
	ts := httptest.NewServer(NewRouter(s))
	t.Cleanup(func() {
		s.Close()
		ts.Close()
	})
	return s, ts
}

func pack(t *testing.T, pkg protocol.Package) []byte {
	t.Helper()
	b, err := protocol.Pack(pkg)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return b
}

func telemetryPackage(board uint32, tm protocol.Telemetry) protocol.Package {
	return protocol.Package{
		Header: protocol.Header{Source: protocol.SourceMGP, Type: protocol.TypeTelemetry, BoardNumber: board},
		Pairs:  tm.Pairs(),
	}
}

func TestDecodeEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	good := pack(t, telemetryPackage(3, protocol.Telemetry{Speed: 21, Course: 90}))
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF
	unknown := pack(t, protocol.Package{Header: protocol.Header{Source: protocol.SourceMGP, Type: protocol.TypeAreaInspectionAFS}})

	var body []byte
	body = append(body, 0x00, 0x01, 0x02)
	body = append(body, bad...)
	body = append(body, good...)
	body = append(body, unknown...)

	resp, err := http.Post(ts.URL+"/decode", "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /decode: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res struct {
		Bytes  int `json:"bytes"`
		Frames []struct {
			Offset int             `json:"offset"`
			Header protocol.Header `json:"header"`
			Record json.RawMessage `json:"record"`
			Pairs  []protocol.Pair `json:"pairs"`
		} `json:"frames"`
		Rejects []struct {
			Offset  int    `json:"offset"`
			Skipped int    `json:"skipped"`
			Status  string `json:"status"`
		} `json:"rejects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Bytes != len(body) || len(res.Frames) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Rejects) != 2 || res.Rejects[0].Status != "WrongHeaderId" || res.Rejects[1].Status != "WrongCrc" {
		t.Fatalf("rejects = %+v", res.Rejects)
	}
	if res.Rejects[1].Offset != 3 || res.Rejects[1].Skipped != len(bad) {
		t.Fatalf("crc reject = %+v", res.Rejects[1])
	}
	if res.Frames[0].Offset != 3+len(bad) || res.Frames[0].Header.BoardNumber != 3 {
		t.Fatalf("frame 0 = %+v", res.Frames[0])
	}
	var tm protocol.Telemetry
	if err := json.Unmarshal(res.Frames[0].Record, &tm); err != nil || tm.Speed != 21 || tm.Course != 90 {
		t.Fatalf("telemetry record = %s (%v)", res.Frames[0].Record, err)
	}
	if res.Frames[1].Record != nil || res.Frames[1].Header.Type != protocol.TypeAreaInspectionAFS {
		t.Fatalf("frame without codec = %+v", res.Frames[1])
	}
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestDecodeRecordsSpan(t *testing.T) {
	common.SetLogOutput(io.Discard)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	s := NewServer(Options{TracerProvider: tp})
	defer s.Close()

	good := pack(t, telemetryPackage(3, protocol.Telemetry{Speed: 21}))
	body := append(append([]byte{0x00, 0x01}, good...), good...)
	req := httptest.NewRequest(http.MethodPost, "/decode", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	NewRouter(s).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	spans := sr.Ended()
	if len(spans) != 1 || spans[0].Name() != "server.decode" {
		t.Fatalf("spans = %v", spans)
	}
	attrs := spanAttrs(spans[0])
	if got := attrs["decode.bytes"].AsInt64(); got != int64(len(body)) {
		t.Fatalf("decode.bytes = %d", got)
	}
	if got := attrs["decode.frames"].AsInt64(); got != 2 {
		t.Fatalf("decode.frames = %d", got)
	}
	if got := attrs["decode.rejects"].AsInt64(); got != 1 {
		t.Fatalf("decode.rejects = %d", got)
	}
}

func TestDecodeNDJSON(t *testing.T) {
	_, ts := newTestServer(t)
	var body []byte
	for board := uint32(1); board <= 3; board++ {
		body = append(body, pack(t, telemetryPackage(board, protocol.Telemetry{Speed: 20}))...)
	}
	resp, err := http.Post(ts.URL+"/decode?format=ndjson", "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type = %q", ct)
	}
	var lines []map[string]any
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 4 {
		t.Fatalf("lines = %d", len(lines))
	}
	last := lines[3]
	if last["type"] != "summary" || last["frames"] != float64(3) {
		t.Fatalf("summary = %v", last)
	}
}

func TestEncodeEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/encode", "application/yaml", strings.NewReader(planYAML))
	if err != nil {
		t.Fatalf("POST /encode: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}
	frames, _ := io.ReadAll(resp.Body)
	pkgs, st := protocol.UnpackAll(frames)
	if st != protocol.StatusSuccess || len(pkgs) != 2 {
		t.Fatalf("frames = %d status = %s", len(pkgs), st)
	}
	if pkgs[0].Header.Type != protocol.TypeFlightByPoints || pkgs[0].Header.BoardNumber != 9 {
		t.Fatalf("first frame = %s", pkgs[0].Header)
	}
	if resp.Header.Get("X-Frame-Count") != "2" || len(resp.Header.Get("X-Frame-Digest")) != 64 {
		t.Fatalf("headers = %v", resp.Header)
	}

	resp, err = http.Post(ts.URL+"/encode?format=pdf", "application/yaml", strings.NewReader(planYAML))
	if err != nil {
		t.Fatalf("POST /encode pdf: %v", err)
	}
	pdf, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("briefing is not a PDF")
	}

	resp, err = http.Post(ts.URL+"/encode", "application/yaml", strings.NewReader("board: 1\nsource: computer\n"))
	if err != nil {
		t.Fatalf("POST /encode empty: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty plan status = %d", resp.StatusCode)
	}
}

func TestCourseEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	tests := []struct {
		query  string
		status int
		course int
	}{
		{"lat=0.000898&lon=0&clat=0&clon=0&radius=100", http.StatusOK, 118},
		{"lat=0.000898&lon=0&clat=0&clon=0&radius=100&dir=ccw", http.StatusOK, 241},
		{"lat=0&lon=0&clat=0&clon=0&radius=0", http.StatusBadRequest, 0},
		{"lat=x&lon=0&clat=0&clon=0&radius=100", http.StatusBadRequest, 0},
		{"lat=0&lon=0&clat=0&clon=0&radius=100&dir=up", http.StatusBadRequest, 0},
		{"lat=NaN&lon=0&clat=0&clon=0&radius=100", http.StatusBadRequest, 0},
		{"lat=0&lon=0&clat=0&clon=181&radius=100", http.StatusBadRequest, 0},
		{"lat=0&lon=0&clat=0&clon=0&radius=NaN", http.StatusBadRequest, 0},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/course?" + tc.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			if tc.status != http.StatusOK {
				return
			}
			var cr courseResponse
			if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if cr.Course != tc.course || cr.Distance != 99 {
				t.Fatalf("course = %+v, want %d", cr, tc.course)
			}
		})
	}
}

func TestTelemetryEndpoints(t *testing.T) {
	s, ts := newTestServer(t)
	s.HandlePackage(telemetryPackage(7, protocol.Telemetry{Speed: 30, CurrentPoint: 2}))
	s.HandlePackage(telemetryPackage(2, protocol.Telemetry{Speed: 25}))
	s.HandlePackage(telemetryPackage(7, protocol.Telemetry{Speed: 31, CurrentPoint: 3}))
	// commands are not telemetry
	s.HandlePackage(protocol.Package{Header: protocol.Header{Source: protocol.SourceComputer, Type: protocol.TypeReturnToHome, BoardNumber: 4}})

	resp, err := http.Get(ts.URL + "/telemetry")
	if err != nil {
		t.Fatalf("GET /telemetry: %v", err)
	}
	var all []BoardTelemetry
	json.NewDecoder(resp.Body).Decode(&all)
	resp.Body.Close()
	if len(all) != 2 || all[0].Board != 2 || all[1].Telemetry.CurrentPoint != 3 {
		t.Fatalf("telemetry = %+v", all)
	}

	resp, err = http.Get(ts.URL + "/telemetry/7")
	if err != nil {
		t.Fatalf("GET /telemetry/7: %v", err)
	}
	var one BoardTelemetry
	json.NewDecoder(resp.Body).Decode(&one)
	resp.Body.Close()
	if one.Telemetry.Speed != 31 || !one.Received.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("board 7 = %+v", one)
	}

	for path, want := range map[string]int{"/telemetry/4": http.StatusNotFound, "/telemetry/x": http.StatusBadRequest} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s status = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, ts := newTestServer(t)
	s.HandlePackage(telemetryPackage(1, protocol.Telemetry{}))

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var health map[string]any
	json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if health["status"] != "ok" || health["boards"] != float64(1) {
		t.Fatalf("health = %v", health)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`gflink_link_frames_total{source="mgp",type="telemetry"} 1`,
		`gflink_http_requests_total{method="GET",route="/healthz",status="200"} 1`,
		`gflink_link_boards 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestStreamBroadcastsFrames(t *testing.T) {
	s, ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.HandlePackage(telemetryPackage(5, protocol.Telemetry{Speed: 17}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f struct {
		Header protocol.Header    `json:"header"`
		Record protocol.Telemetry `json:"record"`
	}
	if err := json.Unmarshal(msg, &f); err != nil {
		t.Fatalf("message %s: %v", msg, err)
	}
	if f.Header.BoardNumber != 5 || f.Record.Speed != 17 {
		t.Fatalf("frame = %+v", f)
	}

	s.Close()
	if s.hub.count() != 0 {
		t.Fatalf("clients after close = %d", s.hub.count())
	}
}
