package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/gflink/internal/geo"
	"example.com/gflink/internal/mission"
	"example.com/gflink/internal/protocol"
	"example.com/gflink/internal/report"
)

// DecodedFrame is one frame of a /decode response. Record is set when the
// source/type pair has a record codec, Pairs otherwise.
type DecodedFrame struct {
	Offset int             `json:"offset"`
	Size   int             `json:"size"`
	Header protocol.Header `json:"header"`
	Record protocol.Record `json:"record,omitempty"`
	Pairs  []protocol.Pair `json:"pairs,omitempty"`
}

// Rejection is a byte range the decoder skipped.
type Rejection struct {
	Offset  int                   `json:"offset"`
	Skipped int                   `json:"skipped"`
	Status  protocol.UnpackStatus `json:"status"`
}

type DecodeResult struct {
	Bytes   int            `json:"bytes"`
	Frames  []DecodedFrame `json:"frames"`
	Rejects []Rejection    `json:"rejects,omitempty"`
}

// decodeBuffer decodes every frame in buf. After a bad frame it resumes at
// the next frame magic.
func decodeBuffer(buf []byte, emit func(DecodedFrame) error) ([]Rejection, error) {
	var rejects []Rejection
	for off := 0; off < len(buf); {
		pkg, next, st := protocol.Unpack(buf, off)
		if st != protocol.StatusSuccess {
			resume := len(buf)
			if i := bytes.Index(buf[off+1:], protocol.Magic[:]); i >= 0 {
				resume = off + 1 + i
			}
			rejects = append(rejects, Rejection{Offset: off, Skipped: resume - off, Status: st})
			off = resume
			continue
		}
		f := DecodedFrame{Offset: off, Size: next - off, Header: pkg.Header}
		if rec, err := protocol.DecodeRecord(pkg); err == nil {
			f.Record = rec
		} else {
			f.Pairs = pkg.Pairs
		}
		if err := emit(f); err != nil {
			return rejects, err
		}
		off = next
	}
	return rejects, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "server.decode", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	r = r.WithContext(ctx)

	body, ok := readBody(w, r)
	if !ok {
		span.SetStatus(codes.Error, "read body")
		return
	}
	span.SetAttributes(attribute.Int("decode.bytes", len(body)))

	var (
		rejects []Rejection
		frames  int
		err     error
	)
	if r.URL.Query().Get("format") == "ndjson" {
		writer := NewNDJSONWriter(w)
		w.Header().Set("Content-Type", "application/x-ndjson")
		rejects, err = decodeBuffer(body, func(f DecodedFrame) error {
			frames++
			return writer.WriteFrame(f)
		})
		if err == nil {
			err = writer.WriteObject(map[string]any{
				"type":    "summary",
				"bytes":   len(body),
				"frames":  frames,
				"rejects": rejects,
			})
		}
	} else {
		res := DecodeResult{Bytes: len(body), Frames: []DecodedFrame{}}
		res.Rejects, err = decodeBuffer(body, func(f DecodedFrame) error {
			res.Frames = append(res.Frames, f)
			return nil
		})
		rejects, frames = res.Rejects, len(res.Frames)
		if err == nil {
			writeJSON(w, http.StatusOK, res)
		}
	}

	s.metrics.decodeFrames.Add(float64(frames))
	for _, rj := range rejects {
		s.metrics.decodeRejects.WithLabelValues(rj.Status.String()).Inc()
	}
	span.SetAttributes(
		attribute.Int("decode.frames", frames),
		attribute.Int("decode.rejects", len(rejects)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// handleEncode turns a YAML mission plan into packed frames. With
// ?format=pdf the mission briefing is returned instead.
func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "server.encode", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	plan, err := mission.Parse(body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, fmt.Sprintf("mission: %v", err), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.Int64("mission.board", int64(plan.Board)))

	if r.URL.Query().Get("format") == "pdf" {
		var buf bytes.Buffer
		if err := report.WriteMissionPDF(plan, &buf); err != nil {
			span.SetStatus(codes.Error, err.Error())
			http.Error(w, fmt.Sprintf("briefing: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="mission.pdf"`)
		w.Write(buf.Bytes())
		return
	}

	frames, err := plan.Encode()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(w, fmt.Sprintf("encode: %v", err), http.StatusUnprocessableEntity)
		return
	}
	span.SetAttributes(attribute.Int("encode.bytes", len(frames)))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(frames)))
	w.Header().Set("X-Frame-Digest", report.FrameDigest(frames))
	w.Header().Set("X-Frame-Count", strconv.Itoa(len(plan.Elements())))
	w.Write(frames)
}

type courseResponse struct {
	Course    int    `json:"course"`
	Direction string `json:"direction"`
	Distance  int    `json:"distance"`
}

func (s *Server) handleCourse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		vals [5]float64
		keys = [5]string{"lat", "lon", "clat", "clon", "radius"}
	)
	for i, k := range keys {
		v, err := strconv.ParseFloat(q.Get(k), 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("%s: %v", k, err), http.StatusBadRequest)
			return
		}
		vals[i] = v
	}
	pos := geo.Coords{Lat: vals[0], Lon: vals[1]}
	center := geo.Coords{Lat: vals[2], Lon: vals[3]}
	if !pos.ValidDeg() || !center.ValidDeg() {
		http.Error(w, "position out of range", http.StatusBadRequest)
		return
	}
	if !(vals[4] > 0) || math.IsInf(vals[4], 1) {
		http.Error(w, "radius must be positive", http.StatusBadRequest)
		return
	}
	dir := geo.Clockwise
	switch q.Get("dir") {
	case "", "cw":
	case "ccw":
		dir = geo.CounterClockwise
	default:
		http.Error(w, "dir must be cw or ccw", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, courseResponse{
		Course:    geo.LoiterCourse(pos, center, vals[4], dir),
		Direction: dir.String(),
		Distance:  int(geo.DistanceDeg(pos, center)),
	})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Telemetry())
}

func (s *Server) handleBoardTelemetry(w http.ResponseWriter, r *http.Request) {
	board, err := strconv.ParseUint(chi.URLParam(r, "board"), 10, 32)
	if err != nil {
		http.Error(w, "board must be a number", http.StatusBadRequest)
		return
	}
	bt, ok := s.BoardTelemetry(uint32(board))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, bt)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  s.now().Sub(s.started).Round(time.Second).String(),
		"boards":  s.boardCount(),
		"clients": s.hub.count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
