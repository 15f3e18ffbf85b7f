package mission

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/gflink/internal/protocol"
)

const samplePlan = `
name: survey north field
board: 7
source: computer
network:
  host: 239.1.2.3
  portIn: 1234
  portOut: 4321
route:
  - num: 1
    lat: 55.7558
    lon: 37.6176
    alt: 150
    holdRadius: 100
    holdTime: 30
  - num: 2
    lat: 55.7600
    lon: 37.6300
    alt: 160
afs:
  altitude: 300
  crossOverlap: 60
  alongOverlap: 80
  resolution: 5
  points:
    - {num: 1, lat: 55.70, lon: 37.50}
    - {num: 2, lat: 55.71, lon: 37.52}
    - {num: 3, lat: 55.69, lon: 37.53}
group:
  mode: enabled
  master: true
  dx: -50
speed: 22
returnHome: true
`

func TestParseSamplePlan(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Board != 7 || p.Source != protocol.SourceComputer || p.Name != "survey north field" {
		t.Fatalf("plan header = %+v", p)
	}
	if len(p.Route) != 2 || p.Route[0].HoldRadius != 100 || p.Route[0].Point.Lat != 55.7558 {
		t.Fatalf("route = %+v", p.Route)
	}
	if p.Group == nil || p.Group.Mode != protocol.GroupEnabled || p.Group.DistancingX != -50 {
		t.Fatalf("group = %+v", p.Group)
	}

	var types []protocol.DataType
	for _, e := range p.Elements() {
		types = append(types, e.Type)
	}
	want := []protocol.DataType{
		protocol.TypeNetworkParams,
		protocol.TypeFlightByPoints,
		protocol.TypeAreaInspectionAFS,
		protocol.TypeGroupFlightCommand,
		protocol.TypeChangeSpeed,
		protocol.TypeReturnToHome,
	}
	if len(types) != len(want) {
		t.Fatalf("elements = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("elements = %v, want %v", types, want)
		}
	}
}

func TestEncodeDecodesBack(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	pkgs, st := protocol.UnpackAll(raw)
	if st != protocol.StatusSuccess || len(pkgs) != 6 {
		t.Fatalf("UnpackAll = %d frames, %v", len(pkgs), st)
	}
	for _, pkg := range pkgs {
		if pkg.Header.BoardNumber != 7 || pkg.Header.Source != protocol.SourceComputer {
			t.Fatalf("header = %+v", pkg.Header)
		}
	}
	rec, err := protocol.DecodeRecord(pkgs[0])
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	np, ok := rec.(protocol.NetworkParams)
	if !ok || np.Host != 0xEF010203 || np.PortOut != 4321 {
		t.Fatalf("network = %#v", rec)
	}
	rec, err = protocol.DecodeRecord(pkgs[2])
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	afs, ok := rec.(protocol.AreaAfs)
	if !ok || len(afs.Points) != 3 || afs.Points[2].Alt != 300 {
		t.Fatalf("afs = %#v", rec)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"empty", "board: 1\n", ErrEmptyPlan},
		{"latitude", "route:\n  - {lat: 91, lon: 0}\n", ErrCoordRange},
		{"longitude", "camera: {lat: 0, lon: -181}\n", ErrCoordRange},
		{"nan latitude", "route:\n  - {lat: .nan, lon: 0}\n", ErrCoordRange},
		{"small area", "rln:\n  points:\n    - {lat: 1, lon: 1}\n    - {lat: 2, lon: 2}\n", ErrAreaTooSmall},
		{"bowtie", "afs:\n  points:\n    - {lat: 0, lon: 0}\n    - {lat: 1, lon: 1}\n    - {lat: 0, lon: 1}\n    - {lat: 1, lon: 0}\n", ErrSelfIntersecting},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown field": "route: []\nbogus: 1\nreturnHome: true\n",
		"mgp source":    "source: mgp\nreturnHome: true\n",
		"bad host":      "network: {host: example.org}\n",
		"bad source":    "source: satellite\nreturnHome: true\n",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: Parse accepted %q", name, doc)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	out, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), "source: computer") || !strings.Contains(string(out), "mode: enabled") {
		t.Fatalf("marshalled plan:\n%s", out)
	}
	back, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse marshalled: %v\n%s", err, out)
	}
	if len(back.Elements()) != len(p.Elements()) || back.Route[1].Point != p.Route[1].Point {
		t.Fatalf("round trip lost data:\n%s", out)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte("hold: {lat: 10, lon: 20, holdRadius: 150}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pkgs, err := p.Frames()
	if err != nil || len(pkgs) != 1 || pkgs[0].Header.Type != protocol.TypeHoldPoint {
		t.Fatalf("Frames = %+v, %v", pkgs, err)
	}
	if len(p.RoutePoints()) != 0 {
		t.Fatalf("RoutePoints on hold-only plan = %v", p.RoutePoints())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("Load of missing file succeeded")
	}
}
