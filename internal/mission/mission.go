package mission

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/gflink/internal/geo"
	"example.com/gflink/internal/link"
	"example.com/gflink/internal/protocol"
)

var (
	ErrEmptyPlan        = errors.New("mission has no elements")
	ErrCoordRange       = errors.New("coordinate out of range")
	ErrAreaTooSmall     = errors.New("area needs at least 3 vertices")
	ErrSelfIntersecting = errors.New("area outline intersects itself")
)

// Network is the YAML form of a NetworkParams command.
type Network struct {
	Host    string `yaml:"host"`
	PortIn  uint16 `yaml:"portIn"`
	PortOut uint16 `yaml:"portOut"`
}

// Plan is one mission for one board. Every set element becomes one frame.
type Plan struct {
	Name   string              `yaml:"name,omitempty"`
	Board  uint32              `yaml:"board"`
	Source protocol.DataSource `yaml:"source"`

	Route      protocol.Route          `yaml:"route,omitempty"`
	Hold       *protocol.FlightPoint   `yaml:"hold,omitempty"`
	Afs        *protocol.AreaAfs       `yaml:"afs,omitempty"`
	Rln        *protocol.AreaRln       `yaml:"rln,omitempty"`
	Camera     *protocol.ShootPoint    `yaml:"camera,omitempty"`
	Tracker    *protocol.TrackerEnable `yaml:"tracker,omitempty"`
	Group      *protocol.GroupMode     `yaml:"group,omitempty"`
	Network    *Network                `yaml:"network,omitempty"`
	Speed      *float32                `yaml:"speed,omitempty"`
	ReturnHome bool                    `yaml:"returnHome,omitempty"`
}

// Load reads and validates a YAML mission plan.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML mission plan and validates it. Unknown fields are
// rejected. An absent source defaults to the computer.
func Parse(data []byte) (*Plan, error) {
	p := &Plan{Source: protocol.SourceComputer}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Marshal renders the plan back to YAML.
func (p *Plan) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func checkCoords(what string, c geo.Coords) error {
	if !c.ValidDeg() {
		return fmt.Errorf("%s (%.7f, %.7f): %w", what, c.Lat, c.Lon, ErrCoordRange)
	}
	return nil
}

func checkArea(what string, points []geo.Coords) error {
	if len(points) < 3 {
		return fmt.Errorf("%s: %w", what, ErrAreaTooSmall)
	}
	for i, c := range points {
		if err := checkCoords(fmt.Sprintf("%s vertex %d", what, i), c); err != nil {
			return err
		}
	}
	if geo.SelfIntersects(geo.ToMercator(points)) {
		return fmt.Errorf("%s: %w", what, ErrSelfIntersecting)
	}
	return nil
}

// Validate checks that the plan has at least one element, that every
// coordinate is in range and that area outlines are simple polygons.
func (p *Plan) Validate() error {
	if len(p.Elements()) == 0 {
		return ErrEmptyPlan
	}
	if p.Source == protocol.SourceUnknown || p.Source == protocol.SourceMGP {
		return fmt.Errorf("source %s cannot send commands", p.Source)
	}
	for i, fp := range p.Route {
		if err := checkCoords(fmt.Sprintf("route point %d", i), fp.Point); err != nil {
			return err
		}
	}
	if p.Hold != nil {
		if err := checkCoords("hold point", p.Hold.Point); err != nil {
			return err
		}
	}
	if p.Afs != nil {
		if err := checkArea("afs area", p.Afs.Points); err != nil {
			return err
		}
	}
	if p.Rln != nil {
		if err := checkArea("rln area", p.Rln.Points); err != nil {
			return err
		}
	}
	if p.Camera != nil {
		if err := checkCoords("camera point", p.Camera.Point); err != nil {
			return err
		}
	}
	if p.Network != nil {
		if _, err := p.Network.Params(); err != nil {
			return err
		}
	}
	return nil
}

// Params converts the network element to its wire record.
func (n Network) Params() (protocol.NetworkParams, error) {
	np := protocol.NetworkParams{PortIn: n.PortIn, PortOut: n.PortOut}
	if strings.TrimSpace(n.Host) != "" {
		host, err := link.IPFromString(strings.TrimSpace(n.Host))
		if err != nil {
			return np, fmt.Errorf("network host: %w", err)
		}
		np.Host = host
	}
	return np, nil
}

// Element is one command of a plan with the frame type it is sent under.
type Element struct {
	Type   protocol.DataType
	Record protocol.Record
}

// Elements lists the plan's commands in send order: network, route, hold,
// areas, camera, tracker, group, speed, return home.
func (p *Plan) Elements() []Element {
	var out []Element
	if p.Network != nil {
		// an invalid host is reported by Validate
		np, _ := p.Network.Params()
		out = append(out, Element{protocol.TypeNetworkParams, np})
	}
	if len(p.Route) > 0 {
		out = append(out, Element{protocol.TypeFlightByPoints, p.Route})
	}
	if p.Hold != nil {
		out = append(out, Element{protocol.TypeHoldPoint, protocol.Route{*p.Hold}})
	}
	if p.Afs != nil {
		out = append(out, Element{protocol.TypeAreaInspectionAFS, *p.Afs})
	}
	if p.Rln != nil {
		out = append(out, Element{protocol.TypeAreaInspectionRLN, *p.Rln})
	}
	if p.Camera != nil {
		out = append(out, Element{protocol.TypeCameraControlGOES, *p.Camera})
	}
	if p.Tracker != nil {
		out = append(out, Element{protocol.TypeStartTrackerGOES, *p.Tracker})
	}
	if p.Group != nil {
		out = append(out, Element{protocol.TypeGroupFlightCommand, *p.Group})
	}
	if p.Speed != nil {
		out = append(out, Element{protocol.TypeChangeSpeed, protocol.ChangeSpeed{Speed: *p.Speed}})
	}
	if p.ReturnHome {
		out = append(out, Element{protocol.TypeReturnToHome, protocol.ReturnToHome{}})
	}
	return out
}

// Frames builds one package per element.
func (p *Plan) Frames() ([]protocol.Package, error) {
	elems := p.Elements()
	out := make([]protocol.Package, 0, len(elems))
	for _, e := range elems {
		h := protocol.Header{Source: p.Source, Type: e.Type, BoardNumber: p.Board}
		pkg, err := protocol.EncodeRecord(h, e.Record)
		if err != nil {
			return nil, err
		}
		out = append(out, pkg)
	}
	return out, nil
}

// Encode packs every frame back to back.
func (p *Plan) Encode() ([]byte, error) {
	pkgs, err := p.Frames()
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, pkg := range pkgs {
		out, err = protocol.AppendPack(out, pkg)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RoutePoints returns the route coordinates in flight order.
func (p *Plan) RoutePoints() []geo.Coords {
	out := make([]geo.Coords, len(p.Route))
	for i, fp := range p.Route {
		out[i] = fp.Point
	}
	return out
}
