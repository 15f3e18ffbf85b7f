package protocol

import (
	"errors"
	"reflect"
	"testing"

	"example.com/gflink/internal/geo"
)

func TestDecodeRecordDispatch(t *testing.T) {
	route := Route{{Point: geo.Coords{Num: 1, Lat: 1, Lon: 2, Alt: 3}}}
	tests := []struct {
		name   string
		header Header
		pairs  []Pair
		want   Record
	}{
		{"flight by points", Header{Source: SourceComputer, Type: TypeFlightByPoints}, route.Pairs(), route},
		{"hold point", Header{Source: SourceNPU, Type: TypeHoldPoint}, route.Pairs(), route},
		{"return to home", Header{Source: SourceComputer, Type: TypeReturnToHome}, nil, ReturnToHome{}},
		{"route request", Header{Source: SourceComputer, Type: TypeRoutePoints}, RouteRequest{Request: true}.Pairs(), RouteRequest{Request: true}},
		{"route response", Header{Source: SourceMGP, Type: TypeRoutePoints}, route.Pairs(), route},
		{"self id request", Header{Source: SourceComputer, Type: TypeSelfID}, nil, SelfIDRequest{}},
		{"self id", Header{Source: SourceMGP, Type: TypeSelfID}, SelfID{Number: 4, Type: 1}.Pairs(), SelfID{Number: 4, Type: 1}},
		{"group", Header{Source: SourceComputer, Type: TypeGroupFlightCommand}, GroupMode{Mode: GroupEnabled}.Pairs(), GroupMode{Mode: GroupEnabled}},
		{"speed", Header{Source: SourceComputer, Type: TypeChangeSpeed}, ChangeSpeed{Speed: 22}.Pairs(), ChangeSpeed{Speed: 22}},
		{"tracker", Header{Source: SourceComputer, Type: TypeStartTrackerGOES}, TrackerEnable{X: 1}.Pairs(), TrackerEnable{X: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeRecord(Package{Header: tc.header, Pairs: tc.pairs})
			if err != nil {
				t.Fatalf("DecodeRecord: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("record = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeRecordTelemetryFromMGPOnly(t *testing.T) {
	pairs := Telemetry{Speed: 30}.Pairs()
	rec, err := DecodeRecord(Package{Header: Header{Source: SourceMGP, Type: TypeTelemetry}, Pairs: pairs})
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if tm, ok := rec.(Telemetry); !ok || tm.Speed != 30 {
		t.Fatalf("record = %#v", rec)
	}
	_, err = DecodeRecord(Package{Header: Header{Source: SourceComputer, Type: TypeTelemetry}, Pairs: pairs})
	if !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("err = %v, want ErrUnknownRecord", err)
	}
	_, err = DecodeRecord(Package{Header: Header{Source: SourceUnknown, Type: TypeUnknown}})
	if !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("err = %v, want ErrUnknownRecord", err)
	}
}

func TestEncodeRecordFillsType(t *testing.T) {
	p, err := EncodeRecord(Header{Source: SourceComputer, Type: TypeUnknown, BoardNumber: 3}, AreaAfs{Altitude: 100})
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	if p.Header.Type != TypeAreaInspectionAFS || p.Header.BoardNumber != 3 {
		t.Fatalf("header = %+v", p.Header)
	}

	p, err = EncodeRecord(Header{Source: SourceComputer, Type: TypeHoldPoint}, Route{{}})
	if err != nil || p.Header.Type != TypeHoldPoint {
		t.Fatalf("explicit type overridden: %+v, %v", p.Header, err)
	}

	if _, err := EncodeRecord(Header{Type: TypeUnknown}, nil); !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("nil record err = %v", err)
	}

	big := make(Points, MaxPairs/7+1)
	if _, err := EncodeRecord(Header{Source: SourceComputer}, big); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("oversized err = %v, want ErrFrameTooLarge", err)
	}
}

func TestEncodeDecodeThroughFrame(t *testing.T) {
	in := AreaRln{
		Points:   []geo.Coords{{Num: 1, Lat: 55.1, Lon: 37.1, Alt: 250}, {Num: 2, Lat: 55.2, Lon: 37.1, Alt: 250}, {Num: 3, Lat: 55.2, Lon: 37.3, Alt: 250}},
		Altitude: 250,
		Overlap:  20,
		Distance: 800,
	}
	p, err := EncodeRecord(Header{Source: SourceNPU, BoardNumber: 11, Type: TypeUnknown}, in)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	b, err := Pack(p)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	back, _, st := Unpack(b, 0)
	if st != StatusSuccess {
		t.Fatalf("status = %v", st)
	}
	rec, err := DecodeRecord(back)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	got, ok := rec.(AreaRln)
	if !ok {
		t.Fatalf("record = %T", rec)
	}
	if got.Altitude != 250 || got.Distance != 800 || len(got.Points) != 3 {
		t.Fatalf("area = %+v", got)
	}
}
