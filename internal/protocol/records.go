package protocol

import (
	"errors"
	"fmt"
)

// ErrUnknownRecord is returned when no record type is defined for a
// source/type combination.
var ErrUnknownRecord = errors.New("no record for source/type")

// DecodeRecord selects the payload codec from the frame header. Frames from
// the computer or the ground station carry commands; frames from the MGP
// carry replies and telemetry.
func DecodeRecord(p Package) (Record, error) {
	h := p.Header
	switch h.Source {
	case SourceComputer, SourceNPU:
		switch h.Type {
		case TypeFlightByPoints, TypeHoldPoint:
			return DecodeRoute(p.Pairs), nil
		case TypeReturnToHome:
			return ReturnToHome{}, nil
		case TypeAreaInspectionAFS:
			return DecodeAreaAfs(p.Pairs), nil
		case TypeAreaInspectionRLN:
			return DecodeAreaRln(p.Pairs), nil
		case TypeCameraControlGOES:
			return DecodeShootPoint(p.Pairs), nil
		case TypeStartTrackerGOES:
			return DecodeTrackerEnable(p.Pairs), nil
		case TypeRoutePoints:
			return DecodeRouteRequest(p.Pairs), nil
		case TypeGroupFlightCommand:
			return DecodeGroupMode(p.Pairs), nil
		case TypeSelfID:
			return SelfIDRequest{}, nil
		case TypeNetworkParams:
			return DecodeNetworkParams(p.Pairs), nil
		case TypeManualControl:
			return DecodeManualControl(p.Pairs), nil
		case TypeChangeSpeed:
			return DecodeChangeSpeed(p.Pairs), nil
		}
	case SourceMGP:
		switch h.Type {
		case TypeSelfID:
			return DecodeSelfID(p.Pairs), nil
		case TypeRoutePoints:
			return DecodeRoute(p.Pairs), nil
		case TypeTelemetry:
			return DecodeTelemetry(p.Pairs), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", h, ErrUnknownRecord)
}

// RecordType returns the header type a record is sent under. Route is
// ambiguous (FlightByPoints, HoldPoint or a RoutePoints response) and maps to
// FlightByPoints.
func RecordType(r Record) (DataType, bool) {
	switch r.(type) {
	case Route:
		return TypeFlightByPoints, true
	case ReturnToHome:
		return TypeReturnToHome, true
	case AreaAfs:
		return TypeAreaInspectionAFS, true
	case AreaRln:
		return TypeAreaInspectionRLN, true
	case ShootPoint:
		return TypeCameraControlGOES, true
	case TrackerEnable:
		return TypeStartTrackerGOES, true
	case RouteRequest:
		return TypeRoutePoints, true
	case GroupMode:
		return TypeGroupFlightCommand, true
	case SelfID, SelfIDRequest:
		return TypeSelfID, true
	case Telemetry:
		return TypeTelemetry, true
	case NetworkParams:
		return TypeNetworkParams, true
	case ManualControl:
		return TypeManualControl, true
	case ChangeSpeed:
		return TypeChangeSpeed, true
	}
	return TypeUnknown, false
}

// EncodeRecord builds a package for r. When h.Type is TypeUnknown it is
// filled from RecordType.
func EncodeRecord(h Header, r Record) (Package, error) {
	if r == nil {
		return Package{}, fmt.Errorf("nil record: %w", ErrUnknownRecord)
	}
	if h.Type == TypeUnknown {
		t, ok := RecordType(r)
		if !ok {
			return Package{}, fmt.Errorf("%T: %w", r, ErrUnknownRecord)
		}
		h.Type = t
	}
	pairs := r.Pairs()
	if FrameSize(len(pairs)) >= MaxFrameSize {
		return Package{}, fmt.Errorf("%s with %d pairs: %w", h.Type, len(pairs), ErrFrameTooLarge)
	}
	return Package{Header: h, Pairs: pairs}, nil
}
