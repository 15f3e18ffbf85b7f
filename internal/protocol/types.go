package protocol

import (
	"fmt"
	"strings"
)

// DataSource identifies the sender of a frame.
type DataSource uint8

const (
	SourceNPU      DataSource = 0 // ground control station
	SourceMGP      DataSource = 2 // group flight module
	SourceComputer DataSource = 3 // onboard computer
	SourceUnknown  DataSource = 4
)

// ParseDataSource maps a wire byte to a DataSource. Values outside the known
// set decode as SourceUnknown.
func ParseDataSource(b uint8) DataSource {
	switch s := DataSource(b); s {
	case SourceNPU, SourceMGP, SourceComputer:
		return s
	}
	return SourceUnknown
}

var sourceNames = map[DataSource]string{
	SourceNPU:      "npu",
	SourceMGP:      "mgp",
	SourceComputer: "computer",
	SourceUnknown:  "unknown",
}

func (s DataSource) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("source(%d)", uint8(s))
}

func (s DataSource) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *DataSource) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for k, v := range sourceNames {
		if v == name {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown data source %q", string(b))
}

// DataType is the message kind carried in the header. It selects the key
// namespace used by the payload pairs.
type DataType uint8

const (
	TypeSelfID             DataType = 0
	TypeFlightByPoints     DataType = 1
	TypeReturnToHome       DataType = 2
	TypeAreaInspectionAFS  DataType = 3
	TypeAreaInspectionRLN  DataType = 4
	TypeCameraControlGOES  DataType = 5
	TypeStartTrackerGOES   DataType = 6
	TypeRoutePoints        DataType = 7 // request from the computer, response from the MGP
	TypeGroupFlightCommand DataType = 8
	TypeTelemetry          DataType = 9
	TypeHoldPoint          DataType = 10

	// extensions outside the base protocol
	TypeNetworkParams DataType = 130
	TypeManualControl DataType = 131
	TypeChangeSpeed   DataType = 132

	TypeUnknown DataType = 255
)

// ParseDataType maps a wire byte to a DataType; unknown values decode as
// TypeUnknown.
func ParseDataType(b uint8) DataType {
	t := DataType(b)
	if _, ok := typeNames[t]; ok {
		return t
	}
	return TypeUnknown
}

var typeNames = map[DataType]string{
	TypeSelfID:             "self-id",
	TypeFlightByPoints:     "flight-by-points",
	TypeReturnToHome:       "return-to-home",
	TypeAreaInspectionAFS:  "area-afs",
	TypeAreaInspectionRLN:  "area-rln",
	TypeCameraControlGOES:  "camera-goes",
	TypeStartTrackerGOES:   "tracker-goes",
	TypeRoutePoints:        "route-points",
	TypeGroupFlightCommand: "group-flight",
	TypeTelemetry:          "telemetry",
	TypeHoldPoint:          "hold-point",
	TypeNetworkParams:      "network-params",
	TypeManualControl:      "manual-control",
	TypeChangeSpeed:        "change-speed",
	TypeUnknown:            "unknown",
}

func (t DataType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

func (t DataType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *DataType) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for k, v := range typeNames {
		if v == name {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown data type %q", string(b))
}

// DataKey is a payload key. Its meaning depends on the DataType of the
// enclosing frame, so the same numeric value appears under several names.
type DataKey uint8

// Route points (FlightByPoints, HoldPoint, RoutePoints response) and
// coordinate lists.
const (
	KeyPointNumber   DataKey = 0
	KeyLatitudeLow   DataKey = 1 // bits 16..31 of the fixed-point latitude
	KeyLatitudeHigh  DataKey = 2 // bits 0..15
	KeyLongitudeLow  DataKey = 3 // bits 16..31 of the fixed-point longitude
	KeyLongitudeHigh DataKey = 4 // bits 0..15
	KeyAltitude      DataKey = 5
	KeyHoldRadius    DataKey = 6
	KeyHoldTime      DataKey = 7
)

// AFS area inspection.
const (
	KeyResolution   DataKey = 6
	KeyCrossOverlap DataKey = 7
	KeyAlongOverlap DataKey = 8
)

// RLN area inspection.
const (
	KeyAltitudeAboveSurface DataKey = 5
	KeyOverlap              DataKey = 6
	KeyFlightDistance       DataKey = 7
	KeyDataFormat           DataKey = 8
)

// GOES camera control.
const (
	KeyAltitudeAboveSea DataKey = 5
	KeyFocalLength      DataKey = 6
	KeyFlyAroundFlag    DataKey = 7
)

// GOES tracker.
const (
	KeyImageX        DataKey = 0
	KeyImageY        DataKey = 1
	KeyTrackerEnable DataKey = 2
)

// Route points request.
const KeyRequestFlag DataKey = 0

// Group flight command.
const (
	KeyGroupFlightMode DataKey = 0
	KeyMasterFlag      DataKey = 1
	KeyDistancingX     DataKey = 2
	KeyDistancingY     DataKey = 3
	KeyDistancingZ     DataKey = 4
)

// Self identification response.
const (
	KeyNumberUAV DataKey = 0
	KeyTypeCO    DataKey = 1
)

// Route points response.
const KeyPointsCount DataKey = 10

// Telemetry.
const (
	KeyAltitudeGPS       DataKey = 5
	KeyPitch             DataKey = 6
	KeyRoll              DataKey = 7
	KeyCourse            DataKey = 8
	KeyFlightTimeLeft    DataKey = 9
	KeyGroupFlightStatus DataKey = 10
	KeyTimeDateLow       DataKey = 11 // bits 16..31 of the unix time
	KeyTimeDateHigh      DataKey = 12 // bits 0..15
	KeyBoardStatus       DataKey = 13
	KeyCurrentPoint      DataKey = 14
	KeySpeed             DataKey = 25
)

const (
	KeySeparator DataKey = 255
	KeyError     DataKey = 255
)

// Network parameters.
const (
	KeyPortIn   DataKey = 130
	KeyPortOut  DataKey = 131
	KeyHostLow  DataKey = 132 // bits 16..31 of the IPv4 address
	KeyHostHigh DataKey = 133 // bits 0..15
)

// Manual control; course and current point reuse the telemetry keys.
const (
	KeyMoveLeft   DataKey = 134
	KeyMoveRight  DataKey = 135
	KeyMoveUp     DataKey = 136
	KeyHoldCourse DataKey = 137
)

// SeparatorValue terminates one item of a list payload.
const SeparatorValue uint16 = 0xFFFF

// Separator is the pair emitted after every list item.
var Separator = Pair{Key: KeySeparator, Value: SeparatorValue}

// Header is the fixed part of a frame.
type Header struct {
	Source      DataSource `json:"source"`
	Type        DataType   `json:"type"`
	BoardNumber uint32     `json:"board"`
}

func (h Header) String() string {
	return fmt.Sprintf("%s/%s board %d", h.Source, h.Type, h.BoardNumber)
}

// Pair is one key/value unit of a payload.
type Pair struct {
	Key   DataKey `json:"k"`
	Value uint16  `json:"v"`
}

// IsSeparator reports whether p ends a list item.
func (p Pair) IsSeparator() bool {
	return p.Key == KeySeparator && p.Value == SeparatorValue
}

// Package is a decoded frame.
type Package struct {
	Header Header `json:"header"`
	Pairs  []Pair `json:"pairs"`
}

// GroupModeKey is the commanded group flight mode.
type GroupModeKey uint8

const (
	GroupDisabled    GroupModeKey = 0
	GroupEnabled     GroupModeKey = 1
	GroupPause       GroupModeKey = 2 // single aircraft pause
	GroupPauseAllOn  GroupModeKey = 3
	GroupPauseAllOff GroupModeKey = 4
)

var groupModeNames = map[GroupModeKey]string{
	GroupDisabled:    "disabled",
	GroupEnabled:     "enabled",
	GroupPause:       "pause",
	GroupPauseAllOn:  "group-pause-on",
	GroupPauseAllOff: "group-pause-off",
}

func (g GroupModeKey) String() string {
	if name, ok := groupModeNames[g]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", uint8(g))
}

func (g GroupModeKey) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

func (g *GroupModeKey) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for k, v := range groupModeNames {
		if v == name {
			*g = k
			return nil
		}
	}
	return fmt.Errorf("unknown group mode %q", string(b))
}

// GroupModeStatus is reported by an aircraft in telemetry.
type GroupModeStatus uint8

const (
	GroupNotInvolved GroupModeStatus = 0
	GroupMaster      GroupModeStatus = 1
	GroupSlave       GroupModeStatus = 2
)

func (g GroupModeStatus) String() string {
	switch g {
	case GroupNotInvolved:
		return "not-involved"
	case GroupMaster:
		return "master"
	case GroupSlave:
		return "slave"
	}
	return fmt.Sprintf("status(%d)", uint8(g))
}

// ErrorType codes are reported to the ground station.
type ErrorType uint8

const (
	ErrorNone               ErrorType = 0
	ErrorBrokenPackage      ErrorType = 101
	ErrorWrongParameters    ErrorType = 102
	ErrorStartup            ErrorType = 103
	ErrorSpeedLowThreshold  ErrorType = 128
	ErrorSpeedHighThreshold ErrorType = 129
	ErrorPitchThreshold     ErrorType = 130
	ErrorRollThreshold      ErrorType = 131
	ErrorCourseThreshold    ErrorType = 132
	ErrorRouteAlgorithm     ErrorType = 133 // route is ahead of the autopilot
)

var errorTypeNames = map[ErrorType]string{
	ErrorNone:               "NoError",
	ErrorBrokenPackage:      "BrokenPackage",
	ErrorWrongParameters:    "WrongParameters",
	ErrorStartup:            "StartupError",
	ErrorSpeedLowThreshold:  "SpeedLowThreshold",
	ErrorSpeedHighThreshold: "SpeedHighThreshold",
	ErrorPitchThreshold:     "PitchThresholdErr",
	ErrorRollThreshold:      "RollThresholdErr",
	ErrorCourseThreshold:    "CourseThresholdErr",
	ErrorRouteAlgorithm:     "RouteAlgorithmErr",
}

func (e ErrorType) String() string {
	if name, ok := errorTypeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("error(%d)", uint8(e))
}

func (e ErrorType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *ErrorType) UnmarshalText(b []byte) error {
	name := strings.TrimSpace(string(b))
	for k, v := range errorTypeNames {
		if v == name {
			*e = k
			return nil
		}
	}
	return fmt.Errorf("unknown error type %q", string(b))
}
