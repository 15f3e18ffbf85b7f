package rules

import (
	"fmt"
	"math"
	"time"

	"example.com/gflink/internal/protocol"
)

func int64Ptr(v int64) *int64 { return &v }

func (e *Engine) RegisterBuiltins() {
	e.Register("frame.integrity", CheckFrameIntegrity)
	e.Register("telemetry.speed", CheckTelemetrySpeed)
	e.Register("telemetry.pitch", CheckTelemetryPitch)
	e.Register("telemetry.roll", CheckTelemetryRoll)
	e.Register("telemetry.course", CheckTelemetryCourse)
	e.Register("telemetry.clock", CheckTelemetryClock)
	e.Register("route.progress", CheckRouteProgress)
}

// param reads a numeric rule parameter. JSON numbers arrive as float64.
func param(rule Rule, name string, def float64) float64 {
	switch v := rule.Params[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func severityOr(rule Rule, def Severity) Severity {
	if rule.Severity != "" {
		return rule.Severity
	}
	return def
}

func frameDiag(ctx *Context, rule Rule, f Frame) Diagnostic {
	return Diagnostic{
		Ts:         time.Now(),
		File:       ctx.InputFile,
		Board:      f.Pkg.Header.BoardNumber,
		FrameIndex: f.Index,
		Offset:     fmt.Sprintf("0x%X", f.Pos.Offset),
		RuleId:     rule.RuleId,
		Refs:       rule.Refs,
	}
}

func telemetryDiag(ctx *Context, rule Rule, f Frame, tm protocol.Telemetry) Diagnostic {
	d := frameDiag(ctx, rule, f)
	d.DateTime = int64Ptr(int64(tm.DateTime))
	return d
}

// telemetryFrames yields the MGP telemetry frames in capture order.
func telemetryFrames(ctx *Context, fn func(f Frame, tm protocol.Telemetry)) {
	for _, f := range ctx.Frames {
		if tm, ok := f.Record.(protocol.Telemetry); ok {
			fn(f, tm)
		}
	}
}

// CheckFrameIntegrity reports every frame the reader had to skip.
func CheckFrameIntegrity(ctx *Context, rule Rule) ([]Diagnostic, error) {
	if ctx.Capture == nil {
		return nil, nil
	}
	var out []Diagnostic
	for _, rej := range ctx.Capture.Rejects {
		out = append(out, Diagnostic{
			Ts:        time.Now(),
			File:      ctx.InputFile,
			Board:     rej.Header.BoardNumber,
			Offset:    fmt.Sprintf("0x%X", rej.Offset),
			RuleId:    rule.RuleId,
			Severity:  severityOr(rule, ERROR),
			ErrorType: protocol.ErrorBrokenPackage,
			Message:   fmt.Sprintf("frame rejected: %s", rej.Status),
			Refs:      rule.Refs,
		})
	}
	return out, nil
}

// CheckTelemetrySpeed flags speeds outside [min, max] m/s.
func CheckTelemetrySpeed(ctx *Context, rule Rule) ([]Diagnostic, error) {
	lo := param(rule, "min", 0)
	hi := param(rule, "max", math.Inf(1))
	if lo > hi {
		return nil, fmt.Errorf("min %.1f above max %.1f", lo, hi)
	}
	var out []Diagnostic
	telemetryFrames(ctx, func(f Frame, tm protocol.Telemetry) {
		v := float64(tm.Speed)
		switch {
		case v < lo:
			d := telemetryDiag(ctx, rule, f, tm)
			d.Severity = severityOr(rule, WARN)
			d.ErrorType = protocol.ErrorSpeedLowThreshold
			d.Message = fmt.Sprintf("speed %.0f m/s below %.0f", v, lo)
			out = append(out, d)
		case v > hi:
			d := telemetryDiag(ctx, rule, f, tm)
			d.Severity = severityOr(rule, WARN)
			d.ErrorType = protocol.ErrorSpeedHighThreshold
			d.Message = fmt.Sprintf("speed %.0f m/s above %.0f", v, hi)
			out = append(out, d)
		}
	})
	return out, nil
}

func checkAngleLimit(ctx *Context, rule Rule, what string, et protocol.ErrorType, get func(protocol.Telemetry) float32) []Diagnostic {
	limit := param(rule, "maxAbs", 90)
	var out []Diagnostic
	telemetryFrames(ctx, func(f Frame, tm protocol.Telemetry) {
		v := float64(get(tm))
		if math.Abs(v) <= limit {
			return
		}
		d := telemetryDiag(ctx, rule, f, tm)
		d.Severity = severityOr(rule, WARN)
		d.ErrorType = et
		d.Message = fmt.Sprintf("%s %.1f° exceeds ±%.1f°", what, v, limit)
		out = append(out, d)
	})
	return out
}

func CheckTelemetryPitch(ctx *Context, rule Rule) ([]Diagnostic, error) {
	return checkAngleLimit(ctx, rule, "pitch", protocol.ErrorPitchThreshold,
		func(t protocol.Telemetry) float32 { return t.Pitch }), nil
}

func CheckTelemetryRoll(ctx *Context, rule Rule) ([]Diagnostic, error) {
	return checkAngleLimit(ctx, rule, "roll", protocol.ErrorRollThreshold,
		func(t protocol.Telemetry) float32 { return t.Roll }), nil
}

// CheckTelemetryCourse flags courses outside [0, 360].
func CheckTelemetryCourse(ctx *Context, rule Rule) ([]Diagnostic, error) {
	var out []Diagnostic
	telemetryFrames(ctx, func(f Frame, tm protocol.Telemetry) {
		if tm.Course >= 0 && tm.Course <= 360 {
			return
		}
		d := telemetryDiag(ctx, rule, f, tm)
		d.Severity = severityOr(rule, WARN)
		d.ErrorType = protocol.ErrorCourseThreshold
		d.Message = fmt.Sprintf("course %.1f° outside 0..360", tm.Course)
		out = append(out, d)
	})
	return out, nil
}

// CheckTelemetryClock flags a board whose telemetry clock runs backwards.
func CheckTelemetryClock(ctx *Context, rule Rule) ([]Diagnostic, error) {
	last := make(map[uint32]uint32)
	var out []Diagnostic
	telemetryFrames(ctx, func(f Frame, tm protocol.Telemetry) {
		board := f.Pkg.Header.BoardNumber
		if prev, ok := last[board]; ok && tm.DateTime < prev {
			d := telemetryDiag(ctx, rule, f, tm)
			d.Severity = severityOr(rule, WARN)
			d.Message = fmt.Sprintf("telemetry clock went back %ds", prev-tm.DateTime)
			out = append(out, d)
		}
		last[board] = tm.DateTime
	})
	return out, nil
}

// CheckRouteProgress compares each board's current point with the last route
// it reported, and each route response with its declared point count.
func CheckRouteProgress(ctx *Context, rule Rule) ([]Diagnostic, error) {
	routeLen := make(map[uint32]int)
	var out []Diagnostic
	for _, f := range ctx.Frames {
		board := f.Pkg.Header.BoardNumber
		switch rec := f.Record.(type) {
		case protocol.Route:
			if f.Pkg.Header.Source != protocol.SourceMGP {
				continue
			}
			routeLen[board] = len(rec)
			if n, ok := protocol.DeclaredPointCount(f.Pkg.Pairs); ok && n != len(rec) {
				d := frameDiag(ctx, rule, f)
				d.Severity = WARN
				d.ErrorType = protocol.ErrorBrokenPackage
				d.Message = fmt.Sprintf("route declares %d points, carries %d", n, len(rec))
				out = append(out, d)
			}
		case protocol.Telemetry:
			n, ok := routeLen[board]
			if !ok || int(rec.CurrentPoint) <= n {
				continue
			}
			d := telemetryDiag(ctx, rule, f, rec)
			d.Severity = severityOr(rule, ERROR)
			d.ErrorType = protocol.ErrorRouteAlgorithm
			d.Message = fmt.Sprintf("current point %d beyond route of %d points", rec.CurrentPoint, n)
			out = append(out, d)
		}
	}
	return out, nil
}
