package rules

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/protocol"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

type Rule struct {
	RuleId   string         `json:"ruleId"`
	Name     string         `json:"name,omitempty"`
	Check    string         `json:"check"`
	Severity Severity       `json:"severity"`
	Refs     []string       `json:"refs,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Message  string         `json:"message,omitempty"`
}

type RulePack struct {
	RulePackId string `json:"rulePackId"`
	Version    string `json:"version"`
	Rules      []Rule `json:"rules"`
}

type Diagnostic struct {
	Ts         time.Time          `json:"ts"`
	File       string             `json:"file"`
	Board      uint32             `json:"board,omitempty"`
	FrameIndex int                `json:"frameIndex,omitempty"`
	Offset     string             `json:"offset,omitempty"`
	RuleId     string             `json:"ruleId"`
	Severity   Severity           `json:"severity"`
	ErrorType  protocol.ErrorType `json:"errorType,omitempty"`
	Message    string             `json:"message"`
	Refs       []string           `json:"refs,omitempty"`
	// DateTime is the telemetry clock of the offending frame, unix seconds.
	DateTime *int64 `json:"dateTime"`
}

type AcceptanceReport struct {
	Summary struct {
		Total    int  `json:"total"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
		Frames   int  `json:"frames"`
		Rejected int  `json:"rejected"`
		Pass     bool `json:"pass"`
	} `json:"summary"`
	GateMatrix []map[string]any `json:"gateMatrix"`
	Findings   []Diagnostic     `json:"findings,omitempty"`
}

// Frame is one accepted frame of the capture with its decoded record, if the
// source/type combination has one.
type Frame struct {
	Index  int
	Pos    protocol.FrameIndex
	Pkg    protocol.Package
	Record protocol.Record
}

type Context struct {
	InputFile string
	Metrics   *common.Metrics

	Capture *protocol.CaptureIndex
	Frames  []Frame
}

// EnsureCapture reads the input file once and caches its frames.
func (ctx *Context) EnsureCapture() error {
	if ctx == nil {
		return errors.New("nil context")
	}
	if ctx.InputFile == "" || ctx.Capture != nil {
		return nil
	}
	reader, err := protocol.NewReader(ctx.InputFile)
	if err != nil {
		return err
	}
	defer reader.Close()
	reader.SetMetrics(ctx.Metrics)
	var frames []Frame
	for {
		pkg, pos, err := reader.Next()
		if err == nil {
			rec, _ := protocol.DecodeRecord(pkg)
			frames = append(frames, Frame{Index: len(frames), Pos: pos, Pkg: pkg, Record: rec})
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, protocol.ErrNoSync) {
			continue
		}
		return err
	}
	idx := reader.Index()
	ctx.Capture = &idx
	ctx.Frames = frames
	return nil
}

// CheckFunc evaluates one rule and returns its findings. An empty result
// means the rule passed.
type CheckFunc func(ctx *Context, rule Rule) ([]Diagnostic, error)

type Engine struct {
	rulePack        RulePack
	registry        map[string]CheckFunc
	diagnostics     []Diagnostic
	frames          int
	rejected        int
	includeDateTime bool
}

func NewEngine(rp RulePack) *Engine {
	return &Engine{
		rulePack:        rp,
		registry:        make(map[string]CheckFunc),
		includeDateTime: true,
	}
}

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

func (e *Engine) Eval(ctx *Context) ([]Diagnostic, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	if err := ctx.EnsureCapture(); err != nil {
		return nil, err
	}
	var diags []Diagnostic
	for _, r := range e.rulePack.Rules {
		if r.Check == "" {
			continue
		}
		fn, ok := e.registry[r.Check]
		if !ok {
			diags = append(diags, Diagnostic{
				Ts: time.Now(), File: ctx.InputFile, RuleId: r.RuleId, Severity: WARN,
				Message: "no check " + strconv.Quote(r.Check), Refs: r.Refs,
			})
			continue
		}
		found, err := fn(ctx, r)
		if err != nil {
			found = append(found, Diagnostic{
				Ts: time.Now(), File: ctx.InputFile, RuleId: r.RuleId, Severity: ERROR,
				Message: fmt.Sprintf("check %s failed (%v)", r.Check, err), Refs: r.Refs,
			})
		}
		diags = append(diags, found...)
	}
	e.diagnostics = diags
	e.frames = len(ctx.Frames)
	if ctx.Capture != nil {
		e.rejected = len(ctx.Capture.Rejects)
	}
	return diags, nil
}

func (e *Engine) Diagnostics() []Diagnostic { return e.diagnostics }

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := e.WriteDiagnostics(f); err != nil {
		return err
	}
	return f.Close()
}

// WriteDiagnostics writes one JSON object per line.
func (e *Engine) WriteDiagnostics(out io.Writer) error {
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for _, d := range e.diagnostics {
		var err error
		if e.includeDateTime {
			err = enc.Encode(d)
		} else {
			err = enc.Encode(d.withoutDateTime())
		}
		if err != nil {
			return err
		}
	}
	return w.Flush()
}

type diagnosticNoDateTime struct {
	Ts         time.Time          `json:"ts"`
	File       string             `json:"file"`
	Board      uint32             `json:"board,omitempty"`
	FrameIndex int                `json:"frameIndex,omitempty"`
	Offset     string             `json:"offset,omitempty"`
	RuleId     string             `json:"ruleId"`
	Severity   Severity           `json:"severity"`
	ErrorType  protocol.ErrorType `json:"errorType,omitempty"`
	Message    string             `json:"message"`
	Refs       []string           `json:"refs,omitempty"`
}

func (d Diagnostic) withoutDateTime() diagnosticNoDateTime {
	return diagnosticNoDateTime{
		Ts:         d.Ts,
		File:       d.File,
		Board:      d.Board,
		FrameIndex: d.FrameIndex,
		Offset:     d.Offset,
		RuleId:     d.RuleId,
		Severity:   d.Severity,
		ErrorType:  d.ErrorType,
		Message:    d.Message,
		Refs:       d.Refs,
	}
}

func (e *Engine) SetConfigValue(key string, value any) {
	if e == nil {
		return
	}
	switch key {
	case "diag.include_datetime":
		switch v := value.(type) {
		case bool:
			e.includeDateTime = v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				e.includeDateTime = b
			}
		}
	}
}

func (e *Engine) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	var errs, warns int
	type tally struct{ errors, warnings, infos int }
	perRule := make(map[string]*tally)
	for _, r := range e.rulePack.Rules {
		perRule[r.RuleId] = &tally{}
	}
	for _, d := range e.diagnostics {
		t := perRule[d.RuleId]
		if t == nil {
			t = &tally{}
			perRule[d.RuleId] = t
		}
		switch d.Severity {
		case ERROR:
			errs++
			t.errors++
		case WARN:
			warns++
			t.warnings++
		default:
			t.infos++
		}
	}
	ids := make([]string, 0, len(perRule))
	for id := range perRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := perRule[id]
		status := "PASS"
		switch {
		case t.errors > 0:
			status = "FAIL"
		case t.warnings > 0:
			status = "WARN"
		}
		rep.GateMatrix = append(rep.GateMatrix, map[string]any{
			"ruleId":   id,
			"errors":   t.errors,
			"warnings": t.warnings,
			"status":   status,
		})
	}
	rep.Summary.Total = len(e.diagnostics)
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Frames = e.frames
	rep.Summary.Rejected = e.rejected
	rep.Summary.Pass = errs == 0
	rep.Findings = e.diagnostics
	return rep
}

//go:embed default_pack.json
var defaultPackJSON []byte

// DefaultRulePack returns the built-in telemetry acceptance pack.
func DefaultRulePack() RulePack {
	rp, err := ParseRulePack(defaultPackJSON)
	if err != nil {
		panic(fmt.Sprintf("default rule pack: %v", err))
	}
	return rp
}

func ParseRulePack(b []byte) (RulePack, error) {
	var rp RulePack
	if err := json.Unmarshal(b, &rp); err != nil {
		return rp, err
	}
	if rp.RulePackId == "" {
		return rp, errors.New("rule pack missing rulePackId")
	}
	return rp, nil
}

func LoadRulePack(path string) (RulePack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return RulePack{}, err
	}
	return ParseRulePack(b)
}
