package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"example.com/gflink/internal/rules"
)

func SaveAcceptanceJSON(rep rules.AcceptanceReport, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := WriteAcceptanceJSON(rep, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteAcceptanceJSON writes rep as indented JSON.
func WriteAcceptanceJSON(rep rules.AcceptanceReport, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func LoadAcceptanceJSON(path string) (rules.AcceptanceReport, error) {
	var rep rules.AcceptanceReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return rep, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}

// FormatSummary renders the one line verdict printed by the CLI.
func FormatSummary(rep rules.AcceptanceReport) string {
	s := rep.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d frames, %d rejected, %d errors, %d warnings",
		passLabel(s.Pass), s.Frames, s.Rejected, s.Errors, s.Warnings)
	var failed []string
	for _, row := range rep.GateMatrix {
		if row["status"] == "FAIL" {
			failed = append(failed, cellString(row["ruleId"]))
		}
	}
	if len(failed) > 0 {
		b.WriteString(" (failed: " + strings.Join(failed, ", ") + ")")
	}
	return b.String()
}
