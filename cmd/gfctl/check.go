package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/mission"
	"example.com/gflink/internal/report"
	"example.com/gflink/internal/rules"
)

// errCheckFailed makes check exit non-zero after the reports are written.
var errCheckFailed = errors.New("acceptance failed")

func checkCmd() *cobra.Command {
	var (
		in, rulesPath, outDiag, outAcc, outPDF string
		includeDateTime, progress, strict      bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate telemetry rules against a capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rp := rules.DefaultRulePack()
			if rulesPath != "" {
				var err error
				if rp, err = rules.LoadRulePack(rulesPath); err != nil {
					return fmt.Errorf("rule pack: %w", err)
				}
			}
			engine := rules.NewEngine(rp)
			engine.RegisterBuiltins()
			engine.SetConfigValue("diag.include_datetime", includeDateTime)

			ctx := &rules.Context{InputFile: in}
			var stopProgress func()
			if progress {
				ctx.Metrics = common.NewMetrics()
				ctx.Metrics.Start()
				stopProgress = common.StartProgressPrinter(cmd.ErrOrStderr(), ctx.Metrics, 500*time.Millisecond)
			}
			diags, err := engine.Eval(ctx)
			if stopProgress != nil {
				stopProgress()
				ctx.Metrics.Stop()
			}
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			if err := engine.WriteDiagnosticsNDJSON(outDiag); err != nil {
				return fmt.Errorf("write diagnostics: %w", err)
			}
			rep := engine.MakeAcceptance()
			if err := report.SaveAcceptanceJSON(rep, outAcc); err != nil {
				return fmt.Errorf("write acceptance: %w", err)
			}
			if outPDF != "" {
				if err := report.SaveAcceptancePDF(rep, outPDF); err != nil {
					return fmt.Errorf("write pdf: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s, diagnostics=%d\n", report.FormatSummary(rep), len(diags))
			if strict && !rep.Summary.Pass {
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "frame capture")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rule pack JSON (default: built-in pack)")
	cmd.Flags().StringVar(&outDiag, "out", "diagnostics.jsonl", "diagnostics output")
	cmd.Flags().StringVar(&outAcc, "acceptance", "acceptance_report.json", "acceptance JSON output")
	cmd.Flags().StringVar(&outPDF, "pdf", "", "acceptance PDF output")
	cmd.Flags().BoolVar(&includeDateTime, "diag-include-datetime", true, "include board time in diagnostics")
	cmd.Flags().BoolVar(&progress, "progress", false, "display progress updates")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when acceptance fails")
	cmd.MarkFlagRequired("in")
	return cmd
}

func reportCmd() *cobra.Command {
	var missionPath, accPath, out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a mission briefing or an acceptance report as PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case missionPath != "" && accPath != "":
				return errors.New("--mission and --acceptance cannot be used together")
			case missionPath != "":
				plan, err := mission.Load(missionPath)
				if err != nil {
					return err
				}
				if err := report.SaveMissionPDF(plan, out); err != nil {
					return err
				}
			case accPath != "":
				rep, err := report.LoadAcceptanceJSON(accPath)
				if err != nil {
					return err
				}
				if err := report.SaveAcceptancePDF(rep, out); err != nil {
					return err
				}
			default:
				return errors.New("required: --mission or --acceptance")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&missionPath, "mission", "", "mission plan YAML")
	cmd.Flags().StringVar(&accPath, "acceptance", "", "acceptance report JSON")
	cmd.Flags().StringVar(&out, "out", "report.pdf", "PDF output")
	return cmd
}
