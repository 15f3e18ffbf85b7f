package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/mission"
	"example.com/gflink/internal/protocol"
	"example.com/gflink/internal/report"
)

func encodeCmd() *cobra.Command {
	var missionPath, out string
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Pack a mission plan into link frames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := mission.Load(missionPath)
			if err != nil {
				return err
			}
			frames, err := plan.Encode()
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			if err := os.WriteFile(out, frames, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames (%s) to %s sha256=%s\n",
				len(plan.Elements()), common.FormatBytes(int64(len(frames))), out, report.FrameDigest(frames))
			return nil
		},
	}
	cmd.Flags().StringVar(&missionPath, "mission", "", "mission plan YAML")
	cmd.Flags().StringVar(&out, "out", "frames.bin", "frame output")
	cmd.MarkFlagRequired("mission")
	return cmd
}

// frameLine is one decoded frame of the decode output.
type frameLine struct {
	Offset int64           `json:"offset"`
	Size   int             `json:"size"`
	Header protocol.Header `json:"header"`
	Record protocol.Record `json:"record,omitempty"`
	Pairs  []protocol.Pair `json:"pairs,omitempty"`
}

func decodeCmd() *cobra.Command {
	var (
		in, out         string
		progress, stats bool
	)
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a frame capture to NDJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := protocol.NewReader(in)
			if err != nil {
				return err
			}
			defer reader.Close()

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			bw := bufio.NewWriter(w)
			enc := json.NewEncoder(bw)

			var metrics *common.Metrics
			if progress || stats {
				metrics = common.NewMetrics()
				reader.SetMetrics(metrics)
				metrics.Start()
			}
			stopProgress := func() {}
			if progress {
				stopProgress = common.StartProgressPrinter(cmd.ErrOrStderr(), metrics, 500*time.Millisecond)
			}
			defer stopProgress()

			frames := 0
			for {
				pkg, pos, err := reader.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if errors.Is(err, protocol.ErrNoSync) {
					continue
				}
				if err != nil {
					return err
				}
				line := frameLine{Offset: pos.Offset, Size: pos.Size, Header: pkg.Header}
				if rec, err := protocol.DecodeRecord(pkg); err == nil {
					line.Record = rec
				} else {
					line.Pairs = pkg.Pairs
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
				frames++
			}
			stopProgress()
			if metrics != nil {
				metrics.Stop()
			}
			if err := bw.Flush(); err != nil {
				return err
			}

			idx := reader.Index()
			fmt.Fprintf(cmd.ErrOrStderr(), "frames=%d rejected=%d resyncs=%d skipped=%s\n",
				frames, len(idx.Rejects), idx.Resyncs, common.FormatBytes(idx.Skipped))
			if stats {
				snap := metrics.Snapshot()
				fmt.Fprintf(cmd.ErrOrStderr(), "Metrics: duration=%s pairs=%d processed=%s throughput=%.2f MB/s\n",
					snap.Duration.Round(10*time.Millisecond),
					snap.Pairs,
					common.FormatBytes(snap.Bytes),
					snap.ThroughputBytesPerSecond()/1_000_000,
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "frame capture")
	cmd.Flags().StringVar(&out, "out", "", "NDJSON output (default stdout)")
	cmd.Flags().BoolVar(&progress, "progress", false, "display progress updates")
	cmd.Flags().BoolVar(&stats, "metrics", false, "print throughput metrics")
	cmd.MarkFlagRequired("in")
	return cmd
}
