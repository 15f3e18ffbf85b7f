package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"example.com/gflink/internal/geo"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gfctl",
		Short: "Group flight link toolkit",
		Long: `gfctl encodes mission plans into link frames, decodes and checks
captured frames, renders briefings and computes loiter courses.`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		encodeCmd(),
		decodeCmd(),
		checkCmd(),
		reportCmd(),
		courseCmd(),
		manifestCmd(),
		verifyCmd(),
	)
	return root
}

// parseLatLon reads "lat,lon" in degrees.
func parseLatLon(s string) (geo.Coords, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Coords{}, fmt.Errorf("%q: want lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Coords{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Coords{}, fmt.Errorf("longitude: %w", err)
	}
	c := geo.Coords{Lat: lat, Lon: lon}
	if !c.ValidDeg() {
		return geo.Coords{}, fmt.Errorf("%q out of range", s)
	}
	return c, nil
}

func courseCmd() *cobra.Command {
	var (
		pos, center string
		radius      float64
		ccw         bool
	)
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Course that steers onto a loiter circle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseLatLon(pos)
			if err != nil {
				return fmt.Errorf("--pos: %w", err)
			}
			c, err := parseLatLon(center)
			if err != nil {
				return fmt.Errorf("--center: %w", err)
			}
			if !(radius > 0) || math.IsInf(radius, 1) {
				return fmt.Errorf("--radius must be positive")
			}
			dir := geo.Clockwise
			if ccw {
				dir = geo.CounterClockwise
			}
			course := geo.LoiterCourse(p, c, radius, dir)
			fmt.Fprintf(cmd.OutOrStdout(), "course=%d dir=%s distance=%.0fm\n", course, dir, geo.DistanceDeg(p, c))
			return nil
		},
	}
	cmd.Flags().StringVar(&pos, "pos", "", "aircraft position lat,lon")
	cmd.Flags().StringVar(&center, "center", "", "circle center lat,lon")
	cmd.Flags().Float64Var(&radius, "radius", 0, "circle radius in meters")
	cmd.Flags().BoolVar(&ccw, "ccw", false, "fly the circle counterclockwise")
	cmd.MarkFlagRequired("pos")
	cmd.MarkFlagRequired("center")
	cmd.MarkFlagRequired("radius")
	return cmd
}
