package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"example.com/gflink/internal/common"
	"example.com/gflink/internal/geo"
	"example.com/gflink/internal/mission"
	"example.com/gflink/internal/protocol"
)

const qrSizeMM = 40

// FrameDigest returns the SHA-256 of the packed frames.
func FrameDigest(frames []byte) string {
	h := common.NewHasher()
	h.Write(frames)
	return h.Sum()
}

// SaveMissionPDF writes a briefing for plan: route legs, areas and a QR code
// of the frame digest.
func SaveMissionPDF(plan *mission.Plan, out string) error {
	pdf, err := missionDocument(plan)
	if err != nil {
		return err
	}
	return pdf.OutputFileAndClose(out)
}

// WriteMissionPDF is SaveMissionPDF to a writer.
func WriteMissionPDF(plan *mission.Plan, w io.Writer) error {
	pdf, err := missionDocument(plan)
	if err != nil {
		return err
	}
	return pdf.Output(w)
}

func missionDocument(plan *mission.Plan) (*gofpdf.Fpdf, error) {
	frames, err := plan.Encode()
	if err != nil {
		return nil, err
	}
	digest := FrameDigest(frames)

	title := "Mission Briefing"
	if plan.Name != "" {
		title += ": " + plan.Name
	}
	pdf := newDocument(title)

	addSectionTitle(pdf, "Summary")
	route := plan.RoutePoints()
	addKeyValues(pdf, []labeled{
		{"Board", strconv.FormatUint(uint64(plan.Board), 10)},
		{"Source", plan.Source.String()},
		{"Frames", strconv.Itoa(len(plan.Elements()))},
		{"Encoded Size", common.FormatBytes(int64(len(frames)))},
		{"Route Length", fmt.Sprintf("%.0f m", geo.RouteLength(route))},
	})

	if err := addDigestQR(pdf, digest); err != nil {
		return nil, err
	}
	if len(plan.Route) > 0 {
		addRouteSection(pdf, plan.Route)
	}
	if plan.Hold != nil {
		addSectionTitle(pdf, "Hold Point")
		addKeyValues(pdf, []labeled{
			{"Position", formatCoords(plan.Hold.Point)},
			{"Radius", fmt.Sprintf("%d m", plan.Hold.HoldRadius)},
			{"Time", fmt.Sprintf("%d s", plan.Hold.HoldTime)},
		})
	}
	if plan.Afs != nil {
		addAreaSection(pdf, "AFS Survey Area", plan.Afs.Points, []labeled{
			{"Altitude", fmt.Sprintf("%.0f m", plan.Afs.Altitude)},
			{"Overlap", fmt.Sprintf("%d%% across, %d%% along", plan.Afs.CrossOverlap, plan.Afs.AlongOverlap)},
			{"Resolution", resolutionLabel(plan.Afs.Resolution)},
		})
	}
	if plan.Rln != nil {
		addAreaSection(pdf, "RLN Survey Area", plan.Rln.Points, []labeled{
			{"Altitude", fmt.Sprintf("%.0f m above surface", plan.Rln.Altitude)},
			{"Overlap", fmt.Sprintf("%d%%", plan.Rln.Overlap)},
			{"Pass Spacing", fmt.Sprintf("%d m", plan.Rln.Distance)},
		})
	}
	if plan.Group != nil {
		addSectionTitle(pdf, "Group Flight")
		addKeyValues(pdf, []labeled{
			{"Mode", plan.Group.Mode.String()},
			{"Master", strconv.FormatBool(plan.Group.Master)},
			{"Offset", fmt.Sprintf("x %d m, y %d m, z %d m", plan.Group.DistancingX, plan.Group.DistancingY, plan.Group.DistancingZ)},
		})
	}
	if pdf.Err() {
		return nil, pdf.Error()
	}
	return pdf, nil
}

func addDigestQR(pdf *gofpdf.Fpdf, digest string) error {
	png, err := FrameDigestQR(digest, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("frame-digest", opts, bytes.NewReader(png))
	x, y := pdf.GetX(), pdf.GetY()
	pdf.ImageOptions("frame-digest", x, y, qrSizeMM, qrSizeMM, false, opts, 0, "")
	pdf.SetXY(x+qrSizeMM+5, y+qrSizeMM/2-4)
	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, "SHA-256 of encoded frames\n"+digest, "", "L", false)
	pdf.SetXY(x, y+qrSizeMM+6)
	return nil
}

func addRouteSection(pdf *gofpdf.Fpdf, route protocol.Route) {
	addSectionTitle(pdf, "Route")
	widths := []float64{12, 52, 20, 26, 28, 42}
	addTableHeader(pdf, []string{"#", "Position", "Alt m", "Leg m", "Azimuth", "Hold"}, widths)
	points := make([]geo.Coords, len(route))
	for i, fp := range route {
		points[i] = fp.Point
	}
	legs := geo.RouteLegs(points)
	for i, fp := range route {
		leg, az := "-", "-"
		if i > 0 {
			leg = fmt.Sprintf("%.0f", legs[i-1].Distance)
			az = fmt.Sprintf("%.1f deg", legs[i-1].Azimuth)
		}
		hold := "-"
		if fp.HoldRadius > 0 || fp.HoldTime > 0 {
			hold = fmt.Sprintf("r %d m, %d s", fp.HoldRadius, fp.HoldTime)
		}
		renderTableRow(pdf, widths, []string{
			strconv.Itoa(int(fp.Point.Num)),
			formatCoords(fp.Point),
			fmt.Sprintf("%.0f", fp.Point.Alt),
			leg,
			az,
			hold,
		}, 5)
	}
	pdf.Ln(4)
}

func addAreaSection(pdf *gofpdf.Fpdf, title string, points []geo.Coords, extra []labeled) {
	addSectionTitle(pdf, title)
	ring := append(append([]geo.Coords(nil), points...), points[0])
	items := append([]labeled{
		{"Vertices", strconv.Itoa(len(points))},
		{"Perimeter", fmt.Sprintf("%.0f m", geo.RouteLength(ring))},
	}, extra...)
	addKeyValues(pdf, items)
}

func formatCoords(c geo.Coords) string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lon)
}

func resolutionLabel(cmPerPixel uint16) string {
	if cmPerPixel == 0 {
		return "payload default"
	}
	return fmt.Sprintf("%d cm/px", cmPerPixel)
}
