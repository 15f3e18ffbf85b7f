package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// FrameDigestQR encodes the hex digest of a frame stream as a QR code PNG.
// Ground crews scan it to confirm the board received the briefed frames.
func FrameDigestQR(digest string, size int) ([]byte, error) {
	normalized := sanitizeHex(digest)
	if normalized == "" {
		return nil, fmt.Errorf("frame digest is empty")
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(normalized, qrcode.Medium, size)
}

func sanitizeHex(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range upper {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
