package fieldconv

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"collection-sync/internal/core/schema"
)

// DefaultDurationFormat is used when the source property carries none.
const DefaultDurationFormat = "h:mm"

// FormatDuration renders seconds as h:mm[:ss[.fraction]]. The fraction width
// is the number of S characters in format (at most 3). Lower precision
// truncates rather than rounds.
func FormatDuration(seconds float64, format string) (string, error) {
	if format == "" {
		format = DefaultDurationFormat
	}
	withSeconds := false
	frac := 0
	switch {
	case format == "h:mm":
	case format == "h:mm:ss":
		withSeconds = true
	case strings.HasPrefix(format, "h:mm:ss."):
		withSeconds = true
		tail := strings.TrimPrefix(format, "h:mm:ss.")
		if tail == "" || len(tail) > 3 || strings.Trim(tail, "S") != "" {
			return "", fmt.Errorf("unsupported duration format %q", format)
		}
		frac = len(tail)
	default:
		return "", fmt.Errorf("unsupported duration format %q", format)
	}

	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	scale := math.Pow10(frac)
	// Work in integer units of the finest printed precision.
	units := int64(math.Floor(seconds*scale + 1e-9))
	unitsPerSecond := int64(scale)
	whole := units / unitsPerSecond
	fraction := units % unitsPerSecond

	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	if !withSeconds {
		return fmt.Sprintf("%s%d:%02d", sign, h, m), nil
	}
	out := fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
	if frac > 0 {
		out += fmt.Sprintf(".%0*d", frac, fraction)
	}
	return out, nil
}

func durationString(raw json.RawMessage, c Context) (schema.Value, error) {
	f, ok, err := decode[float64](raw)
	if !ok {
		return nil, err
	}
	s, err := FormatDuration(f, c.Property.Format)
	if err != nil {
		return nil, err
	}
	return schema.Str(s), nil
}
