package calculator

import (
	"strconv"
	"strings"
)

const (
	mutezPerTez   = 1_000_000
	mutezPerMilli = 1_000
)

// FormatTez renders a mutez amount in tez with at most three decimals and
// thousands separators, e.g. 1234567890 -> "1,234.568 ꜩ".
func FormatTez(mutez uint64) string {
	millitez := mutez / mutezPerMilli
	if mutez%mutezPerMilli >= mutezPerMilli/2 {
		millitez++
	}

	whole := strconv.FormatUint(millitez/(mutezPerTez/mutezPerMilli), 10)
	frac := millitez % (mutezPerTez / mutezPerMilli)

	var sb strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}

	if frac > 0 {
		fracStr := strconv.FormatUint(frac+1000, 10)[1:]
		sb.WriteByte('.')
		sb.WriteString(strings.TrimRight(fracStr, "0"))
	}

	sb.WriteString(" ꜩ")

	return sb.String()
}
