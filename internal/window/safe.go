package window

import (
	"strings"

	"github.com/amanullahtanweer/windowed-transcriber/internal/transcriber"
)

// SelectSafe keeps the words whose temporal centre falls inside the window's
// trusted interval. Both ends are inclusive; words without timestamps are
// dropped. Order is preserved.
func SelectSafe(words []transcriber.Word, offset float64, geom Geometry) []transcriber.Word {
	lo := offset + geom.SafeStart
	hi := offset + geom.SafeEnd

	var safe []transcriber.Word
	for _, w := range words {
		mid, ok := w.Midpoint()
		if !ok {
			continue
		}
		if g := mid + offset; g >= lo && g <= hi {
			safe = append(safe, w)
		}
	}
	return safe
}

// JoinText concatenates word texts as produced by the engine (tokens carry
// their own leading space) and trims the result.
func JoinText(words []transcriber.Word) string {
	var sb strings.Builder
	for _, w := range words {
		sb.WriteString(w.Text)
	}
	return strings.TrimSpace(sb.String())
}
