package match

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Similarity returns the Sørensen-Dice coefficient over character bigrams of
// the two normalized strings, in [0, 1]. Deterministic: equal inputs always
// produce equal scores, which keeps rerun matching idempotent.
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 1
	}
	if utf8.RuneCountInString(a) < 2 || utf8.RuneCountInString(b) < 2 {
		return 0
	}

	bigramsA, totalA := bigrams(a)
	bigramsB, totalB := bigrams(b)

	var overlap int
	for gram, count := range bigramsA {
		if other, ok := bigramsB[gram]; ok {
			if other < count {
				count = other
			}
			overlap += count
		}
	}

	return 2 * float64(overlap) / float64(totalA+totalB)
}

// normalize case-folds and strips everything but letters, digits and single
// separating spaces.
func normalize(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			builder.WriteRune(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(builder.String())
}

func bigrams(s string) (map[string]int, int) {
	grams := make(map[string]int, len(s))
	runes := []rune(s)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams, len(runes) - 1
}
