package ingest

import (
	"regexp"
	"strings"
)

var nonAlnumRegexp = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeName lowercases a recipe or ingredient name and collapses
// everything that is not a letter or digit to single spaces.
func NormalizeName(name string) string {
	normalized := nonAlnumRegexp.ReplaceAllString(strings.ToLower(name), " ")
	return strings.Join(strings.Fields(normalized), " ")
}

func ingredientSignature(names []string) map[string]struct{} {
	sig := map[string]struct{}{}
	for _, name := range names {
		if n := NormalizeName(name); n != "" {
			sig[n] = struct{}{}
		}
	}
	return sig
}

// instructionStopWords are too common in drink instructions to tell
// recipes apart.
var instructionStopWords = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "into": {}, "then": {}, "for": {},
	"until": {}, "from": {}, "glass": {}, "ice": {}, "over": {},
}

var tokenRegexp = regexp.MustCompile(`[a-z0-9]+`)

func instructionSignature(instructions []string) map[string]struct{} {
	sig := map[string]struct{}{}
	for _, line := range instructions {
		for _, token := range tokenRegexp.FindAllString(strings.ToLower(line), -1) {
			if len(token) < 3 {
				continue
			}
			if _, stop := instructionStopWords[token]; stop {
				continue
			}
			sig[token] = struct{}{}
		}
	}
	return sig
}

// jaccard computes set overlap. Two empty sets count as identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// nameSimilarity is the Ratcliff/Obershelp ratio over two strings:
// twice the total length of recursively matched common substrings over
// the combined length.
func nameSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	matched := matchedChars(a, b)
	return 2.0 * float64(matched) / float64(len(a)+len(b))
}

func matchedChars(a, b string) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchedChars(a[:ai], b[:bi])
	total += matchedChars(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonSubstring(a, b string) (ai, bi, size int) {
	// lengths[j] tracks the common suffix length ending at b[j-1] for the
	// previous row of a.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					ai = i - size
					bi = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return ai, bi, size
}
