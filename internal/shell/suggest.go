package shell

import "strings"

var questionWords = map[string]bool{
	"how": true, "what": true, "why": true, "when": true, "where": true, "who": true,
	"can": true, "could": true, "would": true, "is": true, "are": true,
}

// looksLikeQuestion reports whether an unmatched line reads as natural
// language: it ends in `?`, opens with a question word, or runs past four
// words.
func looksLikeQuestion(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if strings.HasSuffix(lower, "?") {
		return true
	}
	words := strings.Fields(lower)
	if len(words) == 0 {
		return false
	}
	return questionWords[words[0]] || len(words) > 4
}

// closest returns the candidate nearest to name and its edit distance.
// Candidates are expected sorted so ties resolve alphabetically.
func closest(name string, candidates []string) (string, int) {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
