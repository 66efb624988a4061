package service

import (
	"sort"
	"strings"

	"incident_portal_backend/internal/workers/repository"
)

// MatchWeights holds the tuning knobs for the composite name score. The
// values are empirically chosen and configurable; nothing here assumes they
// are optimal.
type MatchWeights struct {
	GivenNameBonus float64
	PhoneticBonus  float64
}

// candidate is a scored worker produced during matching. exact records
// whether the spoken name equals the worker's name after normalization;
// only exact candidates may auto-match.
type candidate struct {
	worker repository.Worker
	score  float64
	exact  bool
}

const (
	givenNameWeight  = 0.4
	familyNameWeight = 0.6
	minUsableScore   = 0.5
	phoneticCodeLen  = 6
)

// splitSpokenName splits a transcribed name into given and family parts:
// first token is the given name, the remainder joined is the family name.
func splitSpokenName(spoken string) (given, family string) {
	tokens := strings.Fields(spoken)
	if len(tokens) == 0 {
		return "", ""
	}
	given = tokens[0]
	if len(tokens) > 1 {
		family = strings.Join(tokens[1:], " ")
	}
	return given, family
}

// scoreWorkers scores every worker with a non-empty name against the spoken
// name and returns usable candidates sorted by descending confidence.
func scoreWorkers(spoken string, workers []repository.Worker, weights MatchWeights) []candidate {
	given, family := splitSpokenName(spoken)
	spokenFull := normalizeName(spoken)

	var candidates []candidate
	for _, w := range workers {
		if w.FullName() == "" {
			continue
		}
		score := scoreName(spokenFull, given, family, w, weights)
		if score > minUsableScore {
			candidates = append(candidates, candidate{
				worker: w,
				score:  score,
				exact:  spokenFull == normalizeName(w.FullName()),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return candidates
}

func scoreName(spokenFull, given, family string, w repository.Worker, weights MatchWeights) float64 {
	workerFull := normalizeName(w.FullName())
	if spokenFull == workerFull {
		return 1.0
	}

	givenSim := similarity(strings.ToLower(given), strings.ToLower(strings.TrimSpace(w.FirstName)))
	familySim := similarity(strings.ToLower(family), strings.ToLower(strings.TrimSpace(w.LastName)))

	fullSim := similarity(spokenFull, workerFull)
	weighted := givenNameWeight*givenSim + familyNameWeight*familySim

	phonetic := (givenSim + familySim) / 2
	if phoneticCode(spokenFull) == phoneticCode(workerFull) {
		phonetic += weights.PhoneticBonus
	}

	score := max3(fullSim, weighted, phonetic)

	if given != "" && strings.EqualFold(given, strings.TrimSpace(w.FirstName)) {
		score += weights.GivenNameBonus
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// NameSimilarity scores two free-text names after whitespace and case
// normalization. Other modules use it for registry lookups (employers,
// sites) where the full candidate scoring above would be overkill.
func NameSimilarity(a, b string) float64 {
	return similarity(normalizeName(a), normalizeName(b))
}

// normalizeName lowercases and collapses whitespace for comparison.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// similarity is a normalized edit-distance measure. It is symmetric, returns
// 1.0 for identical non-empty strings and 0 when either string is empty.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}

	dist := levenshtein(a, b)
	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	return 1.0 - float64(dist)/float64(longer)
}

func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

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
			curr[j] = minInt(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// phoneticCode reduces a name to a 6-character code: common silent-letter
// digraphs are folded, vowels stripped, spaces removed.
func phoneticCode(name string) string {
	s := strings.ToLower(strings.ReplaceAll(name, " ", ""))

	replacer := strings.NewReplacer(
		"ph", "f",
		"ck", "k",
		"gh", "g",
		"wr", "r",
		"kn", "n",
		"wh", "w",
	)
	s = replacer.Replace(s)

	var b strings.Builder
	for _, r := range s {
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			continue
		default:
			b.WriteRune(r)
		}
	}

	code := b.String()
	if len(code) > phoneticCodeLen {
		code = code[:phoneticCodeLen]
	}
	return code
}

func minInt(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
