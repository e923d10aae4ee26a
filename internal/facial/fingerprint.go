package facial

import "context"

// Template is one enrolled fingerprint template.
type Template struct {
	EmployeeID int64
	Data       string
}

// TemplateStore lists the enrolled templates of active employees.
type TemplateStore interface {
	ActiveTemplates(ctx context.Context) ([]*Template, error)
}

// StaticTemplates is a fixed in-memory TemplateStore.
type StaticTemplates []*Template

func (s StaticTemplates) ActiveTemplates(ctx context.Context) ([]*Template, error) {
	return s, nil
}

// Similarity scores two templates in [0,1]. The trigram overlap here is
// a stand-in contract, not a real biometric comparator; a production
// matcher slots in behind BestMatch without touching the punch gate.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ga, gb := trigrams(a), trigrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	shared := 0
	for g := range ga {
		if gb[g] {
			shared++
		}
	}
	union := len(ga) + len(gb) - shared
	return float64(shared) / float64(union)
}

func trigrams(s string) map[string]bool {
	out := make(map[string]bool)
	for i := 0; i+3 <= len(s); i++ {
		out[s[i:i+3]] = true
	}
	return out
}

// BestMatch compares the sample against every template and returns the
// highest-scoring match at or above threshold. Ties break by score, so
// enrollment order never decides the winner.
func BestMatch(templates []*Template, sample string, threshold float64) (Match, bool) {
	var best Match
	for _, t := range templates {
		score := Similarity(t.Data, sample)
		if score < threshold {
			continue
		}
		if !best.Recognized || score > best.Similarity {
			best = Match{EmployeeID: t.EmployeeID, Similarity: score, Recognized: true}
		}
	}
	return best, best.Recognized
}
