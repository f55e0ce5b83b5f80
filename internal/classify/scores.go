package classify

import "sort"

// Scores accumulates points per target id. A missing id scores zero.
type Scores map[string]int

func (s Scores) Add(id string, points int) {
	s[id] += points
}

func (s Scores) Get(id string) int {
	return s[id]
}

// Ranked is one entry of a sorted score table.
type Ranked struct {
	ID    string
	Score int
}

// Ranked sorts targets by score descending, then id ascending, so the order
// never depends on map iteration.
func (s Scores) Ranked() []Ranked {
	out := make([]Ranked, 0, len(s))
	for id, score := range s {
		out = append(out, Ranked{ID: id, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// top returns the ids sharing the highest positive score.
func (s Scores) top() ([]Ranked, bool) {
	ranked := s.Ranked()
	if len(ranked) == 0 || ranked[0].Score <= 0 {
		return nil, false
	}
	n := 1
	for n < len(ranked) && ranked[n].Score == ranked[0].Score {
		n++
	}
	return ranked[:n], true
}
