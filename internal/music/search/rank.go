package search

import (
	"slices"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"nabra/internal/music/track"
)

// Rank orders entries by how closely "uploader title" matches the query.
// Ties keep provider order.
func Rank(query string, entries []track.Entry) []track.Entry {
	return rankBy(query, entries, func(e track.Entry) string {
		return e.Uploader + " " + e.Title
	})
}

func rankBy[T any](query string, items []T, key func(T) string) []T {
	if len(items) < 2 {
		return slices.Clone(items)
	}
	q := normalize(query)
	jw := metrics.NewJaroWinkler()
	jw.CaseSensitive = false

	type scored struct {
		item  T
		score float64
	}
	ranked := make([]scored, len(items))
	for i, it := range items {
		k := normalize(key(it))
		score := strutil.Similarity(q, k, jw)
		// a query fully contained in the candidate is a strong signal
		if q != "" && strings.Contains(k, q) {
			score += 0.5
		}
		ranked[i] = scored{item: it, score: score}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	out := make([]T, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}
