// Package search ranks and narrows title search results.
package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/flixor/flixor/internal/domain"
)

// Rank orders items by how well their titles match the query. Exact
// matches sort first, then prefix matches, then substring matches, then
// everything else by edit distance. Ties keep the provider's order.
func Rank(items []domain.MediaItem, query string) []domain.MediaItem {
	if len(items) == 0 || query == "" {
		return items
	}

	query = strings.ToLower(query)

	type rankedItem struct {
		item  domain.MediaItem
		score int
	}

	ranked := make([]rankedItem, 0, len(items))
	for _, item := range items {
		title := strings.ToLower(item.Title)
		ranked = append(ranked, rankedItem{item: item, score: matchScore(title, query, item)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score < ranked[j].score
	})

	results := make([]domain.MediaItem, len(ranked))
	for i, r := range ranked {
		results[i] = r.item
	}
	return results
}

// matchScore rates a title against the query. Lower is better.
func matchScore(title, query string, item domain.MediaItem) int {
	if title == query {
		return 0
	}
	if strings.HasPrefix(title, query) {
		return 10
	}
	if strings.Contains(title, query) {
		return 50
	}

	score := 100 + fuzzy.LevenshteinDistance(query, title)

	// Single-word queries usually mean a film, not an episode.
	if len(strings.Fields(query)) == 1 && item.Type == domain.MediaTypeMovie {
		score -= 10
	}

	return score
}

// Narrow keeps only items whose titles fuzzy-match the query, ordered by
// match distance. Matching is case-insensitive and tolerates skipped
// characters, so "brbn" still finds "Barbarian".
func Narrow(items []domain.MediaItem, query string) []domain.MediaItem {
	if query == "" {
		return items
	}

	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Title
	}

	matches := fuzzy.RankFindFold(query, titles)
	sort.Sort(matches)

	results := make([]domain.MediaItem, 0, len(matches))
	for _, match := range matches {
		results = append(results, items[match.OriginalIndex])
	}
	return results
}

// ByType keeps only items of the given media type, preserving order.
func ByType(items []domain.MediaItem, mediaType domain.MediaType) []domain.MediaItem {
	filtered := make([]domain.MediaItem, 0, len(items))
	for _, item := range items {
		if item.Type == mediaType {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
