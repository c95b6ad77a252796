package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flixor/flixor/internal/domain"
)

func movie(title string) domain.MediaItem {
	return domain.MediaItem{Title: title, Type: domain.MediaTypeMovie}
}

func episode(title string) domain.MediaItem {
	return domain.MediaItem{Title: title, Type: domain.MediaTypeEpisode}
}

func titles(items []domain.MediaItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Title
	}
	return out
}

func TestRank(t *testing.T) {
	t.Run("exact before prefix before substring", func(t *testing.T) {
		items := []domain.MediaItem{
			movie("The Heat of the Night"),
			movie("Heathers"),
			movie("Heat"),
		}

		got := Rank(items, "heat")

		assert.Equal(t, []string{"Heat", "Heathers", "The Heat of the Night"}, titles(got))
	})

	t.Run("case insensitive", func(t *testing.T) {
		items := []domain.MediaItem{movie("RONIN"), movie("Ronin 2")}

		got := Rank(items, "ronin")

		assert.Equal(t, "RONIN", got[0].Title)
	})

	t.Run("single word query boosts movies over episodes", func(t *testing.T) {
		// Neither title matches outright, so both land in the
		// edit-distance band where the movie boost decides.
		items := []domain.MediaItem{
			episode("Alich"),
			movie("Alich"),
		}

		got := Rank(items, "alien")

		assert.Equal(t, domain.MediaTypeMovie, got[0].Type)
		assert.Equal(t, domain.MediaTypeEpisode, got[1].Type)
	})

	t.Run("multi word query ranks movies and episodes alike", func(t *testing.T) {
		items := []domain.MediaItem{
			episode("Blue Harvest"),
			movie("Blue Harvers"),
		}

		got := Rank(items, "blue harvest")

		assert.Equal(t, "Blue Harvest", got[0].Title)
	})

	t.Run("ties keep provider order", func(t *testing.T) {
		items := []domain.MediaItem{
			movie("Heat 1995"),
			movie("Heat 2013"),
		}

		got := Rank(items, "heat")

		assert.Equal(t, []string{"Heat 1995", "Heat 2013"}, titles(got))
	})

	t.Run("empty query is a passthrough", func(t *testing.T) {
		items := []domain.MediaItem{movie("Ran"), movie("Heat")}

		got := Rank(items, "")

		assert.Equal(t, []string{"Ran", "Heat"}, titles(got))
	})

	t.Run("empty input stays empty", func(t *testing.T) {
		assert.Empty(t, Rank(nil, "heat"))
	})
}

func TestNarrow(t *testing.T) {
	t.Run("drops non matches", func(t *testing.T) {
		items := []domain.MediaItem{
			movie("Barbarian"),
			movie("Heat"),
			movie("Barbie"),
		}

		got := Narrow(items, "barb")

		assert.Equal(t, []string{"Barbie", "Barbarian"}, titles(got))
	})

	t.Run("matches skipped characters", func(t *testing.T) {
		items := []domain.MediaItem{
			movie("Heat"),
			movie("Barbarian"),
		}

		got := Narrow(items, "brbn")

		assert.Equal(t, []string{"Barbarian"}, titles(got))
	})

	t.Run("case insensitive", func(t *testing.T) {
		items := []domain.MediaItem{movie("RONIN")}

		got := Narrow(items, "ronin")

		assert.Len(t, got, 1)
	})

	t.Run("duplicate titles both survive", func(t *testing.T) {
		items := []domain.MediaItem{
			{Title: "Heat", Type: domain.MediaTypeMovie, RatingKey: "1"},
			{Title: "Heat", Type: domain.MediaTypeMovie, RatingKey: "2"},
		}

		got := Narrow(items, "heat")

		assert.Len(t, got, 2)
		assert.NotEqual(t, got[0].RatingKey, got[1].RatingKey)
	})

	t.Run("empty query is a passthrough", func(t *testing.T) {
		items := []domain.MediaItem{movie("Ran")}

		assert.Equal(t, items, Narrow(items, ""))
	})
}

func TestByType(t *testing.T) {
	items := []domain.MediaItem{
		movie("Heat"),
		episode("Pilot"),
		movie("Ronin"),
	}

	got := ByType(items, domain.MediaTypeMovie)

	assert.Equal(t, []string{"Heat", "Ronin"}, titles(got))
	assert.Empty(t, ByType(items, domain.MediaTypeSeason))
}
