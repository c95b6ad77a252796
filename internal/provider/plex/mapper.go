package plex

import (
	"fmt"
	"time"

	"github.com/flixor/flixor/internal/domain"
)

func mapMediaType(s string) domain.MediaType {
	switch s {
	case "show":
		return domain.MediaTypeShow
	case "season":
		return domain.MediaTypeSeason
	case "episode":
		return domain.MediaTypeEpisode
	default:
		return domain.MediaTypeMovie
	}
}

// anyToString flattens librarySectionID, which Plex reports as a number on
// some endpoints and a string on others.
func anyToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func mapMediaItem(m metadataItem) domain.MediaItem {
	item := domain.MediaItem{
		RatingKey:  m.RatingKey,
		Title:      m.Title,
		LibraryID:  anyToString(m.LibrarySectionID),
		Summary:    m.Summary,
		Year:       m.Year,
		AddedAt:    m.AddedAt,
		Duration:   time.Duration(m.Duration) * time.Millisecond,
		ViewOffset: time.Duration(m.ViewOffset) * time.Millisecond,
		IsPlayed:   m.ViewCount > 0,
		Type:       mapMediaType(m.Type),
		ShowTitle:  m.GrandparentTitle,
		SeasonNum:  m.ParentIndex,
		EpisodeNum: m.Index,
		ThumbURL:   m.Thumb,
		ArtURL:     m.Art,
	}

	if len(m.Media) > 0 {
		media := m.Media[0]
		item.Bitrate = media.Bitrate
		item.Width = media.Width
		item.Height = media.Height
		item.VideoCodec = media.VideoCodec
		item.AudioCodec = media.AudioCodec
		item.AudioChannels = media.AudioChannels
		item.Container = media.Container
		if len(media.Part) > 0 {
			item.PartKey = media.Part[0].Key
		}
	}

	return item
}

func mapMediaItems(items []metadataItem) []domain.MediaItem {
	out := make([]domain.MediaItem, 0, len(items))
	for _, m := range items {
		out = append(out, mapMediaItem(m))
	}
	return out
}
