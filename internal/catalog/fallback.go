package catalog

import (
	"strings"

	"golang.org/x/text/cases"

	"radiowave/internal/models"
)

// fallbackCatalog mirrors the guaranteed results the service shipped with
// before the resolver existed. These URLs are stable, public videos.
var fallbackCatalog = []models.Track{
	{
		ID:        "kJQP7kiw5Fk",
		Title:     "Despacito",
		Artist:    "Luis Fonsi",
		URL:       "https://www.youtube.com/watch?v=kJQP7kiw5Fk",
		Duration:  280,
		Thumbnail: "https://i.ytimg.com/vi/kJQP7kiw5Fk/hqdefault.jpg",
	},
	{
		ID:        "JGwWNGJdvx8",
		Title:     "Shape of You",
		Artist:    "Ed Sheeran",
		URL:       "https://www.youtube.com/watch?v=JGwWNGJdvx8",
		Duration:  234,
		Thumbnail: "https://i.ytimg.com/vi/JGwWNGJdvx8/hqdefault.jpg",
	},
	{
		ID:        "60ItHLz5WEA",
		Title:     "Blinding Lights",
		Artist:    "The Weeknd",
		URL:       "https://www.youtube.com/watch?v=60ItHLz5WEA",
		Duration:  203,
		Thumbnail: "https://i.ytimg.com/vi/60ItHLz5WEA/hqdefault.jpg",
	},
}

var queryFolder = cases.Fold()

// FallbackTracks returns fallback catalog entries matching the query by
// case-folded substring against title and artist. An empty query, or one with
// no matches, yields the first two entries so callers always get results.
func FallbackTracks(query string) []models.Track {
	folded := queryFolder.String(strings.TrimSpace(query))
	if folded != "" {
		matched := make([]models.Track, 0, len(fallbackCatalog))
		for _, track := range fallbackCatalog {
			if strings.Contains(queryFolder.String(track.Title), folded) ||
				strings.Contains(queryFolder.String(track.Artist), folded) {
				matched = append(matched, track)
			}
		}
		if len(matched) > 0 {
			return matched
		}
	}
	out := make([]models.Track, 2)
	copy(out, fallbackCatalog[:2])
	return out
}
