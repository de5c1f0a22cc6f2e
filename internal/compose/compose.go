// Package compose generates upload titles and descriptions for finished
// timelapses. Wording is picked from small mood-keyed template sets so the
// channel's uploads do not all read identically; callers pass the random
// source so runs can be made deterministic in tests.
package compose

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Source describes the stream a timelapse was produced from.
type Source struct {
	Title     string
	URL       string
	StartTime time.Time
}

// Metadata carries the generated upload fields.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
}

type mood struct {
	name     string
	keywords []string
	titles   []string
	leads    []string
}

// Template verbs reference the day of the stream; the %s slot takes the
// formatted date.
var moods = []mood{
	{
		name:     "storm",
		keywords: []string{"storm", "thunder", "rain", "lightning", "wind"},
		titles: []string{
			"Storm Day in Minutes (%s)",
			"A Whole Storm, Sped Up (%s)",
			"Watching the Weather Turn (%s)",
		},
		leads: []string{
			"Hours of rough weather condensed into a few minutes.",
			"The whole storm front passing through, start to finish.",
		},
	},
	{
		name:     "sunrise",
		keywords: []string{"sunrise", "dawn", "morning"},
		titles: []string{
			"Sunrise to Midday in Minutes (%s)",
			"Morning Light Timelapse (%s)",
		},
		leads: []string{
			"The morning unfolding faster than it ever does in person.",
			"First light to full day in one sitting.",
		},
	},
	{
		name:     "sunset",
		keywords: []string{"sunset", "dusk", "evening", "golden hour"},
		titles: []string{
			"Chasing the Sunset (%s)",
			"Evening Sky Timelapse (%s)",
			"Daylight Fading Fast (%s)",
		},
		leads: []string{
			"The evening sky doing its whole show in a few minutes.",
			"Golden hour and everything after it, sped up.",
		},
	},
	{
		name:     "calm",
		keywords: nil,
		titles: []string{
			"A Full Day in Minutes (%s)",
			"Daily Timelapse (%s)",
			"The Day, Sped Up (%s)",
		},
		leads: []string{
			"An entire stream condensed into a short timelapse.",
			"Hours of footage compressed into minutes.",
		},
	},
}

var titleCaser = cases.Title(language.English)

// Generate builds upload metadata for one timelapse. The same seed over
// the same source always produces the same metadata.
func Generate(source Source, rng *rand.Rand) Metadata {
	selected := matchMood(source.Title)
	date := source.StartTime.Format("Jan 2, 2006")

	title := fmt.Sprintf(selected.titles[rng.Intn(len(selected.titles))], date)
	title = titleCaser.String(title)

	var description strings.Builder
	description.WriteString(selected.leads[rng.Intn(len(selected.leads))])
	description.WriteString("\n\n")
	if streamTitle := strings.TrimSpace(source.Title); streamTitle != "" {
		fmt.Fprintf(&description, "From the livestream: %s\n", streamTitle)
	}
	if url := strings.TrimSpace(source.URL); url != "" {
		fmt.Fprintf(&description, "Original stream: %s\n", url)
	}

	return Metadata{
		Title:       title,
		Description: description.String(),
		Tags:        []string{"timelapse", selected.name},
	}
}

func matchMood(title string) mood {
	lowered := strings.ToLower(title)
	for _, candidate := range moods {
		for _, keyword := range candidate.keywords {
			if strings.Contains(lowered, keyword) {
				return candidate
			}
		}
	}
	// The keywordless calm set is the fallback.
	return moods[len(moods)-1]
}
