package compose_test

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"streamlapse/internal/compose"
)

func source(title string) compose.Source {
	return compose.Source{
		Title:     title,
		URL:       "https://www.youtube.com/watch?v=abc123",
		StartTime: time.Date(2025, 4, 18, 6, 0, 0, 0, time.UTC),
	}
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	first := compose.Generate(source("Morning Storm Watch"), rand.New(rand.NewSource(7)))
	second := compose.Generate(source("Morning Storm Watch"), rand.New(rand.NewSource(7)))
	if first.Title != second.Title || first.Description != second.Description {
		t.Fatalf("same seed should produce same metadata:\n%#v\n%#v", first, second)
	}
}

func TestGenerateMatchesStormMood(t *testing.T) {
	meta := compose.Generate(source("Thunder rolling in over the bay"), rand.New(rand.NewSource(1)))
	if len(meta.Tags) != 2 || meta.Tags[1] != "storm" {
		t.Fatalf("expected storm mood tag, got %v", meta.Tags)
	}
}

func TestGenerateFallsBackToCalmMood(t *testing.T) {
	meta := compose.Generate(source("Quiet harbour cam"), rand.New(rand.NewSource(1)))
	if len(meta.Tags) != 2 || meta.Tags[1] != "calm" {
		t.Fatalf("expected calm fallback tag, got %v", meta.Tags)
	}
}

func TestGenerateIncludesDateAndLinkBack(t *testing.T) {
	meta := compose.Generate(source("Sunset over the ridge"), rand.New(rand.NewSource(3)))
	if !strings.Contains(meta.Title, "Apr 18, 2025") {
		t.Fatalf("expected stream date in title, got %q", meta.Title)
	}
	if !strings.Contains(meta.Description, "https://www.youtube.com/watch?v=abc123") {
		t.Fatalf("expected source url in description, got %q", meta.Description)
	}
	if !strings.Contains(meta.Description, "Sunset over the ridge") {
		t.Fatalf("expected stream title in description, got %q", meta.Description)
	}
}
