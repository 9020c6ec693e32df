package characters

import (
	"context"
	"errors"
	"testing"

	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
)

type stubClient struct {
	text    string
	textErr error
}

func (s *stubClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return s.text, s.textErr
}

func (s *stubClient) GenerateMedia(ctx context.Context, req gemini.MediaRequest) (string, error) {
	return "", errors.New("not used")
}

var testSegment = model.Segment{
	ID:      "seg-1",
	Title:   "First Contact",
	Content: "The crew wakes from cryosleep to an unknown signal.",
}

func TestExtractCharactersFailingClientFallsBack(t *testing.T) {
	svc := NewService(&stubClient{textErr: errors.New("network down")})

	chars := svc.ExtractCharacters(context.Background(), testSegment, "scifi")
	if len(chars) != 2 {
		t.Fatalf("expected 2 fallback characters, got %d", len(chars))
	}
	if chars[0].Name != "Captain Nova" || chars[0].Role != "Protagonist" {
		t.Errorf("first fallback = %s (%s)", chars[0].Name, chars[0].Role)
	}
	if chars[1].Name != "Engineer Zeta" || chars[1].Role != "Supporting Character" {
		t.Errorf("second fallback = %s (%s)", chars[1].Name, chars[1].Role)
	}
}

func TestExtractCharactersDeterministicOnRepeatedFailure(t *testing.T) {
	svc := NewService(&stubClient{textErr: errors.New("network down")})
	ctx := context.Background()

	a := svc.ExtractCharacters(ctx, testSegment, "mystery")
	b := svc.ExtractCharacters(ctx, testSegment, "mystery")

	if len(a) == 0 {
		t.Fatal("fallback list must be non-empty")
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Description != b[i].Description {
			t.Errorf("repeated fallback differs at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestExtractCharactersMalformedResponseFallsBack(t *testing.T) {
	svc := NewService(&stubClient{text: "I could not find any characters, sorry!"})

	chars := svc.ExtractCharacters(context.Background(), testSegment, "romance")
	if len(chars) != 2 {
		t.Fatalf("expected fallback pair, got %d", len(chars))
	}
	if chars[0].Name != "Taylor" {
		t.Errorf("expected romance fallback, got %s", chars[0].Name)
	}
}

func TestExtractCharactersValidResponse(t *testing.T) {
	svc := NewService(&stubClient{text: `[
		{"name": "Mira", "description": "The signal analyst", "traits": ["sharp"], "role": "Protagonist"},
		{"name": "Dex", "description": "The reluctant pilot", "traits": ["dry"], "role": "Supporting Character"}
	]`})

	chars := svc.ExtractCharacters(context.Background(), testSegment, "scifi")
	if len(chars) != 2 {
		t.Fatalf("expected 2 characters, got %d", len(chars))
	}
	if chars[0].Name != "Mira" || chars[1].Name != "Dex" {
		t.Errorf("names = %s, %s", chars[0].Name, chars[1].Name)
	}
	if chars[0].ID == "" || chars[0].ID == chars[1].ID {
		t.Errorf("characters must get distinct generated ids")
	}
}

func TestSkipCharactersYieldsFallback(t *testing.T) {
	svc := NewService(&stubClient{text: "ignored"})

	chars := svc.SkipCharacters(testSegment, "adventure")
	if len(chars) != 2 || chars[0].Name != "Explorer Max" {
		t.Errorf("skip should synthesize fallback characters, got %+v", chars)
	}
}
