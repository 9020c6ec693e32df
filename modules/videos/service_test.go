package videos

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storyreel-server/modules/common/fallback"
	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
)

type stubClient struct {
	url string
	err error
}

func (s *stubClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used in this test")
}

func (s *stubClient) GenerateMedia(ctx context.Context, req gemini.MediaRequest) (string, error) {
	return s.url, s.err
}

var testSegment = model.Segment{ID: "seg-1", Title: "The Chase", Content: "They run through the rain."}

func testChars() []model.Character {
	return []model.Character{
		{ID: "char-1", Name: "Detective Morgan"},
		{ID: "char-2", Name: "Witness Jamie"},
	}
}

func TestGenerateRequiresSelectedPhotos(t *testing.T) {
	svc := NewService(&stubClient{url: "https://cdn.example.com/v.mp4"}, 5)

	_, err := svc.Generate(context.Background(), testSegment, testChars(), nil, "mystery")
	if !errors.Is(err, model.ErrPreconditionNotMet) {
		t.Fatalf("empty photos: got %v, want ErrPreconditionNotMet", err)
	}
}

func TestGenerateFallbackDeterministic(t *testing.T) {
	svc := NewService(&stubClient{err: errors.New("media api down")}, 5)
	photos := []string{"https://cdn.example.com/p1.webp", "https://cdn.example.com/p2.webp"}

	first, err := svc.Generate(context.Background(), testSegment, testChars(), photos, "mystery")
	if err != nil {
		t.Fatalf("fallback path must not error: %v", err)
	}
	second, _ := svc.Generate(context.Background(), testSegment, testChars(), photos, "mystery")

	if len(first) == 0 || len(first) > 5 {
		t.Fatalf("expected 1..5 options, got %d", len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].URL != second[i].URL {
			t.Errorf("option %d not deterministic across runs", i)
		}
		if !strings.HasPrefix(first[i].ID, "seg-1-") {
			t.Errorf("option %d ID %s not scoped to segment", i, first[i].ID)
		}
	}

	want := fallback.VideoOptions("seg-1", 2, "mystery", 5)
	if len(first) != len(want) {
		t.Fatalf("expected %d pool options, got %d", len(want), len(first))
	}
}

func TestGenerateSuccessPadsWithPool(t *testing.T) {
	svc := NewService(&stubClient{url: "https://cdn.example.com/v.mp4"}, 3)
	photos := []string{"https://cdn.example.com/p1.webp"}

	options, err := svc.Generate(context.Background(), testSegment, testChars(), photos, "mystery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(options) != 3 {
		t.Fatalf("expected maxOptions=3 options, got %d", len(options))
	}
	if options[0].URL != "https://cdn.example.com/v.mp4" {
		t.Errorf("first option should be the generated video, got %s", options[0].URL)
	}
	for i, opt := range options {
		if opt.Selected {
			t.Errorf("option %d: generation must not pre-select", i)
		}
	}
}

func TestSelectMutualExclusion(t *testing.T) {
	bySegment := map[string][]model.VideoOption{
		"seg-1": {
			{ID: "v1", URL: "u1", Selected: true},
			{ID: "v2", URL: "u2"},
		},
	}

	next, err := Select(bySegment, "seg-1", "v2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, opt := range next["seg-1"] {
		if opt.Selected != (opt.ID == "v2") {
			t.Errorf("option %s: selected=%v violates mutual exclusion", opt.ID, opt.Selected)
		}
	}
	if !bySegment["seg-1"][0].Selected {
		t.Errorf("input map mutated by Select")
	}
	if SelectedID(next, "seg-1") != "v2" {
		t.Errorf("SelectedID = %s, want v2", SelectedID(next, "seg-1"))
	}
}

func TestSelectUnknownTargetsReturnNotFound(t *testing.T) {
	bySegment := map[string][]model.VideoOption{
		"seg-1": {{ID: "v1", Selected: true}},
	}

	if _, err := Select(bySegment, "seg-9", "v1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown segment: got %v, want ErrNotFound", err)
	}
	if _, err := Select(bySegment, "seg-1", "v9"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown video: got %v, want ErrNotFound", err)
	}
	if !bySegment["seg-1"][0].Selected {
		t.Errorf("failed Select must leave existing selection intact")
	}
}
