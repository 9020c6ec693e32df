package fallback

import (
	"strings"
	"testing"
)

func TestCharactersThemeTable(t *testing.T) {
	tests := []struct {
		theme       string
		protagonist string
		supporting  string
	}{
		{"scifi", "Captain Nova", "Engineer Zeta"},
		{"Sci-Fi Epic", "Captain Nova", "Engineer Zeta"},
		{"grand adventure", "Explorer Max", "Guide Sam"},
		{"romance", "Taylor", "Riley"},
		{"mystery", "Detective Morgan", "Witness Jamie"},
		{"detective noir", "Detective Morgan", "Witness Jamie"},
		{"cooking show", "Alex", "Jordan"},
		{"", "Alex", "Jordan"},
	}

	for _, tt := range tests {
		chars := Characters("Opening", tt.theme)
		if len(chars) != 2 {
			t.Fatalf("theme %q: expected 2 characters, got %d", tt.theme, len(chars))
		}
		if chars[0].Name != tt.protagonist || chars[0].Role != "Protagonist" {
			t.Errorf("theme %q: protagonist = %s (%s), want %s", tt.theme, chars[0].Name, chars[0].Role, tt.protagonist)
		}
		if chars[1].Name != tt.supporting || chars[1].Role != "Supporting Character" {
			t.Errorf("theme %q: supporting = %s (%s), want %s", tt.theme, chars[1].Name, chars[1].Role, tt.supporting)
		}
	}
}

func TestCharactersDeterministic(t *testing.T) {
	a := Characters("The Heist", "mystery")
	b := Characters("The Heist", "mystery")

	for i := range a {
		if a[i].Name != b[i].Name || a[i].Description != b[i].Description || a[i].Role != b[i].Role {
			t.Errorf("characters differ between identical invocations: %+v vs %+v", a[i], b[i])
		}
		if a[i].ID == b[i].ID {
			t.Errorf("IDs must be freshly generated per invocation")
		}
	}

	if !strings.Contains(a[0].Description, "The Heist") {
		t.Errorf("description should embed segment title, got %q", a[0].Description)
	}
}

func TestPhotoOptionsDeterministic(t *testing.T) {
	a := PhotoOptions("char-1", "cinematic", 3)
	b := PhotoOptions("char-1", "cinematic", 3)

	if len(a) != 3 {
		t.Fatalf("expected 3 options, got %d", len(a))
	}

	for i := range a {
		if a[i].URL != b[i].URL || a[i].ID != b[i].ID {
			t.Errorf("option %d differs between identical invocations", i)
		}
		if a[i].Selected != (i == 0) {
			t.Errorf("option %d: selected = %v, want %v", i, a[i].Selected, i == 0)
		}
		if a[i].Style != "cinematic" {
			t.Errorf("option %d: style = %q", i, a[i].Style)
		}
	}

	other := PhotoOptions("char-2", "cinematic", 3)
	if other[0].URL == a[0].URL {
		t.Errorf("different characters should get different seeded URLs")
	}
}

func TestVideoOptionsDeterministicPoolPick(t *testing.T) {
	a := VideoOptions("seg-1", 2, "scifi", 3)
	b := VideoOptions("seg-1", 2, "scifi", 3)

	if len(a) != 3 {
		t.Fatalf("expected 3 options, got %d", len(a))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].URL != b[i].URL {
			t.Errorf("option %d differs between identical invocations", i)
		}
	}

	// 시작 인덱스 = (characterCount + len(theme)) mod poolSize
	start := (2 + len("scifi")) % VideoPoolSize()
	shifted := VideoOptions("seg-1", start, "", 1)
	if shifted[0].URL != a[0].URL {
		t.Errorf("pool index should only depend on (characterCount + themeLength) mod poolSize")
	}
}

func TestVideoOptionsBounded(t *testing.T) {
	options := VideoOptions("seg-1", 1, "romance", 99)
	if len(options) > VideoPoolSize() {
		t.Errorf("options must be bounded by pool size, got %d", len(options))
	}
}

func TestSafeStringList(t *testing.T) {
	got := SafeStringList([]string{" brave ", "", "curious", "loyal", "stubborn", "witty", "tall"}, 5, DefaultTraits)
	if len(got) != 5 {
		t.Fatalf("expected 5 traits, got %d", len(got))
	}
	if got[0] != "brave" {
		t.Errorf("expected trimmed first trait, got %q", got[0])
	}

	fallback := SafeStringList([]string{"", "  "}, 5, DefaultTraits)
	if len(fallback) != len(DefaultTraits) || fallback[0] != "Adaptable" {
		t.Errorf("empty input should yield default traits, got %v", fallback)
	}
}
