package characters

import (
	"testing"
)

func TestValidateRejectsUnusableResponses(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   \n  "},
		{"not json", "Sure! Here are the characters you asked for."},
		{"json object", `{"name": "Solo"}`},
		{"empty array", `[]`},
	}

	for _, tt := range tests {
		result := ValidateCharacterResponse(tt.raw, "scifi")
		if result.Valid {
			t.Errorf("%s: expected invalid result", tt.name)
		}
		if result.Reason == "" {
			t.Errorf("%s: invalid result must carry a reason", tt.name)
		}
	}
}

func TestValidateSubstitutesDefaults(t *testing.T) {
	raw := `[{"name": "", "description": "", "traits": [], "role": ""}]`

	result := ValidateCharacterResponse(raw, "romance")
	if !result.Valid {
		t.Fatalf("expected valid result, got reason %q", result.Reason)
	}

	c := result.Characters[0]
	if c.Name != "Unnamed Character" {
		t.Errorf("name default = %q", c.Name)
	}
	if c.Description != "A character from a romance story" {
		t.Errorf("description default = %q", c.Description)
	}
	if len(c.Traits) != 2 || c.Traits[0] != "Adaptable" || c.Traits[1] != "Creative" {
		t.Errorf("traits default = %v", c.Traits)
	}
	if c.Role != "Supporting Character" {
		t.Errorf("role default = %q", c.Role)
	}
	if c.ID == "" {
		t.Errorf("every character must get a generated id")
	}
}

func TestValidateCapsTraitsAndRegeneratesIDs(t *testing.T) {
	raw := `[{"id": "model-supplied", "name": "Vera", "description": "A pilot",
		"traits": ["bold", "calm", "sharp", "dry", "quick", "loud"], "role": "Protagonist"}]`

	result := ValidateCharacterResponse(raw, "scifi")
	if !result.Valid {
		t.Fatalf("expected valid result, got reason %q", result.Reason)
	}

	c := result.Characters[0]
	if len(c.Traits) != 5 {
		t.Errorf("traits should be capped at 5, got %d", len(c.Traits))
	}
	if c.ID == "model-supplied" {
		t.Errorf("model-supplied ids must be replaced")
	}
}

func TestValidateStripsCodeFence(t *testing.T) {
	raw := "```json\n[{\"name\": \"Kai\", \"description\": \"A diver\", \"traits\": [\"calm\"], \"role\": \"Protagonist\"}]\n```"

	result := ValidateCharacterResponse(raw, "adventure")
	if !result.Valid {
		t.Fatalf("expected fenced JSON to validate, got reason %q", result.Reason)
	}
	if result.Characters[0].Name != "Kai" {
		t.Errorf("name = %q", result.Characters[0].Name)
	}
}
