package characters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"storyreel-server/modules/common/fallback"
	"storyreel-server/modules/common/model"
)

// ValidationResult - 응답 검증의 태그된 결과.
// Valid면 Characters가 채워지고, Invalid면 Reason이 채워진다.
type ValidationResult struct {
	Valid      bool
	Characters []model.Character
	Reason     string
}

// rawCharacter - 모델 응답의 느슨한 JSON 형태
type rawCharacter struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Traits      []string `json:"traits"`
	Role        string   `json:"role"`
}

// ValidateCharacterResponse - 모델 응답을 캐릭터 목록으로 검증/정규화한다.
// 빈 응답, JSON 아님, 비어있는 배열은 모두 Invalid.
// 필드 누락은 기본값으로 채우고, ID는 응답에 뭐가 있든 항상 새로 발급한다.
func ValidateCharacterResponse(raw, theme string) ValidationResult {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ValidationResult{Reason: "empty response"}
	}

	// 모델이 붙이는 ```json 펜스 제거
	trimmed = stripCodeFence(trimmed)

	var entries []rawCharacter
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return ValidationResult{Reason: fmt.Sprintf("not a JSON array: %v", err)}
	}

	if len(entries) == 0 {
		return ValidationResult{Reason: "empty character array"}
	}

	chars := make([]model.Character, 0, len(entries))
	for _, entry := range entries {
		chars = append(chars, model.Character{
			ID:   uuid.New().String(),
			Name: fallback.SafeString(entry.Name, "Unnamed Character"),
			Description: fallback.SafeString(entry.Description,
				fmt.Sprintf("A character from a %s story", theme)),
			Traits: fallback.SafeStringList(entry.Traits, model.MaxTraits, fallback.DefaultTraits),
			Role:   fallback.SafeString(entry.Role, "Supporting Character"),
		})
	}

	return ValidationResult{Valid: true, Characters: chars}
}

// stripCodeFence - ```json ... ``` 마크다운 펜스 제거
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
