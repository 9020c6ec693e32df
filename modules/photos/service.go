package photos

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"storyreel-server/modules/common/fallback"
	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
)

// Service - 캐릭터 사진 옵션 생성/선택 스테이지
type Service struct {
	client gemini.GenerationClient
}

// NewService - 주입된 생성 클라이언트로 스테이지 생성
func NewService(client gemini.GenerationClient) *Service {
	return &Service{client: client}
}

// Generate - 캐릭터 한 명의 사진 옵션 생성.
// 생성 호출은 캐릭터당 1회. 성공하면 AI 결과가 첫 옵션이 되고
// 나머지 슬롯은 결정적 합성 옵션으로 채운다 (항상 count개 보장).
// 호출 실패 시 전체를 결정적 fallback으로 대체한다 (fails-soft).
func (s *Service) Generate(ctx context.Context, character model.Character, style, theme string, count int) []model.PhotoOption {
	if count <= 0 {
		count = 1
	}

	url, err := s.client.GenerateMedia(ctx, gemini.MediaRequest{
		Kind:        "photo",
		Prompt:      buildPhotoPrompt(character, theme),
		Style:       style,
		AspectRatio: "9:16",
	})
	if err != nil || url == "" {
		log.Printf("⚠️  Photo generation failed for character %s (%s), using fallback: %v",
			character.ID, character.Name, err)
		return fallback.PhotoOptions(character.ID, style, count)
	}

	options := []model.PhotoOption{{
		ID:    uuid.New().String(),
		URL:   url,
		Style: style,
	}}

	// 부족한 슬롯은 합성 옵션으로 채움 (선택은 사용자/워커 몫)
	for _, opt := range fallback.PhotoOptions(character.ID, style, count) {
		if len(options) == count {
			break
		}
		opt.Selected = false
		options = append(options, opt)
	}

	log.Printf("✅ Generated %d photo options for character %s (%s)", len(options), character.ID, character.Name)
	return options
}

// GenerateAll - 캐릭터별 사진 옵션 일괄 생성.
// 캐릭터마다 goroutine 하나씩 동시 실행, 결과는 캐릭터별 고정 슬롯에 기록.
// 한 캐릭터의 실패는 그 캐릭터만 fallback으로 떨어지고 나머지는 영향 없다.
func (s *Service) GenerateAll(ctx context.Context, chars []model.Character, style, theme string, count int) map[string][]model.PhotoOption {
	results := make([][]model.PhotoOption, len(chars))

	var wg sync.WaitGroup
	for i, character := range chars {
		wg.Add(1)
		go func(slot int, c model.Character) {
			defer wg.Done()
			results[slot] = s.Generate(ctx, c, style, theme, count)
		}(i, character)
	}
	wg.Wait()

	optionsByCharacter := make(map[string][]model.PhotoOption, len(chars))
	for i, character := range chars {
		optionsByCharacter[character.ID] = results[i]
	}

	log.Printf("📸 Batch photo generation done: %d characters", len(chars))
	return optionsByCharacter
}

// Select - 사진 선택. 같은 캐릭터의 다른 옵션은 전부 선택 해제된다 (상호 배제).
// 캐릭터에 기록된 옵션이 없거나 photoID가 목록에 없으면 ErrNotFound, 상태 변경 없음.
// 입력 맵은 건드리지 않고 새 맵을 반환한다.
func Select(optionsByCharacter map[string][]model.PhotoOption, characterID, photoID string) (map[string][]model.PhotoOption, error) {
	options, ok := optionsByCharacter[characterID]
	if !ok || len(options) == 0 {
		return nil, fmt.Errorf("no photo options for character %s: %w", characterID, model.ErrNotFound)
	}

	found := false
	updated := make([]model.PhotoOption, len(options))
	for i, opt := range options {
		opt.Selected = opt.ID == photoID
		if opt.Selected {
			found = true
		}
		updated[i] = opt
	}

	if !found {
		return nil, fmt.Errorf("photo %s not among options for character %s: %w", photoID, characterID, model.ErrNotFound)
	}

	next := make(map[string][]model.PhotoOption, len(optionsByCharacter))
	for k, v := range optionsByCharacter {
		next[k] = v
	}
	next[characterID] = updated

	return next, nil
}

// AllSelected - 모든 캐릭터가 정확히 하나의 선택된 옵션을 가졌는지 확인
func AllSelected(chars []model.Character, optionsByCharacter map[string][]model.PhotoOption) bool {
	for _, character := range chars {
		options, ok := optionsByCharacter[character.ID]
		if !ok || len(options) == 0 {
			return false
		}

		selected := 0
		for _, opt := range options {
			if opt.Selected {
				selected++
			}
		}
		if selected != 1 {
			return false
		}
	}
	return true
}

// SelectedURL - 캐릭터의 선택된 사진 URL (없으면 빈 문자열)
func SelectedURL(optionsByCharacter map[string][]model.PhotoOption, characterID string) string {
	for _, opt := range optionsByCharacter[characterID] {
		if opt.Selected {
			return opt.URL
		}
	}
	return ""
}

// buildPhotoPrompt - 캐릭터 초상 생성 프롬프트
func buildPhotoPrompt(character model.Character, theme string) string {
	return fmt.Sprintf(
		"Portrait of %s, %s. Role: %s. Theme: %s. Vertical framing for a short-form video.",
		character.Name, character.Description, character.Role, theme)
}
