package characters

import (
	"context"
	"log"

	"storyreel-server/modules/common/fallback"
	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
)

// Service - 세그먼트 캐릭터 추출 스테이지
type Service struct {
	client gemini.GenerationClient
}

// NewService - 주입된 생성 클라이언트로 스테이지 생성
func NewService(client gemini.GenerationClient) *Service {
	return &Service{client: client}
}

// ExtractCharacters - 세그먼트 하나에서 캐릭터 목록 추출.
// 절대 실패하지 않는다: 호출 실패, 빈 응답, 파싱 실패 전부 fallback으로 대체.
// 같은 PipelineState에서 몇 번을 다시 불러도 부작용이 없다.
func (s *Service) ExtractCharacters(ctx context.Context, segment model.Segment, theme string) []model.Character {
	log.Printf("🎭 Extracting characters for segment %s (%s)", segment.ID, segment.Title)

	prompt := BuildExtractionPrompt(segment.Title, segment.Content, theme)

	raw, err := s.client.GenerateText(ctx, prompt)
	if err != nil {
		log.Printf("⚠️  Character generation failed for segment %s, using fallback: %v", segment.ID, err)
		return fallback.Characters(segment.Title, theme)
	}

	result := ValidateCharacterResponse(raw, theme)
	if !result.Valid {
		log.Printf("⚠️  Character response invalid for segment %s (%s), using fallback", segment.ID, result.Reason)
		return fallback.Characters(segment.Title, theme)
	}

	log.Printf("✅ Extracted %d characters for segment %s", len(result.Characters), segment.ID)
	return result.Characters
}

// SkipCharacters - 사용자가 추출을 건너뛴 경우에도 동일한 fallback 캐릭터를 제공한다.
func (s *Service) SkipCharacters(segment model.Segment, theme string) []model.Character {
	log.Printf("⏭️  Character extraction skipped for segment %s, synthesizing defaults", segment.ID)
	return fallback.Characters(segment.Title, theme)
}
