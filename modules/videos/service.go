package videos

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"storyreel-server/modules/common/fallback"
	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
)

// Service - 세그먼트 비디오 옵션 생성/선택 스테이지
type Service struct {
	client     gemini.GenerationClient
	maxOptions int
}

// NewService - 주입된 생성 클라이언트로 스테이지 생성. maxOptions는 옵션 상한 (기본 5)
func NewService(client gemini.GenerationClient, maxOptions int) *Service {
	if maxOptions <= 0 {
		maxOptions = 5
	}
	return &Service{client: client, maxOptions: maxOptions}
}

// Generate - 세그먼트 비디오 옵션 생성.
// 선행 조건: photos 비어있으면 안 됨 (사진 선택이 비디오 생성보다 먼저).
// 조건 위반은 ErrPreconditionNotMet. 생성 실패는 고정 풀 기반 결정적 fallback.
func (s *Service) Generate(ctx context.Context, segment model.Segment, chars []model.Character, photoURLs []string, theme string) ([]model.VideoOption, error) {
	if len(photoURLs) == 0 {
		return nil, fmt.Errorf("segment %s has no selected photos, generate photos first: %w",
			segment.ID, model.ErrPreconditionNotMet)
	}

	log.Printf("🎬 Generating video options for segment %s (%d characters, %d photos)",
		segment.ID, len(chars), len(photoURLs))

	url, err := s.client.GenerateMedia(ctx, gemini.MediaRequest{
		Kind:          "video",
		Prompt:        buildVideoPrompt(segment, chars, theme),
		AspectRatio:   "9:16",
		ReferenceURLs: photoURLs,
	})
	if err != nil || url == "" {
		log.Printf("⚠️  Video generation failed for segment %s, using fallback pool: %v", segment.ID, err)
		return fallback.VideoOptions(segment.ID, len(chars), theme, s.maxOptions), nil
	}

	options := []model.VideoOption{{
		ID:           uuid.New().String(),
		URL:          url,
		ThumbnailURL: url + ".jpg",
	}}

	// 나머지 슬롯은 고정 풀에서 결정적으로 채움
	for _, opt := range fallback.VideoOptions(segment.ID, len(chars), theme, s.maxOptions) {
		if len(options) == s.maxOptions {
			break
		}
		options = append(options, opt)
	}

	log.Printf("✅ Generated %d video options for segment %s", len(options), segment.ID)
	return options, nil
}

// Select - 비디오 선택. 같은 세그먼트의 다른 옵션은 전부 선택 해제 (상호 배제).
// 세그먼트에 옵션이 없거나 videoID가 목록에 없으면 ErrNotFound, 상태 변경 없음.
func Select(optionsBySegment map[string][]model.VideoOption, segmentID, videoID string) (map[string][]model.VideoOption, error) {
	options, ok := optionsBySegment[segmentID]
	if !ok || len(options) == 0 {
		return nil, fmt.Errorf("no video options for segment %s: %w", segmentID, model.ErrNotFound)
	}

	found := false
	updated := make([]model.VideoOption, len(options))
	for i, opt := range options {
		opt.Selected = opt.ID == videoID
		if opt.Selected {
			found = true
		}
		updated[i] = opt
	}

	if !found {
		return nil, fmt.Errorf("video %s not among options for segment %s: %w", videoID, segmentID, model.ErrNotFound)
	}

	next := make(map[string][]model.VideoOption, len(optionsBySegment))
	for k, v := range optionsBySegment {
		next[k] = v
	}
	next[segmentID] = updated

	return next, nil
}

// SelectedID - 세그먼트의 선택된 비디오 ID (없으면 빈 문자열)
func SelectedID(optionsBySegment map[string][]model.VideoOption, segmentID string) string {
	for _, opt := range optionsBySegment[segmentID] {
		if opt.Selected {
			return opt.ID
		}
	}
	return ""
}

// buildVideoPrompt - 세그먼트 비디오 생성 프롬프트
func buildVideoPrompt(segment model.Segment, chars []model.Character, theme string) string {
	names := make([]string, 0, len(chars))
	for _, c := range chars {
		names = append(names, c.Name)
	}

	return fmt.Sprintf(
		"Short vertical video scene for \"%s\" (%s theme). Characters: %s. Scene text: %s",
		segment.Title, theme, strings.Join(names, ", "), segment.Content)
}
