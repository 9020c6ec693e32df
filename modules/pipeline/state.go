package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"storyreel-server/modules/common/model"
)

// NewState - 새 파이프라인 상태 생성. 첫 세그먼트 Pending에서 시작.
func NewState(theme, style string, segments []model.Segment) *model.PipelineState {
	return &model.PipelineState{
		PipelineID:              uuid.New().String(),
		Theme:                   theme,
		Style:                   style,
		Segments:                append([]model.Segment(nil), segments...),
		CurrentSegmentIndex:     0,
		ProcessedSegments:       []model.ProcessedSegment{},
		RosterCharacters:        []model.Character{},
		PhotoOptionsByCharacter: map[string][]model.PhotoOption{},
		SegmentVideosBySegment:  map[string][]model.VideoOption{},
		Phase:                   model.PhasePending,
		UpdatedAt:               time.Now(),
	}
}

// Clone - 상태 깊은 복사. 스테이지는 복사본을 받아 새 상태를 반환하고
// 커밋된 스냅샷은 절대 변경하지 않는다 (append-only log).
func Clone(state *model.PipelineState) *model.PipelineState {
	next := *state

	next.Segments = append([]model.Segment(nil), state.Segments...)
	next.ProcessedSegments = append([]model.ProcessedSegment(nil), state.ProcessedSegments...)
	next.CurrentCharacters = append([]model.Character(nil), state.CurrentCharacters...)
	next.RosterCharacters = append([]model.Character(nil), state.RosterCharacters...)

	next.PhotoOptionsByCharacter = make(map[string][]model.PhotoOption, len(state.PhotoOptionsByCharacter))
	for k, v := range state.PhotoOptionsByCharacter {
		next.PhotoOptionsByCharacter[k] = append([]model.PhotoOption(nil), v...)
	}

	next.SegmentVideosBySegment = make(map[string][]model.VideoOption, len(state.SegmentVideosBySegment))
	for k, v := range state.SegmentVideosBySegment {
		next.SegmentVideosBySegment[k] = append([]model.VideoOption(nil), v...)
	}

	return &next
}

// ValidateCheckpoint - 체크포인트 불변식 검증.
// 위반은 상위 데이터 오염을 뜻하므로 복구하지 않고 ErrStateCorrupted로 중단한다.
func ValidateCheckpoint(state *model.PipelineState) error {
	if state == nil {
		return fmt.Errorf("nil state: %w", model.ErrStateCorrupted)
	}

	if len(state.ProcessedSegments) != state.CurrentSegmentIndex {
		return fmt.Errorf("processed=%d index=%d: %w",
			len(state.ProcessedSegments), state.CurrentSegmentIndex, model.ErrStateCorrupted)
	}

	seen := make(map[string]bool, len(state.RosterCharacters))
	for _, c := range state.RosterCharacters {
		if seen[c.Name] {
			return fmt.Errorf("duplicate roster name %q: %w", c.Name, model.ErrStateCorrupted)
		}
		seen[c.Name] = true
	}

	return nil
}

// CurrentSegment - 현재 처리 중인 세그먼트 (Finished면 nil)
func CurrentSegment(state *model.PipelineState) *model.Segment {
	if state.CurrentSegmentIndex < 0 || state.CurrentSegmentIndex >= len(state.Segments) {
		return nil
	}
	seg := state.Segments[state.CurrentSegmentIndex]
	return &seg
}
