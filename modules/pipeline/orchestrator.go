package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"storyreel-server/modules/characters"
	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
	"storyreel-server/modules/photos"
	"storyreel-server/modules/videos"
)

// Orchestrator - 파이프라인 상태 머신.
// 모든 전이는 (state, event) -> state' 전체 함수이고, 입력 상태는 변경하지 않는다.
// 전이마다 먼저 체크포인트 불변식을 검증하며, 위반은 ErrStateCorrupted로 중단된다.
type Orchestrator struct {
	chars      *characters.Service
	photos     *photos.Service
	videos     *videos.Service
	photoCount int
}

// NewOrchestrator - 단일 생성 클라이언트를 각 스테이지에 주입해 구성
func NewOrchestrator(client gemini.GenerationClient, photoCount, videoMax int) *Orchestrator {
	if photoCount <= 0 {
		photoCount = 4
	}
	return &Orchestrator{
		chars:      characters.NewService(client),
		photos:     photos.NewService(client),
		videos:     videos.NewService(client, videoMax),
		photoCount: photoCount,
	}
}

// GenerateCharacters - Pending(i) -> CharactersGenerated(i).
// 캐릭터 스테이지는 fails-soft라 이 전이는 호출되면 무조건 성공한다.
func (o *Orchestrator) GenerateCharacters(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}
	if state.Phase != model.PhasePending {
		return nil, fmt.Errorf("cannot generate characters in phase %s: %w", state.Phase, model.ErrPreconditionNotMet)
	}

	segment := CurrentSegment(state)
	if segment == nil {
		return nil, fmt.Errorf("no segment at index %d: %w", state.CurrentSegmentIndex, model.ErrStateCorrupted)
	}

	next := Clone(state)
	next.CurrentCharacters = o.chars.ExtractCharacters(ctx, *segment, state.Theme)
	next.Phase = model.PhaseCharactersGenerated
	next.UpdatedAt = time.Now()

	return next, nil
}

// SkipCharacterExtraction - Pending(i) -> CharactersGenerated(i), AI 호출 없이.
// 사용자가 추출을 건너뛰어도 동일한 결정적 기본 캐릭터로 다음 단계를 진행한다.
func (o *Orchestrator) SkipCharacterExtraction(state *model.PipelineState) (*model.PipelineState, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}
	if state.Phase != model.PhasePending {
		return nil, fmt.Errorf("cannot skip character extraction in phase %s: %w", state.Phase, model.ErrPreconditionNotMet)
	}

	segment := CurrentSegment(state)
	if segment == nil {
		return nil, fmt.Errorf("no segment at index %d: %w", state.CurrentSegmentIndex, model.ErrStateCorrupted)
	}

	next := Clone(state)
	next.CurrentCharacters = o.chars.SkipCharacters(*segment, state.Theme)
	next.Phase = model.PhaseCharactersGenerated
	next.UpdatedAt = time.Now()

	return next, nil
}

// GeneratePhotos - CharactersGenerated(i) -> PhotosPending.
// 현재 세그먼트 캐릭터 전원에 대해 사진 옵션을 일괄 생성한다.
// 이미 옵션이 있는 캐릭터(이전 세그먼트에서 넘어온 동일 인물)는 다시 생성하지 않는다.
func (o *Orchestrator) GeneratePhotos(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}
	if state.Phase != model.PhaseCharactersGenerated && state.Phase != model.PhasePhotosPending {
		return nil, fmt.Errorf("cannot generate photos in phase %s: %w", state.Phase, model.ErrPreconditionNotMet)
	}

	next := Clone(state)

	pending := make([]model.Character, 0, len(next.CurrentCharacters))
	for _, c := range next.CurrentCharacters {
		if len(next.PhotoOptionsByCharacter[c.ID]) == 0 {
			pending = append(pending, c)
		}
	}

	generated := o.photos.GenerateAll(ctx, pending, state.Style, state.Theme, o.photoCount)
	for id, options := range generated {
		next.PhotoOptionsByCharacter[id] = options
	}

	next.Phase = model.PhasePhotosPending
	next.UpdatedAt = time.Now()

	if photos.AllSelected(next.CurrentCharacters, next.PhotoOptionsByCharacter) {
		next.Phase = model.PhasePhotosComplete
	}

	return next, nil
}

// SelectPhoto - 사진 선택 이벤트. 상호 배제 규칙 적용 후,
// 선택된 URL을 캐릭터 ImageURL에 부착한다 (캐릭터의 유일한 변경 지점).
// 모든 현재 캐릭터가 선택을 마치면 PhotosComplete로 넘어간다.
func (o *Orchestrator) SelectPhoto(state *model.PipelineState, characterID, photoID string) (*model.PipelineState, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}
	if state.Phase != model.PhasePhotosPending && state.Phase != model.PhasePhotosComplete {
		return nil, fmt.Errorf("cannot select photo in phase %s: %w", state.Phase, model.ErrPreconditionNotMet)
	}

	updated, err := photos.Select(state.PhotoOptionsByCharacter, characterID, photoID)
	if err != nil {
		return nil, err
	}

	next := Clone(state)
	next.PhotoOptionsByCharacter = updated

	url := photos.SelectedURL(updated, characterID)
	for i := range next.CurrentCharacters {
		if next.CurrentCharacters[i].ID == characterID {
			next.CurrentCharacters[i].ImageURL = url
		}
	}

	next.UpdatedAt = time.Now()
	if photos.AllSelected(next.CurrentCharacters, next.PhotoOptionsByCharacter) {
		next.Phase = model.PhasePhotosComplete
	}

	return next, nil
}

// GenerateVideos - PhotosComplete -> VideosPending(i).
// 선택된 사진 URL들을 비디오 스테이지에 넘긴다. 사진이 없으면 전이 거부.
func (o *Orchestrator) GenerateVideos(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}
	if state.Phase != model.PhasePhotosComplete {
		return nil, fmt.Errorf("cannot generate videos in phase %s: %w", state.Phase, model.ErrPreconditionNotMet)
	}

	segment := CurrentSegment(state)
	if segment == nil {
		return nil, fmt.Errorf("no segment at index %d: %w", state.CurrentSegmentIndex, model.ErrStateCorrupted)
	}

	photoURLs := make([]string, 0, len(state.CurrentCharacters))
	for _, c := range state.CurrentCharacters {
		if url := photos.SelectedURL(state.PhotoOptionsByCharacter, c.ID); url != "" {
			photoURLs = append(photoURLs, url)
		}
	}

	options, err := o.videos.Generate(ctx, *segment, state.CurrentCharacters, photoURLs, state.Theme)
	if err != nil {
		return nil, err
	}

	next := Clone(state)
	next.SegmentVideosBySegment[segment.ID] = options
	next.Phase = model.PhaseVideosPending
	next.UpdatedAt = time.Now()

	return next, nil
}

// SelectVideo - 현재 세그먼트 비디오 선택 이벤트
func (o *Orchestrator) SelectVideo(state *model.PipelineState, videoID string) (*model.PipelineState, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}
	if state.Phase != model.PhaseVideosPending {
		return nil, fmt.Errorf("cannot select video in phase %s: %w", state.Phase, model.ErrPreconditionNotMet)
	}

	segment := CurrentSegment(state)
	if segment == nil {
		return nil, fmt.Errorf("no segment at index %d: %w", state.CurrentSegmentIndex, model.ErrStateCorrupted)
	}

	updated, err := videos.Select(state.SegmentVideosBySegment, segment.ID, videoID)
	if err != nil {
		return nil, err
	}

	next := Clone(state)
	next.SegmentVideosBySegment = updated
	next.UpdatedAt = time.Now()

	return next, nil
}

// CompleteSegment - VideosPending(i) -> VideosComplete(i) -> Pending(i+1) | Finished.
// 비어있지 않은 옵션 목록과 선택이 둘 다 있어야 한다. 아니면 전이 거부,
// 상태는 VideosPending에 머문다.
func (o *Orchestrator) CompleteSegment(state *model.PipelineState) (*model.PipelineState, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}
	if state.Phase != model.PhaseVideosPending {
		return nil, fmt.Errorf("cannot complete segment in phase %s: %w", state.Phase, model.ErrPreconditionNotMet)
	}

	segment := CurrentSegment(state)
	if segment == nil {
		return nil, fmt.Errorf("no segment at index %d: %w", state.CurrentSegmentIndex, model.ErrStateCorrupted)
	}

	options := state.SegmentVideosBySegment[segment.ID]
	if len(options) == 0 {
		return nil, fmt.Errorf("segment %s has no video options: %w", segment.ID, model.ErrPreconditionNotMet)
	}

	selectedID := videos.SelectedID(state.SegmentVideosBySegment, segment.ID)
	if selectedID == "" {
		return nil, fmt.Errorf("segment %s has no video selection: %w", segment.ID, model.ErrPreconditionNotMet)
	}

	selectedPhotos := make([]model.PhotoOption, 0, len(state.CurrentCharacters))
	for _, c := range state.CurrentCharacters {
		for _, opt := range state.PhotoOptionsByCharacter[c.ID] {
			if opt.Selected {
				selectedPhotos = append(selectedPhotos, opt)
			}
		}
	}

	return o.commitSegment(state, *segment, selectedPhotos, options, selectedID, false)
}

// SkipSegment - CharactersGenerated(i) | PhotosPending | PhotosComplete | VideosPending(i) -> Skipped(i).
// ProcessedSegment는 skipped=true, videos=[]로 기록되어 인덱스 불변식이 유지된다.
func (o *Orchestrator) SkipSegment(state *model.PipelineState) (*model.PipelineState, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}

	switch state.Phase {
	case model.PhaseCharactersGenerated, model.PhasePhotosPending, model.PhasePhotosComplete, model.PhaseVideosPending:
	default:
		return nil, fmt.Errorf("cannot skip segment in phase %s: %w", state.Phase, model.ErrPreconditionNotMet)
	}

	segment := CurrentSegment(state)
	if segment == nil {
		return nil, fmt.Errorf("no segment at index %d: %w", state.CurrentSegmentIndex, model.ErrStateCorrupted)
	}

	log.Printf("⏭️  Skipping segment %s (%d/%d)", segment.ID, state.CurrentSegmentIndex+1, len(state.Segments))
	return o.commitSegment(state, *segment, nil, []model.VideoOption{}, "", true)
}

// commitSegment - ProcessedSegment를 append하고 다음 세그먼트 또는 Finished로 전이.
// 여기가 유일한 커밋 지점이다. 커밋된 레코드는 이후 어떤 전이도 건드리지 않는다.
func (o *Orchestrator) commitSegment(
	state *model.PipelineState,
	segment model.Segment,
	selectedPhotos []model.PhotoOption,
	options []model.VideoOption,
	selectedVideoID string,
	skipped bool,
) (*model.PipelineState, error) {
	next := Clone(state)

	next.ProcessedSegments = append(next.ProcessedSegments, model.ProcessedSegment{
		SegmentID:       segment.ID,
		Title:           segment.Title,
		Content:         segment.Content,
		Characters:      append([]model.Character(nil), state.CurrentCharacters...),
		Photos:          selectedPhotos,
		Videos:          options,
		SelectedVideoID: selectedVideoID,
		Skipped:         skipped,
		ProcessedAt:     time.Now(),
	})
	next.CurrentSegmentIndex++
	next.CurrentCharacters = nil
	next.UpdatedAt = time.Now()

	if next.CurrentSegmentIndex < len(next.Segments) {
		next.Phase = model.PhasePending
	} else {
		// Finished: 전체 세그먼트의 캐릭터를 roster로 병합
		next.Phase = model.PhaseFinished
		next.RosterCharacters = characters.MergeAll(next.ProcessedSegments)
		log.Printf("🏁 Pipeline %s finished: %d segments, %d roster characters",
			next.PipelineID, len(next.ProcessedSegments), len(next.RosterCharacters))
	}

	if err := ValidateCheckpoint(next); err != nil {
		return nil, err
	}

	return next, nil
}

// BuildCompileInput - Finished 상태에서 컴파일 경계로 넘길 입력을 만든다.
// 완전하고 순서가 맞고 중복 제거된 입력 전달까지만 이 코어의 책임이다.
func BuildCompileInput(state *model.PipelineState) (*model.CompileInput, error) {
	if err := ValidateCheckpoint(state); err != nil {
		return nil, err
	}
	if state.Phase != model.PhaseFinished {
		return nil, fmt.Errorf("pipeline not finished (phase %s): %w", state.Phase, model.ErrPreconditionNotMet)
	}

	return &model.CompileInput{
		PipelineID:        state.PipelineID,
		ProcessedSegments: append([]model.ProcessedSegment(nil), state.ProcessedSegments...),
		Roster:            append([]model.Character(nil), state.RosterCharacters...),
	}, nil
}
