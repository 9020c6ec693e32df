package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Segment - 스크립트 분할 결과 단위 (분할 자체는 클라이언트 담당)
type Segment struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Photos   []string `json:"photos,omitempty"`
	VideoURL string   `json:"videoUrl,omitempty"`
}

// Character - 세그먼트에서 추출된 등장인물
// 중복 제거 기준은 ID가 아니라 Name (대소문자 구분 완전 일치)
type Character struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Traits      []string `json:"traits"`
	Role        string   `json:"role"`
	ImageURL    string   `json:"imageUrl,omitempty"`
}

// MaxTraits - Character.Traits 최대 개수
const MaxTraits = 5

// PhotoOption - 캐릭터별 사진 후보. Selected는 캐릭터당 정확히 하나만 true
type PhotoOption struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Style    string `json:"style"`
	Selected bool   `json:"selected"`
}

// VideoOption - 세그먼트별 비디오 후보. 선택 규칙은 PhotoOption과 동일
type VideoOption struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Selected     bool   `json:"selected"`
}

// ProcessedSegment - 세그먼트 처리 완료 기록. PipelineState에 추가된 후에는 불변
type ProcessedSegment struct {
	SegmentID       string        `json:"segmentId"`
	Title           string        `json:"title"`
	Content         string        `json:"content"`
	Characters      []Character   `json:"characters"`
	Photos          []PhotoOption `json:"photos"`
	Videos          []VideoOption `json:"videos"`
	SelectedVideoID string        `json:"selectedVideoId,omitempty"`
	Skipped         bool          `json:"skipped"`
	ProcessedAt     time.Time     `json:"processedAt"`
}

// PipelineState - 전체 파이프라인 진행 상태 (체크포인트마다 직렬화 가능)
// 불변식: len(ProcessedSegments) == CurrentSegmentIndex
// RosterCharacters에는 같은 Name이 두 번 존재하지 않음
type PipelineState struct {
	PipelineID              string                   `json:"pipelineId"`
	Theme                   string                   `json:"theme"`
	Style                   string                   `json:"style"`
	Segments                []Segment                `json:"segments"`
	CurrentSegmentIndex     int                      `json:"currentSegmentIndex"`
	ProcessedSegments       []ProcessedSegment       `json:"processedSegments"`
	CurrentCharacters       []Character              `json:"currentCharacters,omitempty"`
	RosterCharacters        []Character              `json:"rosterCharacters"`
	PhotoOptionsByCharacter map[string][]PhotoOption `json:"photoOptionsByCharacterId"`
	SegmentVideosBySegment  map[string][]VideoOption `json:"segmentVideosBySegmentId"`
	Phase                   string                   `json:"phase"`
	UpdatedAt               time.Time                `json:"updatedAt"`
}

// Phase 상수 - Orchestrator 상태 머신의 세그먼트 단위 상태
const (
	PhasePending             = "pending"
	PhaseCharactersGenerated = "characters_generated"
	PhasePhotosPending       = "photos_pending"
	PhasePhotosComplete      = "photos_complete"
	PhaseVideosPending       = "videos_pending"
	PhaseVideosComplete      = "videos_complete"
	PhaseSkipped             = "skipped"
	PhaseFinished            = "finished"
)

// PipelineJob - reel_pipeline_jobs 테이블 구조.
// StateSnapshot은 JSONB 컬럼이라 RawMessage로 받아야 객체 형태 그대로 왕복된다.
type PipelineJob struct {
	JobID             string          `json:"job_id"`
	Theme             string          `json:"theme"`
	Style             string          `json:"style"`
	JobStatus         string          `json:"job_status"`
	TotalSegments     int             `json:"total_segments"`
	CompletedSegments int             `json:"completed_segments"`
	StateSnapshot     json.RawMessage `json:"state_snapshot,omitempty"`
	ErrorMessage      *string         `json:"error_message"`
	CreatedAt         time.Time       `json:"created_at"`
	StartedAt         *time.Time      `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

const (
	StatusPending       = "pending"
	StatusProcessing    = "processing"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusUserCancelled = "user_cancelled"
)

// ProgressEvent - 워커가 websocket 허브로 내보내는 진행 이벤트
type ProgressEvent struct {
	Type              string    `json:"type"`
	PipelineID        string    `json:"pipelineId"`
	Phase             string    `json:"phase"`
	SegmentIndex      int       `json:"segmentIndex"`
	TotalSegments     int       `json:"totalSegments"`
	ProcessedSegments int       `json:"processedSegments"`
	Message           string    `json:"message,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// CompileInput - 컴파일 단계(외부)로 넘기는 최종 산출물
type CompileInput struct {
	PipelineID        string             `json:"pipelineId"`
	ProcessedSegments []ProcessedSegment `json:"processedSegments"`
	Roster            []Character        `json:"roster"`
}

// 에러 분류
// - ErrPreconditionNotMet: 선행 조건 미충족, 상태 전이 거부 (상태 변경 없음)
// - ErrNotFound: 존재하지 않는 옵션/캐릭터/세그먼트 선택 (상태 변경 없음)
// - ErrStateCorrupted: 파이프라인 불변식 위반, 복구 불가 - 즉시 중단
// 생성 실패(네트워크/파싱)는 에러로 노출하지 않고 fallback으로 대체한다.
var (
	ErrPreconditionNotMet = errors.New("precondition not met")
	ErrNotFound           = errors.New("not found")
	ErrStateCorrupted     = errors.New("pipeline state corrupted")
)
