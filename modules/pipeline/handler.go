package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"

	"storyreel-server/modules/common/database"
	"storyreel-server/modules/common/model"
	redisutil "storyreel-server/modules/common/redis"
	"storyreel-server/modules/common/storage"
)

// Handler - 파이프라인 REST API.
// 모든 전이 엔드포인트는 멱등: 같은 스냅샷에서 몇 번을 불러도
// 반환값 외의 부작용이 없고, 거부된 전이는 상태를 바꾸지 않는다.
type Handler struct {
	orch    *Orchestrator
	rdb     *goredis.Client
	db      *database.Client
	storage *storage.Client
}

// NewHandler - Handler 생성
func NewHandler(orch *Orchestrator, rdb *goredis.Client, db *database.Client) *Handler {
	return &Handler{
		orch:    orch,
		rdb:     rdb,
		db:      db,
		storage: storage.NewClient(),
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/pipelines", h.HandleCreate).Methods("POST", "OPTIONS")
	r.HandleFunc("/pipelines/{pipelineId}", h.HandleGet).Methods("GET")
	r.HandleFunc("/pipelines/{pipelineId}/characters", h.HandleGenerateCharacters).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/characters/skip", h.HandleSkipCharacterExtraction).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/photos", h.HandleGeneratePhotos).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/photos/select", h.HandleSelectPhoto).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/videos", h.HandleGenerateVideos).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/videos/select", h.HandleSelectVideo).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/complete", h.HandleCompleteSegment).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/skip", h.HandleSkipSegment).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/enqueue", h.HandleEnqueue).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/cancel", h.HandleCancel).Methods("POST")
	r.HandleFunc("/pipelines/{pipelineId}/compile", h.HandleCompileInput).Methods("GET")
	log.Println("✅ Pipeline routes registered")
}

// CreateRequest - 파이프라인 생성 요청
type CreateRequest struct {
	Theme    string          `json:"theme"`
	Style    string          `json:"style"`
	Segments []model.Segment `json:"segments"`
}

// SelectPhotoRequest - 사진 선택 요청
type SelectPhotoRequest struct {
	CharacterID string `json:"characterId"`
	PhotoID     string `json:"photoId"`
}

// SelectVideoRequest - 비디오 선택 요청
type SelectVideoRequest struct {
	VideoID string `json:"videoId"`
}

// HandleCreate - POST /pipelines
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Segments) == 0 {
		http.Error(w, "segments are required", http.StatusBadRequest)
		return
	}
	if req.Theme == "" {
		http.Error(w, "theme is required", http.StatusBadRequest)
		return
	}

	state := NewState(req.Theme, req.Style, req.Segments)

	ctx := r.Context()
	if err := redisutil.SaveState(ctx, h.rdb, state); err != nil {
		http.Error(w, "Failed to persist pipeline state", http.StatusInternalServerError)
		return
	}

	if err := h.db.CreateJob(ctx, state.PipelineID, req.Theme, req.Style, len(req.Segments)); err != nil {
		log.Printf("⚠️  Failed to create job record for %s: %v", state.PipelineID, err)
	}

	log.Printf("🚀 Pipeline created: %s (%d segments, theme: %s)", state.PipelineID, len(req.Segments), req.Theme)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pipelineId": state.PipelineID,
		"phase":      state.Phase,
		"segments":   len(state.Segments),
	})
}

// HandleGet - GET /pipelines/{pipelineId}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadState(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// HandleGenerateCharacters - POST /pipelines/{pipelineId}/characters
func (h *Handler) HandleGenerateCharacters(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
		return h.orch.GenerateCharacters(ctx, state)
	})
}

// HandleSkipCharacterExtraction - POST /pipelines/{pipelineId}/characters/skip
func (h *Handler) HandleSkipCharacterExtraction(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
		return h.orch.SkipCharacterExtraction(state)
	})
}

// HandleGeneratePhotos - POST /pipelines/{pipelineId}/photos
func (h *Handler) HandleGeneratePhotos(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
		return h.orch.GeneratePhotos(ctx, state)
	})
}

// HandleSelectPhoto - POST /pipelines/{pipelineId}/photos/select
func (h *Handler) HandleSelectPhoto(w http.ResponseWriter, r *http.Request) {
	var req SelectPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.transition(w, r, func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
		next, err := h.orch.SelectPhoto(state, req.CharacterID, req.PhotoID)
		if err != nil {
			return nil, err
		}

		// 선택된 사진 보관은 강화 기능 - 실패해도 파이프라인은 계속 간다
		go h.archiveSelection(next.PipelineID, req.CharacterID, next)

		return next, nil
	})
}

// HandleGenerateVideos - POST /pipelines/{pipelineId}/videos
func (h *Handler) HandleGenerateVideos(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
		return h.orch.GenerateVideos(ctx, state)
	})
}

// HandleSelectVideo - POST /pipelines/{pipelineId}/videos/select
func (h *Handler) HandleSelectVideo(w http.ResponseWriter, r *http.Request) {
	var req SelectVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.transition(w, r, func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
		return h.orch.SelectVideo(state, req.VideoID)
	})
}

// HandleCompleteSegment - POST /pipelines/{pipelineId}/complete
func (h *Handler) HandleCompleteSegment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
		return h.orch.CompleteSegment(state)
	})
}

// HandleSkipSegment - POST /pipelines/{pipelineId}/skip
func (h *Handler) HandleSkipSegment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error) {
		return h.orch.SkipSegment(state)
	})
}

// HandleEnqueue - POST /pipelines/{pipelineId}/enqueue (워커 자동 실행 요청)
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pipelineID := vars["pipelineId"]

	ctx := r.Context()
	if _, err := redisutil.LoadState(ctx, h.rdb, pipelineID); err != nil {
		h.writeError(w, err)
		return
	}

	if err := redisutil.EnqueueJob(ctx, h.rdb, pipelineID); err != nil {
		http.Error(w, "Failed to enqueue pipeline", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"pipelineId": pipelineID,
		"status":     model.StatusPending,
	})
}

// HandleCancel - POST /pipelines/{pipelineId}/cancel
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pipelineID := vars["pipelineId"]

	if err := redisutil.MarkCancelled(r.Context(), h.rdb, pipelineID); err != nil {
		http.Error(w, "Failed to set cancel flag", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"pipelineId": pipelineID,
		"status":     model.StatusUserCancelled,
	})
}

// HandleCompileInput - GET /pipelines/{pipelineId}/compile
func (h *Handler) HandleCompileInput(w http.ResponseWriter, r *http.Request) {
	state, ok := h.loadState(w, r)
	if !ok {
		return
	}

	input, err := BuildCompileInput(state)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(input)
}

// transition - 공통 전이 처리: 스냅샷 로드 -> 전이 -> 새 체크포인트 저장.
// 전이가 거부되면 저장 없이 에러만 반환한다 (상태 불변).
func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, state *model.PipelineState) (*model.PipelineState, error),
) {
	state, ok := h.loadState(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	next, err := fn(ctx, state)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := redisutil.SaveState(ctx, h.rdb, next); err != nil {
		http.Error(w, "Failed to persist pipeline state", http.StatusInternalServerError)
		return
	}
	if err := h.db.SaveSnapshot(ctx, next); err != nil {
		log.Printf("⚠️  Failed to mirror snapshot for %s: %v", next.PipelineID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(next)
}

// loadState - URL의 pipelineId로 스냅샷 로드
func (h *Handler) loadState(w http.ResponseWriter, r *http.Request) (*model.PipelineState, bool) {
	vars := mux.Vars(r)
	pipelineID := vars["pipelineId"]

	state, err := redisutil.LoadState(r.Context(), h.rdb, pipelineID)
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return state, true
}

// writeError - 에러 분류별 HTTP 응답.
// PreconditionNotMet/NotFound만 사용자에게 메시지로 전달된다.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrPreconditionNotMet):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrStateCorrupted):
		log.Printf("❌ Pipeline state corrupted: %v", err)
		http.Error(w, "pipeline state corrupted", http.StatusInternalServerError)
	default:
		log.Printf("❌ Unexpected error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// archiveSelection - 선택된 사진을 스토리지에 비동기 보관
func (h *Handler) archiveSelection(pipelineID, characterID string, state *model.PipelineState) {
	url := ""
	for _, opt := range state.PhotoOptionsByCharacter[characterID] {
		if opt.Selected {
			url = opt.URL
		}
	}
	if url == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	if _, err := h.storage.ArchiveSelectedPhoto(ctx, pipelineID, characterID, url); err != nil {
		log.Printf("⚠️  Failed to archive selected photo for character %s: %v", characterID, err)
	}
}
