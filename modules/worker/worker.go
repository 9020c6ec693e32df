package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"storyreel-server/modules/common/config"
	"storyreel-server/modules/common/database"
	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
	redisutil "storyreel-server/modules/common/redis"
	"storyreel-server/modules/photos"
	"storyreel-server/modules/pipeline"
	"storyreel-server/modules/videos"

	goredis "github.com/redis/go-redis/v9"
)

// Broadcaster - 진행 이벤트 발행 함수 (websocket 허브가 주입)
type Broadcaster func(pipelineID string, event model.ProgressEvent)

// StartWorker - Redis Queue Worker 시작.
// 대기열의 파이프라인을 자동 모드로 끝까지 실행한다:
// 선택이 필요한 지점에서는 항상 첫 번째 옵션을 고른다.
func StartWorker(broadcast Broadcaster) {
	log.Println("🔄 Pipeline Queue Worker starting...")

	cfg := config.GetConfig()

	// Redis 연결
	rdb := redisutil.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
		return
	}
	log.Println("✅ Redis connected successfully")

	// Database 클라이언트 초기화
	dbClient := database.NewClient()
	if dbClient == nil {
		log.Fatal("❌ Failed to initialize Database client")
		return
	}

	// 생성 클라이언트 + 오케스트레이터 초기화
	ctx := context.Background()
	genClient := gemini.NewClient(ctx)
	if genClient == nil {
		log.Fatal("❌ Failed to initialize generation client")
		return
	}
	orch := pipeline.NewOrchestrator(genClient, cfg.PhotoOptionCount, cfg.VideoOptionMax)

	// Queue 감시 시작
	log.Printf("👀 Watching queue: %s", redisutil.QueueKey)

	// 무한 루프로 Queue 감시
	for {
		// Job 받기 (BRPOP - Blocking Right Pop)
		result, err := rdb.BRPop(ctx, 0, redisutil.QueueKey).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		// result[0]은 queue 이름, result[1]이 실제 pipeline_id
		pipelineID := result[1]
		log.Printf("🎯 Received new pipeline: %s", pipelineID)

		// Job 처리 (goroutine으로 비동기)
		go processPipeline(ctx, rdb, dbClient, orch, pipelineID, broadcast)
	}
}

// processPipeline - 파이프라인을 Finished까지 자동 실행
func processPipeline(
	ctx context.Context,
	rdb *goredis.Client,
	dbClient *database.Client,
	orch *pipeline.Orchestrator,
	pipelineID string,
	broadcast Broadcaster,
) {
	log.Printf("🚀 Processing pipeline: %s", pipelineID)

	state, err := redisutil.LoadState(ctx, rdb, pipelineID)
	if err != nil {
		// Redis 스냅샷이 TTL로 만료됐을 수 있음 - Supabase 미러에서 복구 시도
		state, err = recoverFromSnapshot(ctx, rdb, dbClient, pipelineID)
		if err != nil {
			log.Printf("❌ Failed to load state for pipeline %s: %v", pipelineID, err)
			dbClient.UpdateJobError(ctx, pipelineID, fmt.Sprintf("state not found: %v", err))
			return
		}
	}

	if err := dbClient.UpdateJobStatus(ctx, pipelineID, model.StatusProcessing); err != nil {
		log.Printf("⚠️  Failed to mark job processing: %v", err)
	}

	for state.Phase != model.PhaseFinished {
		// 스테이지 경계마다 취소 확인 - 스냅샷은 체크포인트 단위라 중단해도 안전
		if redisutil.IsCancelled(rdb, pipelineID) {
			log.Printf("🛑 Pipeline %s cancelled, keeping partial progress (%d/%d segments)",
				pipelineID, len(state.ProcessedSegments), len(state.Segments))
			dbClient.UpdateJobStatus(ctx, pipelineID, model.StatusUserCancelled)
			emit(broadcast, state, "pipeline_cancelled", "cancelled by user")
			return
		}

		next, err := advance(ctx, orch, state)
		if err != nil {
			// 불변식 위반은 복구 불가 - 이어가지 않고 실패 처리
			log.Printf("❌ Pipeline %s failed in phase %s: %v", pipelineID, state.Phase, err)
			dbClient.UpdateJobError(ctx, pipelineID, err.Error())
			emit(broadcast, state, "pipeline_failed", err.Error())
			return
		}
		state = next

		// 체크포인트 저장 (Redis + Supabase 미러)
		if err := redisutil.SaveState(ctx, rdb, state); err != nil {
			log.Printf("⚠️  Failed to save checkpoint for %s: %v", pipelineID, err)
		}
		if err := dbClient.SaveSnapshot(ctx, state); err != nil {
			log.Printf("⚠️  Failed to mirror snapshot for %s: %v", pipelineID, err)
		}

		emit(broadcast, state, "pipeline_progress", "")
	}

	input, err := pipeline.BuildCompileInput(state)
	if err != nil {
		log.Printf("❌ Pipeline %s finished but compile input invalid: %v", pipelineID, err)
		dbClient.UpdateJobError(ctx, pipelineID, err.Error())
		return
	}

	log.Printf("🎉 Pipeline %s completed: %d segments, %d roster characters",
		pipelineID, len(input.ProcessedSegments), len(input.Roster))
	dbClient.UpdateJobStatus(ctx, pipelineID, model.StatusCompleted)
	emit(broadcast, state, "pipeline_completed", "")
}

// stateFromJob - Supabase 미러의 JSONB 스냅샷을 PipelineState로 복원
func stateFromJob(job *model.PipelineJob) (*model.PipelineState, error) {
	if len(job.StateSnapshot) == 0 {
		return nil, fmt.Errorf("job %s has no state snapshot: %w", job.JobID, model.ErrNotFound)
	}

	var state model.PipelineState
	if err := json.Unmarshal(job.StateSnapshot, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state snapshot for job %s: %w", job.JobID, err)
	}

	if state.PipelineID != job.JobID {
		return nil, fmt.Errorf("snapshot pipeline id %s does not match job %s: %w",
			state.PipelineID, job.JobID, model.ErrStateCorrupted)
	}

	return &state, nil
}

// recoverFromSnapshot - Redis 키가 사라진 파이프라인을 Supabase 스냅샷에서 복구하고
// 복구된 상태를 Redis에 다시 올린다.
func recoverFromSnapshot(ctx context.Context, rdb *goredis.Client, dbClient *database.Client, pipelineID string) (*model.PipelineState, error) {
	log.Printf("♻️  Redis state missing for %s, recovering from Supabase snapshot", pipelineID)

	job, err := dbClient.FetchJob(pipelineID)
	if err != nil {
		return nil, err
	}

	state, err := stateFromJob(job)
	if err != nil {
		return nil, err
	}

	if err := redisutil.SaveState(ctx, rdb, state); err != nil {
		log.Printf("⚠️  Failed to restore recovered state to Redis: %v", err)
	}

	log.Printf("✅ Recovered pipeline %s from snapshot (phase: %s, %d/%d segments)",
		pipelineID, state.Phase, len(state.ProcessedSegments), len(state.Segments))
	return state, nil
}

// advance - 현재 phase에 맞는 다음 전이 한 번 실행.
// 세그먼트는 엄격히 순차 처리: i가 커밋되기 전에 i+1은 시작하지 않는다.
func advance(ctx context.Context, orch *pipeline.Orchestrator, state *model.PipelineState) (*model.PipelineState, error) {
	switch state.Phase {
	case model.PhasePending:
		return orch.GenerateCharacters(ctx, state)

	case model.PhaseCharactersGenerated:
		return orch.GeneratePhotos(ctx, state)

	case model.PhasePhotosPending:
		return autoSelectPhotos(orch, state)

	case model.PhasePhotosComplete:
		return orch.GenerateVideos(ctx, state)

	case model.PhaseVideosPending:
		return autoSelectVideoAndComplete(orch, state)

	default:
		return nil, fmt.Errorf("unexpected phase %s: %w", state.Phase, model.ErrStateCorrupted)
	}
}

// autoSelectPhotos - 선택이 없는 캐릭터마다 첫 번째 옵션을 자동 선택
func autoSelectPhotos(orch *pipeline.Orchestrator, state *model.PipelineState) (*model.PipelineState, error) {
	for _, c := range state.CurrentCharacters {
		options := state.PhotoOptionsByCharacter[c.ID]
		if len(options) == 0 {
			return nil, fmt.Errorf("character %s has no photo options: %w", c.ID, model.ErrStateCorrupted)
		}

		if photos.SelectedURL(state.PhotoOptionsByCharacter, c.ID) != "" {
			continue
		}

		next, err := orch.SelectPhoto(state, c.ID, options[0].ID)
		if err != nil {
			return nil, err
		}
		state = next
	}

	if state.Phase != model.PhasePhotosComplete {
		return nil, fmt.Errorf("photo selection incomplete after auto-select: %w", model.ErrStateCorrupted)
	}
	return state, nil
}

// autoSelectVideoAndComplete - 첫 번째 비디오 옵션 선택 후 세그먼트 커밋
func autoSelectVideoAndComplete(orch *pipeline.Orchestrator, state *model.PipelineState) (*model.PipelineState, error) {
	segment := pipeline.CurrentSegment(state)
	if segment == nil {
		return nil, fmt.Errorf("no current segment: %w", model.ErrStateCorrupted)
	}

	if videos.SelectedID(state.SegmentVideosBySegment, segment.ID) == "" {
		options := state.SegmentVideosBySegment[segment.ID]
		if len(options) == 0 {
			return nil, fmt.Errorf("segment %s has no video options: %w", segment.ID, model.ErrStateCorrupted)
		}

		next, err := orch.SelectVideo(state, options[0].ID)
		if err != nil {
			return nil, err
		}
		state = next
	}

	return orch.CompleteSegment(state)
}

// emit - 진행 이벤트 발행 (허브 미연결 시 무시)
func emit(broadcast Broadcaster, state *model.PipelineState, eventType, message string) {
	if broadcast == nil {
		return
	}
	broadcast(state.PipelineID, model.ProgressEvent{
		Type:              eventType,
		PipelineID:        state.PipelineID,
		Phase:             state.Phase,
		SegmentIndex:      state.CurrentSegmentIndex,
		TotalSegments:     len(state.Segments),
		ProcessedSegments: len(state.ProcessedSegments),
		Message:           message,
		Timestamp:         time.Now(),
	})
}
