package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"storyreel-server/modules/common/config"
	"storyreel-server/modules/common/model"
)

// QueueKey - 파이프라인 Job 대기열
const QueueKey = "pipeline:queue"

// 스냅샷/취소 플래그 TTL
const (
	stateTTL  = 24 * time.Hour
	cancelTTL = 24 * time.Hour
)

// Connect - Redis 연결 생성
func Connect(cfg *config.Config) *redis.Client {
	log.Printf("🔌 Connecting to Redis: %s", cfg.GetRedisAddr())

	// TLS 설정 (InsecureSkipVerify 추가)
	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // Render.com Redis용
		}
	}

	// Redis 클라이언트 생성
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,                // 기본 DB
		DialTimeout:  10 * time.Second, // 타임아웃 늘림
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// 연결 테스트
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("🔍 Testing Redis connection...")
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Redis ping failed: %v", err)
		return nil
	}

	return rdb
}

// EnqueueJob - 파이프라인 Job을 대기열에 추가
func EnqueueJob(ctx context.Context, rdb *redis.Client, jobID string) error {
	if err := rdb.LPush(ctx, QueueKey, jobID).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	log.Printf("📥 Job %s enqueued to %s", jobID, QueueKey)
	return nil
}

func stateKey(pipelineID string) string {
	return "pipeline:state:" + pipelineID
}

func cancelKey(pipelineID string) string {
	return "pipeline:cancel:" + pipelineID
}

// SaveState - 체크포인트 스냅샷 저장 (JSON, 24시간 TTL)
func SaveState(ctx context.Context, rdb *redis.Client, state *model.PipelineState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline state: %w", err)
	}

	if err := rdb.Set(ctx, stateKey(state.PipelineID), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save pipeline state: %w", err)
	}

	log.Printf("💾 Checkpoint saved: %s (phase: %s, processed: %d/%d)",
		state.PipelineID, state.Phase, len(state.ProcessedSegments), len(state.Segments))
	return nil
}

// LoadState - 체크포인트 스냅샷 복원
func LoadState(ctx context.Context, rdb *redis.Client, pipelineID string) (*model.PipelineState, error) {
	data, err := rdb.Get(ctx, stateKey(pipelineID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("pipeline state %s: %w", pipelineID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline state: %w", err)
	}

	var state model.PipelineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline state: %w", err)
	}

	return &state, nil
}

// MarkCancelled - 파이프라인 취소 플래그 설정
func MarkCancelled(ctx context.Context, rdb *redis.Client, pipelineID string) error {
	if err := rdb.Set(ctx, cancelKey(pipelineID), "1", cancelTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	log.Printf("🛑 Cancel flag set for pipeline %s", pipelineID)
	return nil
}

// IsCancelled - 취소 여부 확인 (Redis 불능 시 false)
func IsCancelled(rdb *redis.Client, pipelineID string) bool {
	if rdb == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	val, err := rdb.Get(ctx, cancelKey(pipelineID)).Result()
	if err != nil {
		return false
	}
	return val == "1"
}
