package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/supabase-community/supabase-go"
	"storyreel-server/modules/common/config"
	"storyreel-server/modules/common/model"
)

const jobsTable = "reel_pipeline_jobs"

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase: supabaseClient,
	}
}

// CreateJob - 파이프라인 Job 레코드 생성
func (c *Client) CreateJob(ctx context.Context, jobID, theme, style string, totalSegments int) error {
	log.Printf("💾 Creating pipeline job: %s (%d segments)", jobID, totalSegments)

	insertData := map[string]interface{}{
		"job_id":             jobID,
		"theme":              theme,
		"style":              style,
		"job_status":         model.StatusPending,
		"total_segments":     totalSegments,
		"completed_segments": 0,
	}

	_, _, err := c.supabase.From(jobsTable).
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert pipeline job: %w", err)
	}

	log.Printf("✅ Pipeline job created: %s", jobID)
	return nil
}

// FetchJob - Supabase에서 Job 데이터 조회
func (c *Client) FetchJob(jobID string) (*model.PipelineJob, error) {
	log.Printf("🔍 Fetching pipeline job from Supabase: %s", jobID)

	var jobs []model.PipelineJob

	data, _, err := c.supabase.From(jobsTable).
		Select("*", "exact", false).
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query Supabase: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("pipeline job %s: %w", jobID, model.ErrNotFound)
	}

	job := &jobs[0]
	log.Printf("✅ Job fetched successfully: %s (status: %s, segments: %d/%d)",
		job.JobID, job.JobStatus, job.CompletedSegments, job.TotalSegments)

	return job, nil
}

// UpdateJobStatus - Job 상태 업데이트
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, status string) error {
	log.Printf("📝 Updating job %s status to: %s", jobID, status)

	updateData := map[string]interface{}{
		"job_status": status,
		"updated_at": "now()",
	}

	if status == model.StatusProcessing {
		updateData["started_at"] = "now()"
	} else if status == model.StatusCompleted || status == model.StatusFailed {
		updateData["completed_at"] = "now()"
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	log.Printf("✅ Job %s status updated to: %s", jobID, status)
	return nil
}

// UpdateJobError - 실패 사유 기록
func (c *Client) UpdateJobError(ctx context.Context, jobID string, message string) error {
	updateData := map[string]interface{}{
		"job_status":    model.StatusFailed,
		"error_message": message,
		"completed_at":  "now()",
		"updated_at":    "now()",
	}

	_, _, err := c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to record job error: %w", err)
	}

	return nil
}

// SaveSnapshot - 체크포인트 스냅샷과 진행 상황을 Job 레코드에 반영
func (c *Client) SaveSnapshot(ctx context.Context, state *model.PipelineState) error {
	snapshot, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state snapshot: %w", err)
	}

	updateData := map[string]interface{}{
		"state_snapshot":     json.RawMessage(snapshot),
		"completed_segments": len(state.ProcessedSegments),
		"updated_at":         "now()",
	}

	_, _, err = c.supabase.From(jobsTable).
		Update(updateData, "", "").
		Eq("job_id", state.PipelineID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to save state snapshot: %w", err)
	}

	log.Printf("📊 Snapshot saved for job %s: %d/%d segments (phase: %s)",
		state.PipelineID, len(state.ProcessedSegments), len(state.Segments), state.Phase)
	return nil
}

// Storage - 스토리지 업로드용 supabase 클라이언트 접근자
func (c *Client) Storage() *supabase.Client {
	return c.supabase
}
