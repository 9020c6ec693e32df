package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storyreel-server/modules/common/gemini"
	"storyreel-server/modules/common/model"
	"storyreel-server/modules/pipeline"
)

// mediaOnlyClient - 텍스트 생성은 실패하고 미디어 생성만 성공하는 클라이언트.
// 사진이 미선택 상태로 생성되어 자동 선택 경로까지 워커가 전진해야 한다.
type mediaOnlyClient struct{}

func (mediaOnlyClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("text api offline")
}

func (mediaOnlyClient) GenerateMedia(ctx context.Context, req gemini.MediaRequest) (string, error) {
	return "https://cdn.example.com/generated/" + req.Kind + ".bin", nil
}

func TestAdvanceRunsPipelineToFinish(t *testing.T) {
	ctx := context.Background()
	orch := pipeline.NewOrchestrator(mediaOnlyClient{}, 4, 5)

	state := pipeline.NewState("adventure", "cinematic", []model.Segment{
		{ID: "seg-1", Title: "Into the Canyon", Content: "They descend at dawn."},
		{ID: "seg-2", Title: "The Crossing", Content: "A rope bridge sways in the wind."},
	})

	steps := 0
	for state.Phase != model.PhaseFinished {
		next, err := advance(ctx, orch, state)
		if err != nil {
			t.Fatalf("advance failed in phase %s: %v", state.Phase, err)
		}
		state = next

		steps++
		if steps > 20 {
			t.Fatalf("pipeline did not finish, stuck in phase %s", state.Phase)
		}
	}

	if len(state.ProcessedSegments) != 2 {
		t.Fatalf("expected 2 processed segments, got %d", len(state.ProcessedSegments))
	}
	for i, seg := range state.ProcessedSegments {
		if seg.Skipped {
			t.Errorf("segment %d wrongly skipped in auto mode", i)
		}
		if seg.SelectedVideoID == "" {
			t.Errorf("segment %d missing auto-selected video", i)
		}
		if len(seg.Photos) == 0 {
			t.Errorf("segment %d missing selected photos", i)
		}
	}
}

func TestAdvanceAutoSelectsFirstOptions(t *testing.T) {
	ctx := context.Background()
	orch := pipeline.NewOrchestrator(mediaOnlyClient{}, 3, 5)

	state := pipeline.NewState("mystery", "noir", []model.Segment{
		{ID: "seg-1", Title: "The Letter", Content: "An envelope with no return address."},
	})

	// pending -> characters_generated -> photos_pending
	var err error
	for i := 0; i < 2; i++ {
		state, err = advance(ctx, orch, state)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if state.Phase != model.PhasePhotosPending {
		t.Fatalf("expected photos_pending after generation, got %s", state.Phase)
	}

	firstIDs := map[string]string{}
	for _, c := range state.CurrentCharacters {
		firstIDs[c.ID] = state.PhotoOptionsByCharacter[c.ID][0].ID
	}

	state, err = advance(ctx, orch, state)
	if err != nil {
		t.Fatalf("auto-select photos: %v", err)
	}
	if state.Phase != model.PhasePhotosComplete {
		t.Fatalf("expected photos_complete after auto-select, got %s", state.Phase)
	}

	for charID, wantID := range firstIDs {
		for _, opt := range state.PhotoOptionsByCharacter[charID] {
			if opt.Selected != (opt.ID == wantID) {
				t.Errorf("character %s: auto-select must pick the first option", charID)
			}
		}
	}
}

func TestStateFromJobRestoresSnapshot(t *testing.T) {
	state := pipeline.NewState("scifi", "cinematic", []model.Segment{
		{ID: "seg-1", Title: "Launch Day", Content: "The crew boards the ship."},
	})
	snapshot, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}

	// JSONB 컬럼은 객체 그대로 내려온다 - 테이블 행 형태로 디코딩까지 검증
	row := []byte(`[{"job_id":"` + state.PipelineID + `","theme":"scifi","job_status":"processing",` +
		`"total_segments":1,"completed_segments":0,"state_snapshot":` + string(snapshot) + `}]`)

	var jobs []model.PipelineJob
	if err := json.Unmarshal(row, &jobs); err != nil {
		t.Fatalf("row with object snapshot must decode: %v", err)
	}

	restored, err := stateFromJob(&jobs[0])
	if err != nil {
		t.Fatalf("stateFromJob: %v", err)
	}
	if restored.PipelineID != state.PipelineID || restored.Phase != model.PhasePending {
		t.Errorf("restored state mismatch: %s phase %s", restored.PipelineID, restored.Phase)
	}
	if len(restored.Segments) != 1 || restored.Segments[0].ID != "seg-1" {
		t.Errorf("restored segments wrong: %+v", restored.Segments)
	}
}

func TestStateFromJobRejectsBadSnapshots(t *testing.T) {
	empty := &model.PipelineJob{JobID: "job-1"}
	if _, err := stateFromJob(empty); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing snapshot: got %v, want ErrNotFound", err)
	}

	mismatched := &model.PipelineJob{
		JobID:         "job-1",
		StateSnapshot: json.RawMessage(`{"pipelineId":"other","phase":"pending"}`),
	}
	if _, err := stateFromJob(mismatched); !errors.Is(err, model.ErrStateCorrupted) {
		t.Errorf("mismatched pipeline id: got %v, want ErrStateCorrupted", err)
	}
}

func TestAdvanceRejectsUnknownPhase(t *testing.T) {
	orch := pipeline.NewOrchestrator(mediaOnlyClient{}, 4, 5)
	state := pipeline.NewState("scifi", "cinematic", []model.Segment{
		{ID: "seg-1", Title: "Launch", Content: "Countdown begins."},
	})
	state.Phase = "compiling"

	if _, err := advance(context.Background(), orch, state); !errors.Is(err, model.ErrStateCorrupted) {
		t.Errorf("unknown phase: got %v, want ErrStateCorrupted", err)
	}
}
