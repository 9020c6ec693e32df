package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"storyreel-server/modules/common/config"
)

// MediaRequest - 이미지/비디오 생성 요청
type MediaRequest struct {
	Kind          string   `json:"kind"` // "photo" 또는 "video"
	Prompt        string   `json:"prompt"`
	Style         string   `json:"style,omitempty"`
	AspectRatio   string   `json:"aspectRatio,omitempty"`
	ReferenceURLs []string `json:"referenceUrls,omitempty"`
}

// GenerationClient - 생성 AI 호출 경계. 호출당 1회 시도, 재시도 없음.
// 실패 처리는 호출자(각 스테이지)의 fallback이 담당한다.
// 빈 문자열 응답과 에러는 동일하게 실패로 취급된다.
type GenerationClient interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateMedia(ctx context.Context, req MediaRequest) (string, error)
}

// Client - Gemini(텍스트) + Media API(이미지/비디오) 구현체
type Client struct {
	cfg         *config.Config
	genaiClient *genai.Client
	httpClient  *http.Client
}

// NewClient - Genai 클라이언트 초기화
func NewClient(ctx context.Context) *Client {
	cfg := config.GetConfig()

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Printf("❌ Failed to create Genai client: %v", err)
		return nil
	}

	log.Println("✅ Genai client initialized")
	return &Client{
		cfg:         cfg,
		genaiClient: genaiClient,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenerateText - Gemini 텍스트 생성 (1회 시도)
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	content := genai.NewContentFromText(prompt, genai.RoleUser)

	result, err := c.genaiClient.Models.GenerateContent(
		ctx,
		c.cfg.GeminiModel,
		[]*genai.Content{content},
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	// 응답 처리
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text data in response")
	}

	log.Printf("✅ Received text from Gemini: %d chars", len(text))
	return text, nil
}

// mediaResponse - Media API 응답
type mediaResponse struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
}

// GenerateMedia - 외부 생성 엔드포인트 호출, 결과 URL 반환 (1회 시도)
func (c *Client) GenerateMedia(ctx context.Context, req MediaRequest) (string, error) {
	if c.cfg.MediaAPIEndpoint == "" {
		return "", fmt.Errorf("MEDIA_API_ENDPOINT not configured")
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.cfg.MediaAPIEndpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.MediaAPIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call media API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("media API error: %s", string(body))
	}

	var mediaResp mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&mediaResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if mediaResp.URL == "" {
		return "", fmt.Errorf("no media URL in response")
	}

	log.Printf("✅ Received media URL (%s): %s", req.Kind, mediaResp.URL)
	return mediaResp.URL, nil
}
