package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"storyreel-server/modules/common/config"
	"storyreel-server/modules/common/utils"
)

type Client struct {
	httpClient *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// DownloadImage - 외부 URL에서 이미지 다운로드
func (c *Client) DownloadImage(ctx context.Context, url string) ([]byte, error) {
	log.Printf("📥 Downloading image from: %s", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to download image: status %d, body: %s", resp.StatusCode, string(body))
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	log.Printf("✅ Image downloaded successfully: %d bytes", len(imageData))
	return imageData, nil
}

// ArchiveSelectedPhoto - 선택된 캐릭터 사진을 WebP로 변환해 Supabase Storage에 보관.
// 보관 실패는 파이프라인 진행을 막지 않는다 - 호출자가 로그만 남긴다.
func (c *Client) ArchiveSelectedPhoto(ctx context.Context, pipelineID, characterID, photoURL string) (string, error) {
	cfg := config.GetConfig()

	imageData, err := c.DownloadImage(ctx, photoURL)
	if err != nil {
		return "", err
	}

	// WebP로 변환 (quality: 90)
	webpData, err := utils.ConvertToWebP(imageData, 90.0)
	if err != nil {
		return "", fmt.Errorf("failed to convert selected photo: %w", err)
	}

	fileName := fmt.Sprintf("selected_%d.webp", time.Now().UnixNano()/int64(time.Millisecond))
	filePath := fmt.Sprintf("pipelines/%s/characters/%s/%s", pipelineID, characterID, fileName)

	log.Printf("📤 Uploading selected photo to storage: %s", filePath)

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s",
		cfg.SupabaseURL, cfg.SupabaseStorageBucket, filePath)

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, bytes.NewReader(webpData))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", "image/webp")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("✅ Selected photo archived: %s (%d bytes)", filePath, len(webpData))
	return filePath, nil
}
