package fallback

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"storyreel-server/modules/common/model"
)

// DefaultTraits - 캐릭터 traits 기본값
var DefaultTraits = []string{"Adaptable", "Creative"}

// characterPair - 테마 키워드별 기본 캐릭터 이름 쌍
type characterPair struct {
	protagonist string
	supporting  string
}

var themePairs = []struct {
	keywords []string
	pair     characterPair
}{
	{[]string{"adventure"}, characterPair{"Explorer Max", "Guide Sam"}},
	{[]string{"scifi", "sci-fi"}, characterPair{"Captain Nova", "Engineer Zeta"}},
	{[]string{"romance"}, characterPair{"Taylor", "Riley"}},
	{[]string{"mystery", "detective"}, characterPair{"Detective Morgan", "Witness Jamie"}},
}

var defaultPair = characterPair{"Alex", "Jordan"}

// pairForTheme - 테마 키워드 매칭 (대소문자 무시, 부분 일치)
func pairForTheme(theme string) characterPair {
	lower := strings.ToLower(theme)
	for _, entry := range themePairs {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.pair
			}
		}
	}
	return defaultPair
}

// Characters - AI 생성 실패/스킵 시 사용할 기본 캐릭터 2명 생성.
// 같은 (segmentTitle, theme) 입력이면 항상 같은 이름/설명이 나온다 (ID 제외).
func Characters(segmentTitle, theme string) []model.Character {
	pair := pairForTheme(theme)

	return []model.Character{
		{
			ID:          uuid.New().String(),
			Name:        pair.protagonist,
			Description: fmt.Sprintf("The central figure of \"%s\", shaped by a %s story", segmentTitle, theme),
			Traits:      append([]string(nil), DefaultTraits...),
			Role:        "Protagonist",
		},
		{
			ID:          uuid.New().String(),
			Name:        pair.supporting,
			Description: fmt.Sprintf("A companion drawn into \"%s\", grounding its %s tone", segmentTitle, theme),
			Traits:      append([]string(nil), DefaultTraits...),
			Role:        "Supporting Character",
		},
	}
}

// photoSeed - characterID 기반 고정 seed (재호출 시 동일 URL 보장)
func photoSeed(characterID string, index int) uint32 {
	h := fnv.New32a()
	h.Write([]byte(characterID))
	h.Write([]byte("#" + strconv.Itoa(index)))
	return h.Sum32()
}

// PhotoOptions - 캐릭터별 기본 사진 옵션 생성. 첫 번째 옵션이 선택된 상태.
func PhotoOptions(characterID, style string, count int) []model.PhotoOption {
	if count <= 0 {
		count = 1
	}

	options := make([]model.PhotoOption, 0, count)
	for i := 0; i < count; i++ {
		seed := photoSeed(characterID, i)
		options = append(options, model.PhotoOption{
			ID:       fmt.Sprintf("photo-%08x-%d", seed, i),
			URL:      fmt.Sprintf("https://picsum.photos/seed/%08x/512/768", seed),
			Style:    style,
			Selected: i == 0,
		})
	}
	return options
}

// videoPool - 비디오 fallback 고정 후보 풀
var videoPool = []model.VideoOption{
	{ID: "stock-pan-skyline", URL: "https://cdn.storyreel.app/stock/pan-skyline.mp4", ThumbnailURL: "https://cdn.storyreel.app/stock/pan-skyline.jpg"},
	{ID: "stock-slow-walk", URL: "https://cdn.storyreel.app/stock/slow-walk.mp4", ThumbnailURL: "https://cdn.storyreel.app/stock/slow-walk.jpg"},
	{ID: "stock-close-dialogue", URL: "https://cdn.storyreel.app/stock/close-dialogue.mp4", ThumbnailURL: "https://cdn.storyreel.app/stock/close-dialogue.jpg"},
	{ID: "stock-wide-reveal", URL: "https://cdn.storyreel.app/stock/wide-reveal.mp4", ThumbnailURL: "https://cdn.storyreel.app/stock/wide-reveal.jpg"},
	{ID: "stock-night-drive", URL: "https://cdn.storyreel.app/stock/night-drive.mp4", ThumbnailURL: "https://cdn.storyreel.app/stock/night-drive.jpg"},
}

// VideoPoolSize - 고정 후보 풀 크기
func VideoPoolSize() int {
	return len(videoPool)
}

// VideoOptions - 고정 풀에서 결정적으로 비디오 옵션을 고른다.
// 시작 인덱스 = (characterCount + len(theme)) mod poolSize.
// 같은 입력이면 항상 같은 순서의 옵션이 나온다.
func VideoOptions(segmentID string, characterCount int, theme string, max int) []model.VideoOption {
	if max <= 0 {
		max = 1
	}
	if max > len(videoPool) {
		max = len(videoPool)
	}

	start := (characterCount + len(theme)) % len(videoPool)

	options := make([]model.VideoOption, 0, max)
	for i := 0; i < max; i++ {
		candidate := videoPool[(start+i)%len(videoPool)]
		candidate.ID = fmt.Sprintf("%s-%s", segmentID, candidate.ID)
		options = append(options, candidate)
	}
	return options
}

// SafeString returns a trimmed string or the provided fallback.
func SafeString(value interface{}, fallback string) string {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s != "" {
			return s
		}
	}
	return fallback
}

// SafeStringList - 문자열 배열 정규화 (빈 값 제거, 최대 개수 제한)
func SafeStringList(values []string, limit int, fallback []string) []string {
	cleaned := make([]string, 0, limit)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		cleaned = append(cleaned, v)
		if len(cleaned) == limit {
			break
		}
	}

	if len(cleaned) == 0 {
		return append([]string(nil), fallback...)
	}
	return cleaned
}
