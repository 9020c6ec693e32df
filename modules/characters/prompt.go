package characters

import (
	"fmt"
	"strings"
)

// BuildExtractionPrompt - 세그먼트 텍스트에서 캐릭터 목록을 뽑는 프롬프트 생성
func BuildExtractionPrompt(segmentTitle, segmentContent, theme string) string {
	var promptBuilder strings.Builder

	promptBuilder.WriteString("=== EXTRACT CHARACTERS FROM SCRIPT SEGMENT ===\n\n")
	promptBuilder.WriteString("[THE GOAL]\n")
	promptBuilder.WriteString("Read the segment below and list every character that appears or is implied.\n")
	promptBuilder.WriteString("Characters drive the visuals of a short video, so include anyone worth showing on screen.\n\n")

	promptBuilder.WriteString(fmt.Sprintf("[SEGMENT TITLE]\n%s\n\n", segmentTitle))
	promptBuilder.WriteString(fmt.Sprintf("[THEME]\n%s\n\n", theme))
	promptBuilder.WriteString(fmt.Sprintf("[SEGMENT TEXT]\n%s\n\n", segmentContent))

	promptBuilder.WriteString("[OUTPUT FORMAT]\n")
	promptBuilder.WriteString("Respond with ONLY a JSON array. No markdown, no commentary.\n")
	promptBuilder.WriteString("Each element: {\"name\": string, \"description\": string, \"traits\": [up to 5 short strings], \"role\": string}\n")
	promptBuilder.WriteString("Role examples: \"Protagonist\", \"Supporting Character\", \"Antagonist\", \"Narrator\".\n")

	return promptBuilder.String()
}
