package generator

import (
	"fmt"
	"strings"
)

// Слова, которые уводят DALL-E в сторону рисунка вместо фотографии.
var bannedPromptWords = []string{
	"illustration",
	"drawing",
	"artistic",
	"painting",
	"digital art",
	"rendering",
}

var photoMarkers = []string{
	"real photograph",
	"dslr photograph",
	"professional photograph",
	"photograph taken",
}

// SanitizeImagePrompt приводит промпт к фотографическому виду:
// убирает запрещённые слова, добавляет фото-маркер в начало и
// технические термины съёмки, если их нет.
func SanitizeImagePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return prompt
	}

	for _, word := range bannedPromptWords {
		prompt = strings.ReplaceAll(prompt, word, "")
		title := strings.ToUpper(word[:1]) + word[1:]
		prompt = strings.ReplaceAll(prompt, title, "")
	}
	prompt = strings.Join(strings.Fields(prompt), " ")

	lower := strings.ToLower(prompt)
	hasMarker := false
	for _, marker := range photoMarkers {
		if strings.Contains(lower, marker) {
			hasMarker = true
			break
		}
	}
	if !hasMarker && !strings.HasPrefix(lower, "a real") && !strings.HasPrefix(lower, "professional") && !strings.HasPrefix(lower, "dslr") {
		prompt = "A real photograph, " + prompt
		lower = strings.ToLower(prompt)
	}

	if !strings.Contains(lower, "dslr") && !strings.Contains(lower, "camera") {
		prompt += ", shot with professional DSLR camera, natural lighting"
	}
	return prompt
}

// FallbackImagePrompt запасной промпт, если модель не вернула свой.
func FallbackImagePrompt(topic string) string {
	return fmt.Sprintf("A real photograph of %s, professional travel photography, shot with DSLR camera, 35mm lens, natural lighting, high resolution, photorealistic, vibrant colors", topic)
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
