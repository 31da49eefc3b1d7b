package generator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	openai "github.com/zhural-2025/Smm-travel-bot/internal/infra/openai"
)

// fallbackTopic используется, когда список тем не настроен.
const fallbackTopic = "Советы для путешественников"

type chatImageClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, req openai.ImageRequest) (string, error)
}

// OpenAI генерирует travel-контент через Chat Completions и DALL-E.
type OpenAI struct {
	client     chatImageClient
	log        zerolog.Logger
	model      string
	imageModel string
	topics     []string
	timeout    time.Duration
	pick       func(n int) int
}

var _ domain.Generator = (*OpenAI)(nil)

// NewOpenAI создаёт генератор контента.
func NewOpenAI(client chatImageClient, log zerolog.Logger, model, imageModel string, topics []string) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if imageModel == "" {
		imageModel = "dall-e-3"
	}
	return &OpenAI{
		client:     client,
		log:        log,
		model:      model,
		imageModel: imageModel,
		topics:     topics,
		timeout:    90 * time.Second,
		pick:       rand.Intn,
	}
}

// GeneratePost генерирует текст поста, промпт и изображение.
// Ошибки модели деградируют: текст ошибки вместо контента, пустой URL
// вместо картинки. Пайплайн публикации обязан переживать пост без фото.
func (g *OpenAI) GeneratePost(ctx context.Context, topic string) domain.GeneratedPost {
	if strings.TrimSpace(topic) == "" {
		if len(g.topics) == 0 {
			topic = fallbackTopic
		} else {
			topic = g.topics[g.pick(len(g.topics))]
		}
	}

	result := domain.GeneratedPost{Topic: topic}

	content, err := g.generateText(ctx, topic)
	if err != nil {
		g.log.Error().Err(err).Str("topic", topic).Msg("ошибка генерации текста")
		result.Content = fmt.Sprintf("Ошибка генерации контента: %v", err)
		return result
	}
	result.Content = content

	prompt, err := g.generateImagePrompt(ctx, topic, content)
	if err != nil {
		g.log.Warn().Err(err).Msg("ошибка генерации промпта, используем запасной")
		prompt = FallbackImagePrompt(topic)
	}
	result.ImagePrompt = prompt

	imageURL, err := g.generateImage(ctx, prompt)
	if err != nil {
		g.log.Warn().Err(err).Msg("не удалось сгенерировать изображение, пост выйдет без него")
		return result
	}
	result.ImageURL = imageURL
	return result
}

func (g *OpenAI) generateText(ctx context.Context, topic string) (string, error) {
	prompt := fmt.Sprintf(`Ты - SMM-эксперт, который создает контент для блога о путешествиях в Telegram.

Создай интересный и вовлекающий пост на тему: "%s"

Требования к посту:
- Длина: 150-250 слов (ВАЖНО: НЕ БОЛЕЕ 250 слов!)
- Максимум 900 символов
- Стиль: живой, дружелюбный, информативный
- Структура: заголовок с эмодзи, основной текст с полезной информацией, призыв к действию
- Используй релевантные эмодзи для визуального разнообразия
- Добавь 2-3 практических совета или интересных факта
- Избегай банальностей
- Будь кратким и емким

Формат ответа: только текст поста, без дополнительных комментариев.`, topic)

	return g.chat(ctx, "Ты - профессиональный SMM-менеджер для блога о путешествиях. Пиши кратко и по делу.", prompt, 0.8, 600)
}

func (g *OpenAI) generateImagePrompt(ctx context.Context, topic, content string) (string, error) {
	prompt := fmt.Sprintf(`На основе следующего поста о путешествиях создай промпт для DALL-E (НА АНГЛИЙСКОМ ЯЗЫКЕ) для генерации РЕАЛЬНОЙ ФОТОГРАФИИ, а НЕ рисунка:

Тема: %s
Пост: %s

КРИТИЧЕСКИ ВАЖНО: Промпт ДОЛЖЕН начинаться со слов "A real photograph" или "Professional travel photograph" или "DSLR photograph"

Обязательно включи в промпт:
- "real photograph" или "DSLR photograph" или "professional travel photography"
- Технические термины: "shot with Canon/Nikon DSLR", "35mm lens", "f/2.8", "ISO 100"
- "photorealistic", "high resolution", "natural lighting"
- Детали сцены по теме поста

ЗАПРЕЩЕНО использовать:
- "illustration", "drawing", "artistic", "painting", "digital art", "rendering", "3D render"
- Любые слова связанные с искусством или иллюстрацией

Длина промпта: 50-150 слов на английском языке.
Формат ответа: ТОЛЬКО промпт без дополнительных комментариев, без кавычек.`, topic, clipRunes(content, 500))

	return g.chat(ctx, "Ты создаешь промпты ТОЛЬКО для реальных фотографий. ВСЕГДА начинай промпт со слов 'A real photograph' или 'Professional photograph' или 'DSLR photograph'. НИКОГДА не используй слова 'illustration', 'drawing', 'artistic', 'painting'. Включи технические фото-термины: DSLR, lens, aperture, ISO.", prompt, 0.7, 300)
}

func (g *OpenAI) generateImage(ctx context.Context, prompt string) (string, error) {
	sanitized := SanitizeImagePrompt(prompt)
	if sanitized != prompt {
		g.log.Debug().Msg("промпт изображения скорректирован под фотографию")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.client.CreateImage(ctx, openai.ImageRequest{
		Model:   g.imageModel,
		Prompt:  sanitized,
		Size:    "1024x1024",
		Quality: "standard",
		N:       1,
	})
}

// Recommendations возвращает сезонные рекомендации по контенту.
func (g *OpenAI) Recommendations(ctx context.Context) (string, error) {
	now := time.Now()
	prompt := fmt.Sprintf(`Ты - SMM-эксперт для блога о путешествиях в Telegram.

Сейчас: %s, %s

Предоставь рекомендации по контенту:

1. **5 АКТУАЛЬНЫХ ТЕМ ДЛЯ ПОСТОВ** (с учетом сезона)
2. **3 ИДЕИ ДЛЯ ВОВЛЕЧЕНИЯ АУДИТОРИИ**
3. **ЛУЧШЕЕ ВРЕМЯ ДЛЯ ПУБЛИКАЦИЙ**
4. **ТРЕНДЫ В TRAVEL-КОНТЕНТЕ**

Формат: структурированный текст с эмодзи, готовый для отправки в Telegram.`, now.Month().String(), CurrentSeason(now))

	return g.chat(ctx, "Ты - профессиональный SMM-консультант для travel-блогов. Давай конкретные, практичные советы.", prompt, 0.7, 1000)
}

// TopicIdeas возвращает список идей тем для постов.
func (g *OpenAI) TopicIdeas(ctx context.Context, count int) (string, error) {
	if count <= 0 {
		count = 5
	}
	prompt := fmt.Sprintf(`Предложи %d уникальных и интересных тем для постов в Telegram-блоге о путешествиях.

Текущий сезон: %s

Требования:
- Темы должны быть конкретными (не общими)
- Учитывай сезонность
- Включи разнообразие: советы, места, лайфхаки, истории

Формат ответа:
1. [Тема] - краткое описание (1 предложение)
2. [Тема] - краткое описание
...

Без лишних комментариев, только список тем.`, count, CurrentSeason(time.Now()))

	return g.chat(ctx, "Ты - креативный SMM-специалист для travel-блога.", prompt, 0.9, 500)
}

// AnalyzeIdea анализирует идею поста и предлагает улучшения.
func (g *OpenAI) AnalyzeIdea(ctx context.Context, idea string) (string, error) {
	prompt := fmt.Sprintf(`Проанализируй эту идею для поста в travel-блоге: "%s"

Дай краткий анализ:

1. **ОЦЕНКА ИДЕИ** (1-10): насколько тема интересна аудитории
2. **ЦЕЛЕВАЯ АУДИТОРИЯ**: кому будет интересен этот пост
3. **КАК УЛУЧШИТЬ**: 2-3 совета как сделать пост интереснее
4. **ХЕШТЕГИ**: 5 релевантных хештегов для поста
5. **ЛУЧШИЙ ФОРМАТ**: текст/фото/видео/карусель

Будь кратким и конкретным.`, idea)

	return g.chat(ctx, "Ты - SMM-аналитик для travel-контента.", prompt, 0.7, 500)
}

func (g *OpenAI) chat(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: system},
			{Role: openai.RoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("модель вернула пустой ответ")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CurrentSeason возвращает название сезона для промптов.
func CurrentSeason(now time.Time) string {
	switch now.Month() {
	case time.December, time.January, time.February:
		return "зима"
	case time.March, time.April, time.May:
		return "весна"
	case time.June, time.July, time.August:
		return "лето"
	default:
		return "осень"
	}
}
