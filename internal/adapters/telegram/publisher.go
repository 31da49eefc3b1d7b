package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/metrics"
)

// Ошибки валидации целевой группы. Возвращаются вызывающему,
// в отличие от временных сбоев отправки.
var (
	ErrGroupNotFound  = errors.New("telegram: группа не найдена")
	ErrGroupForbidden = errors.New("telegram: нет доступа к группе")
	ErrEmptyContent   = errors.New("telegram: пустой контент")
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
}

type imageDownloader interface {
	Download(ctx context.Context, url string) (string, error)
	Cleanup(path string)
}

// Publisher отправляет посты в целевую группу.
type Publisher struct {
	api    botAPI
	images imageDownloader
	log    zerolog.Logger

	chatID   int64
	username string
}

var _ domain.Publisher = (*Publisher)(nil)

// NewPublisher создаёт публикатор. groupID принимает числовой идентификатор
// ("-1001234567890") или username группы ("@travel_group" или "travel_group").
func NewPublisher(api botAPI, images imageDownloader, log zerolog.Logger, groupID string) *Publisher {
	p := &Publisher{api: api, images: images, log: log}
	groupID = strings.TrimSpace(groupID)
	if id, err := strconv.ParseInt(groupID, 10, 64); err == nil {
		p.chatID = id
	} else {
		p.username = "@" + strings.TrimPrefix(groupID, "@")
	}
	return p
}

// Publish отправляет пост в группу и возвращает ID первого сообщения.
// Ошибки конфигурации группы (не найдена, нет прав) возвращаются как ошибки.
// Временные сбои отправки логируются, результат (0, nil): вызывающий не
// должен помечать пост опубликованным при нулевом ID.
func (p *Publisher) Publish(ctx context.Context, content, imageURL string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, ErrEmptyContent
	}

	if err := p.checkGroup(); err != nil {
		return 0, err
	}

	start := time.Now()
	defer func() { metrics.PublishDurationSeconds.Observe(time.Since(start).Seconds()) }()

	imagePath := ""
	if imageURL != "" {
		path, err := p.images.Download(ctx, imageURL)
		if err != nil {
			p.log.Warn().Err(err).Msg("изображение недоступно, публикуем только текст")
		} else {
			imagePath = path
			defer p.images.Cleanup(path)
		}
	}

	if imagePath != "" {
		return p.publishWithPhoto(content, imagePath)
	}
	return p.publishText(content)
}

func (p *Publisher) publishWithPhoto(content, imagePath string) (int, error) {
	caption, truncated := TruncateCaption(content)

	photo := tgbotapi.NewPhoto(p.chatID, tgbotapi.FilePath(imagePath))
	photo.BaseChat = p.baseChat()
	photo.Caption = caption

	sendStart := time.Now()
	msg, err := p.api.Send(photo)
	metrics.ObserveNetworkRequest("telegram", "send_photo", "group", sendStart, err)
	if err != nil {
		p.log.Error().Err(err).Msg("ошибка отправки фото в группу")
		return 0, nil
	}

	if truncated {
		for _, part := range SplitMessage(content) {
			if err := p.sendText(part); err != nil {
				p.log.Error().Err(err).Msg("ошибка отправки полного текста после фото")
				break
			}
		}
	}
	return msg.MessageID, nil
}

func (p *Publisher) publishText(content string) (int, error) {
	firstID := 0
	for i, part := range SplitMessage(content) {
		sendStart := time.Now()
		cfg := tgbotapi.NewMessage(p.chatID, part)
		cfg.BaseChat = p.baseChat()
		msg, err := p.api.Send(cfg)
		metrics.ObserveNetworkRequest("telegram", "send_message", "group", sendStart, err)
		if err != nil {
			p.log.Error().Err(err).Msg("ошибка отправки сообщения в группу")
			if i == 0 {
				return 0, nil
			}
			break
		}
		if i == 0 {
			firstID = msg.MessageID
		}
	}
	return firstID, nil
}

func (p *Publisher) sendText(text string) error {
	sendStart := time.Now()
	cfg := tgbotapi.NewMessage(p.chatID, text)
	cfg.BaseChat = p.baseChat()
	_, err := p.api.Send(cfg)
	metrics.ObserveNetworkRequest("telegram", "send_message", "group", sendStart, err)
	return err
}

func (p *Publisher) baseChat() tgbotapi.BaseChat {
	base := tgbotapi.BaseChat{ChatID: p.chatID}
	if p.username != "" {
		base.ChannelUsername = p.username
	}
	return base
}

// checkGroup проверяет доступность группы до отправки, чтобы ошибка
// конфигурации не маскировалась под временный сбой.
func (p *Publisher) checkGroup() error {
	cfg := tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: p.chatID}}
	if p.username != "" {
		cfg.ChatConfig = tgbotapi.ChatConfig{SuperGroupUsername: p.username}
	}

	start := time.Now()
	_, err := p.api.GetChat(cfg)
	metrics.ObserveNetworkRequest("telegram", "get_chat", "group", start, err)
	if err == nil {
		return nil
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "chat not found") || strings.Contains(text, "chat_id is empty"):
		return fmt.Errorf("%w: %v", ErrGroupNotFound, err)
	case strings.Contains(text, "forbidden") || strings.Contains(text, "not enough rights"):
		return fmt.Errorf("%w: %v", ErrGroupForbidden, err)
	}
	// Прочие ошибки GetChat считаем временными и пробуем отправить.
	p.log.Warn().Err(err).Msg("проверка группы не удалась, пробуем отправить")
	return nil
}
