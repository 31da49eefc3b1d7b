package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/metrics"
)

// ErrNoUnpublished возвращается, когда в очереди нет неопубликованных постов.
var ErrNoUnpublished = errors.New("нет неопубликованных постов")

// ErrNotSent возвращается при временном сбое отправки: пост остаётся
// неопубликованным и уйдёт при следующей попытке.
var ErrNotSent = errors.New("пост не отправлен")

// Service реализует сценарии генерации и публикации постов.
type Service struct {
	posts     domain.PostRepo
	generator domain.Generator
	publisher domain.Publisher
	log       zerolog.Logger
}

// NewService создаёт сервис публикации.
func NewService(posts domain.PostRepo, generator domain.Generator, publisher domain.Publisher, log zerolog.Logger) *Service {
	return &Service{posts: posts, generator: generator, publisher: publisher, log: log}
}

// Generate создаёт пост по теме (или случайной, если тема пустая)
// и сохраняет его неопубликованным.
func (s *Service) Generate(ctx context.Context, topic, source string) (domain.Post, error) {
	generated := s.generator.GeneratePost(ctx, topic)
	post, err := s.posts.CreatePost(domain.PostDraft{
		Topic:       generated.Topic,
		Content:     generated.Content,
		ImageURL:    generated.ImageURL,
		ImagePrompt: generated.ImagePrompt,
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("сохранение сгенерированного поста: %w", err)
	}
	metrics.IncGenerated(source)
	s.log.Info().Int64("post_id", post.ID).Str("topic", post.Topic).Msg("пост сгенерирован")
	return post, nil
}

// PublishPost отправляет пост в группу и помечает его опубликованным.
// Пометка происходит только после подтверждённой отправки: при нулевом
// ID сообщения пост остаётся в очереди.
func (s *Service) PublishPost(ctx context.Context, post domain.Post, source string) (domain.Post, error) {
	messageID, err := s.publisher.Publish(ctx, post.Content, post.ImageURL)
	if err != nil {
		return post, fmt.Errorf("публикация поста %d: %w", post.ID, err)
	}
	if messageID == 0 {
		s.log.Warn().Int64("post_id", post.ID).Msg("отправка не подтверждена, пост остаётся в очереди")
		return post, ErrNotSent
	}

	updated, err := s.posts.MarkPublished(post.ID, messageID)
	if err != nil {
		return post, fmt.Errorf("пометка поста %d опубликованным: %w", post.ID, err)
	}
	if !updated {
		return post, fmt.Errorf("пометка поста %d: %w", post.ID, domain.ErrPostNotFound)
	}

	metrics.IncPublished(source)
	s.log.Info().Int64("post_id", post.ID).Int("message_id", messageID).Msg("пост опубликован")

	post.Published = true
	post.TelegramMessageID = &messageID
	return post, nil
}

// PublishLatest публикует самый свежий неопубликованный пост.
func (s *Service) PublishLatest(ctx context.Context, source string) (domain.Post, error) {
	unpublished, err := s.posts.ListUnpublished()
	if err != nil {
		return domain.Post{}, fmt.Errorf("выборка неопубликованных постов: %w", err)
	}
	if len(unpublished) == 0 {
		return domain.Post{}, ErrNoUnpublished
	}
	return s.PublishPost(ctx, unpublished[0], source)
}

// PublishByID публикует конкретный пост.
func (s *Service) PublishByID(ctx context.Context, id int64, source string) (domain.Post, error) {
	post, err := s.posts.GetPost(id)
	if err != nil {
		return domain.Post{}, err
	}
	return s.PublishPost(ctx, post, source)
}

// GenerateAndPublish создаёт пост и сразу отправляет его в группу.
// При сбое отправки пост сохраняется в очереди неопубликованных.
func (s *Service) GenerateAndPublish(ctx context.Context, topic, source string) (domain.Post, error) {
	post, err := s.Generate(ctx, topic, source)
	if err != nil {
		return domain.Post{}, err
	}
	return s.PublishPost(ctx, post, source)
}

// PublishContent публикует готовый текст, присланный оператором,
// сохраняя его в истории постов.
func (s *Service) PublishContent(ctx context.Context, topic, content, imageURL, source string) (domain.Post, error) {
	post, err := s.posts.CreatePost(domain.PostDraft{
		Topic:    topic,
		Content:  content,
		ImageURL: imageURL,
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("сохранение готового поста: %w", err)
	}
	return s.PublishPost(ctx, post, source)
}

// PublishRaw отправляет готовый контент без записи в историю постов.
func (s *Service) PublishRaw(ctx context.Context, content, imageURL, source string) (int, error) {
	messageID, err := s.publisher.Publish(ctx, content, imageURL)
	if err != nil {
		return 0, fmt.Errorf("публикация контента: %w", err)
	}
	if messageID == 0 {
		return 0, ErrNotSent
	}
	metrics.IncPublished(source)
	return messageID, nil
}
