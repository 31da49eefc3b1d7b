package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
)

type stubPostRepo struct {
	posts       []domain.Post
	nextID      int64
	markedID    int64
	markedMsgID int
	markErr     error
	createErr   error
	listErr     error
}

func (r *stubPostRepo) CreatePost(draft domain.PostDraft) (domain.Post, error) {
	if r.createErr != nil {
		return domain.Post{}, r.createErr
	}
	r.nextID++
	post := domain.Post{
		ID:          r.nextID,
		Topic:       draft.Topic,
		Content:     draft.Content,
		ImageURL:    draft.ImageURL,
		ImagePrompt: draft.ImagePrompt,
		CreatedAt:   time.Now(),
		Published:   draft.Published,
	}
	r.posts = append(r.posts, post)
	return post, nil
}

func (r *stubPostRepo) GetPost(id int64) (domain.Post, error) {
	for _, p := range r.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Post{}, domain.ErrPostNotFound
}

func (r *stubPostRepo) ListUnpublished() ([]domain.Post, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Post
	for i := len(r.posts) - 1; i >= 0; i-- {
		if !r.posts[i].Published {
			out = append(out, r.posts[i])
		}
	}
	return out, nil
}

func (r *stubPostRepo) ListAll(limit int) ([]domain.Post, error) {
	if limit > len(r.posts) {
		limit = len(r.posts)
	}
	return r.posts[:limit], nil
}

// MarkPublished повторяет семантику SQL-апдейта: published_at
// выставляется один раз (COALESCE), ID сообщения перезаписывается.
func (r *stubPostRepo) MarkPublished(id int64, messageID int) (bool, error) {
	if r.markErr != nil {
		return false, r.markErr
	}
	for i := range r.posts {
		if r.posts[i].ID == id {
			r.posts[i].Published = true
			if r.posts[i].PublishedAt == nil {
				now := time.Now()
				r.posts[i].PublishedAt = &now
			}
			r.posts[i].TelegramMessageID = &messageID
			r.markedID = id
			r.markedMsgID = messageID
			return true, nil
		}
	}
	return false, nil
}

func (r *stubPostRepo) Diagnostic() (domain.PostDiagnostic, error) {
	return domain.PostDiagnostic{}, nil
}

func (r *stubPostRepo) FixNullPublished() (int, error) { return 0, nil }

func (r *stubPostRepo) RevertOrphanedPublished(time.Time) ([]int64, error) { return nil, nil }

type stubGenerator struct {
	result domain.GeneratedPost
}

func (g *stubGenerator) GeneratePost(_ context.Context, topic string) domain.GeneratedPost {
	out := g.result
	if out.Topic == "" {
		out.Topic = topic
	}
	return out
}

func (g *stubGenerator) Recommendations(context.Context) (string, error) { return "", nil }

func (g *stubGenerator) TopicIdeas(context.Context, int) (string, error) { return "", nil }

func (g *stubGenerator) AnalyzeIdea(context.Context, string) (string, error) { return "", nil }

type stubPublisher struct {
	messageID int
	err       error
	calls     int
}

func (p *stubPublisher) Publish(context.Context, string, string) (int, error) {
	p.calls++
	return p.messageID, p.err
}

func newTestService(repo *stubPostRepo, gen *stubGenerator, pub *stubPublisher) *Service {
	return NewService(repo, gen, pub, zerolog.Nop())
}

func TestGenerate_SavesUnpublished(t *testing.T) {
	repo := &stubPostRepo{}
	gen := &stubGenerator{result: domain.GeneratedPost{Topic: "Горы", Content: "текст", ImageURL: "url"}}
	svc := newTestService(repo, gen, &stubPublisher{})

	post, err := svc.Generate(context.Background(), "Горы", "manual")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if post.Published {
		t.Fatal("сгенерированный пост не должен быть опубликован")
	}
	if post.Content != "текст" || post.ImageURL != "url" {
		t.Fatalf("пост сохранён неверно: %+v", post)
	}
}

func TestPublishPost_MarksOnlyAfterConfirmedSend(t *testing.T) {
	repo := &stubPostRepo{}
	post, _ := repo.CreatePost(domain.PostDraft{Topic: "т", Content: "текст"})
	pub := &stubPublisher{messageID: 42}
	svc := newTestService(repo, &stubGenerator{}, pub)

	published, err := svc.PublishPost(context.Background(), post, "manual")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !published.Published {
		t.Fatal("пост должен быть помечен опубликованным")
	}
	if repo.markedMsgID != 42 {
		t.Fatalf("ID сообщения не сохранён: %d", repo.markedMsgID)
	}
}

func TestMarkPublished_RepeatKeepsFirstPublishedAt(t *testing.T) {
	repo := &stubPostRepo{}
	post, _ := repo.CreatePost(domain.PostDraft{Content: "текст"})
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{messageID: 10})

	if _, err := svc.PublishPost(context.Background(), post, "manual"); err != nil {
		t.Fatalf("первая публикация: %v", err)
	}
	firstAt := repo.posts[0].PublishedAt
	if firstAt == nil {
		t.Fatal("после публикации должно быть выставлено время")
	}

	// Повторная публикация того же поста: время не меняется,
	// ID сообщения перезаписывается.
	svc = newTestService(repo, &stubGenerator{}, &stubPublisher{messageID: 11})
	if _, err := svc.PublishPost(context.Background(), repo.posts[0], "manual"); err != nil {
		t.Fatalf("повторная публикация: %v", err)
	}
	if repo.posts[0].PublishedAt != firstAt {
		t.Fatal("повторная публикация не должна менять published_at")
	}
	if repo.markedMsgID != 11 {
		t.Fatalf("ID сообщения должен обновиться: %d", repo.markedMsgID)
	}
}

func TestPublishPost_TransientFailureKeepsPostQueued(t *testing.T) {
	repo := &stubPostRepo{}
	post, _ := repo.CreatePost(domain.PostDraft{Content: "текст"})
	pub := &stubPublisher{messageID: 0}
	svc := newTestService(repo, &stubGenerator{}, pub)

	_, err := svc.PublishPost(context.Background(), post, "scheduler")
	if !errors.Is(err, ErrNotSent) {
		t.Fatalf("ожидали ErrNotSent, получили %v", err)
	}
	if repo.markedID != 0 {
		t.Fatal("пост не должен помечаться при неподтверждённой отправке")
	}
}

func TestPublishPost_ValidationErrorPropagates(t *testing.T) {
	repo := &stubPostRepo{}
	post, _ := repo.CreatePost(domain.PostDraft{Content: "текст"})
	wantErr := errors.New("группа не найдена")
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{err: wantErr})

	_, err := svc.PublishPost(context.Background(), post, "manual")
	if !errors.Is(err, wantErr) {
		t.Fatalf("ожидали ошибку публикации, получили %v", err)
	}
	if repo.markedID != 0 {
		t.Fatal("пост не должен помечаться при ошибке")
	}
}

func TestPublishLatest_PicksNewestUnpublished(t *testing.T) {
	repo := &stubPostRepo{}
	repo.CreatePost(domain.PostDraft{Topic: "старый", Content: "а"})
	newest, _ := repo.CreatePost(domain.PostDraft{Topic: "новый", Content: "б"})
	pub := &stubPublisher{messageID: 7}
	svc := newTestService(repo, &stubGenerator{}, pub)

	post, err := svc.PublishLatest(context.Background(), "manual")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if post.ID != newest.ID {
		t.Fatalf("должен публиковаться самый свежий пост, получили %d", post.ID)
	}
}

func TestPublishLatest_EmptyQueue(t *testing.T) {
	svc := newTestService(&stubPostRepo{}, &stubGenerator{}, &stubPublisher{})
	if _, err := svc.PublishLatest(context.Background(), "manual"); !errors.Is(err, ErrNoUnpublished) {
		t.Fatalf("ожидали ErrNoUnpublished, получили %v", err)
	}
}

func TestPublishByID_NotFound(t *testing.T) {
	svc := newTestService(&stubPostRepo{}, &stubGenerator{}, &stubPublisher{})
	if _, err := svc.PublishByID(context.Background(), 99, "manual"); !errors.Is(err, domain.ErrPostNotFound) {
		t.Fatalf("ожидали ErrPostNotFound, получили %v", err)
	}
}

func TestGenerateAndPublish_KeepsPostOnSendFailure(t *testing.T) {
	repo := &stubPostRepo{}
	gen := &stubGenerator{result: domain.GeneratedPost{Topic: "Тема", Content: "текст"}}
	svc := newTestService(repo, gen, &stubPublisher{messageID: 0})

	_, err := svc.GenerateAndPublish(context.Background(), "Тема", "api")
	if !errors.Is(err, ErrNotSent) {
		t.Fatalf("ожидали ErrNotSent, получили %v", err)
	}
	unpublished, _ := repo.ListUnpublished()
	if len(unpublished) != 1 {
		t.Fatalf("пост должен остаться в очереди, в очереди %d", len(unpublished))
	}
}

func TestPublishRaw_NoPersistence(t *testing.T) {
	repo := &stubPostRepo{}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{messageID: 9})

	id, err := svc.PublishRaw(context.Background(), "текст", "", "api")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if id != 9 {
		t.Fatalf("ожидали ID 9, получили %d", id)
	}
	if len(repo.posts) != 0 {
		t.Fatal("PublishRaw не должен создавать записей")
	}
}

func TestPublishRaw_TransientFailure(t *testing.T) {
	svc := newTestService(&stubPostRepo{}, &stubGenerator{}, &stubPublisher{messageID: 0})
	if _, err := svc.PublishRaw(context.Background(), "текст", "", "api"); !errors.Is(err, ErrNotSent) {
		t.Fatalf("ожидали ErrNotSent, получили %v", err)
	}
}

func TestPublishContent_SavesAndPublishes(t *testing.T) {
	repo := &stubPostRepo{}
	svc := newTestService(repo, &stubGenerator{}, &stubPublisher{messageID: 5})

	post, err := svc.PublishContent(context.Background(), "Тема", "готовый текст", "", "api")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !post.Published {
		t.Fatal("пост должен быть опубликован")
	}
	if len(repo.posts) != 1 {
		t.Fatal("пост должен сохраниться в истории")
	}
}
