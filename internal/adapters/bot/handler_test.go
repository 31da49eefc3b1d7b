package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/publish"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/schedule"
)

const adminID = int64(100)

type fakeSender struct {
	messages []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.messages = append(f.messages, msg.Text)
	}
	return tgbotapi.Message{MessageID: len(f.messages)}, nil
}

func (f *fakeSender) last() string {
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

type fakePostRepo struct {
	posts []domain.Post
	fixed int
	diag  domain.PostDiagnostic
}

func (r *fakePostRepo) CreatePost(draft domain.PostDraft) (domain.Post, error) {
	post := domain.Post{ID: int64(len(r.posts) + 1), Topic: draft.Topic, Content: draft.Content, CreatedAt: time.Now()}
	r.posts = append(r.posts, post)
	return post, nil
}

func (r *fakePostRepo) GetPost(id int64) (domain.Post, error) {
	for _, p := range r.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Post{}, domain.ErrPostNotFound
}

func (r *fakePostRepo) ListUnpublished() ([]domain.Post, error) {
	var out []domain.Post
	for _, p := range r.posts {
		if !p.Published {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePostRepo) ListAll(int) ([]domain.Post, error) { return r.posts, nil }

func (r *fakePostRepo) MarkPublished(id int64, _ int) (bool, error) {
	for i := range r.posts {
		if r.posts[i].ID == id {
			r.posts[i].Published = true
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePostRepo) Diagnostic() (domain.PostDiagnostic, error) { return r.diag, nil }

func (r *fakePostRepo) FixNullPublished() (int, error) { return r.fixed, nil }

func (r *fakePostRepo) RevertOrphanedPublished(time.Time) ([]int64, error) { return nil, nil }

type fakeScheduleRepo struct {
	active *domain.Schedule
}

func (r *fakeScheduleRepo) ActiveSchedule() (domain.Schedule, error) {
	if r.active == nil {
		return domain.Schedule{}, domain.ErrScheduleNotFound
	}
	return *r.active, nil
}

func (r *fakeScheduleRepo) UpsertActive(frequency domain.Frequency, timeOfDay, daysOfWeek string) (domain.Schedule, error) {
	r.active = &domain.Schedule{ID: 1, Frequency: frequency, Time: timeOfDay, DaysOfWeek: daysOfWeek, IsActive: true}
	return *r.active, nil
}

func (r *fakeScheduleRepo) EnsureDefault(frequency domain.Frequency, timeOfDay string) (domain.Schedule, error) {
	if r.active == nil {
		return r.UpsertActive(frequency, timeOfDay, "")
	}
	return *r.active, nil
}

func (r *fakeScheduleRepo) TouchLastRun(int64) error { return nil }

type fakeGenerator struct{}

func (fakeGenerator) GeneratePost(_ context.Context, topic string) domain.GeneratedPost {
	if topic == "" {
		topic = "Случайная тема"
	}
	return domain.GeneratedPost{Topic: topic, Content: "сгенерированный текст"}
}

func (fakeGenerator) Recommendations(context.Context) (string, error) {
	return "рекомендации", nil
}

func (fakeGenerator) TopicIdeas(context.Context, int) (string, error) { return "идеи", nil }

func (fakeGenerator) AnalyzeIdea(context.Context, string) (string, error) {
	return "анализ", nil
}

type fakeHandoff struct {
	topic string
}

func (f *fakeHandoff) Put(topic string) error { f.topic = topic; return nil }

func (f *fakeHandoff) Take() (string, bool, error) {
	if f.topic == "" {
		return "", false, nil
	}
	topic := f.topic
	f.topic = ""
	return topic, true, nil
}

type fakePublisher struct {
	messageID int
}

func (p *fakePublisher) Publish(context.Context, string, string) (int, error) {
	return p.messageID, nil
}

type fakeSchedulerControl struct {
	paused    bool
	resumeErr error
}

func (c *fakeSchedulerControl) Pause() { c.paused = true }

func (c *fakeSchedulerControl) Resume() error {
	if c.resumeErr != nil {
		return c.resumeErr
	}
	c.paused = false
	return nil
}

func newTestHandler(posts *fakePostRepo, handoff *fakeHandoff) (*Handler, *fakeSender) {
	h, sender, _ := newTestHandlerWithScheduler(posts, handoff)
	return h, sender
}

func newTestHandlerWithScheduler(posts *fakePostRepo, handoff *fakeHandoff) (*Handler, *fakeSender, *fakeSchedulerControl) {
	sender := &fakeSender{}
	schedRepo := &fakeScheduleRepo{}
	control := &fakeSchedulerControl{}
	publishUC := publish.NewService(posts, fakeGenerator{}, &fakePublisher{messageID: 7}, zerolog.Nop())
	scheduleUC := schedule.NewService(schedRepo, nil, zerolog.Nop())
	h := NewHandler(sender, zerolog.Nop(), publishUC, scheduleUC, control, posts, fakeGenerator{}, handoff, adminID)
	return h, sender, control
}

func adminUpdate(text string) tgbotapi.Update {
	return update(adminID, text)
}

func update(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
	}}
}

func TestHandleUpdate_NonAdminRejected(t *testing.T) {
	h, sender := newTestHandler(&fakePostRepo{}, &fakeHandoff{})

	h.HandleUpdate(context.Background(), update(999, "/generate"))

	if !strings.Contains(sender.last(), "Доступ запрещён") {
		t.Fatalf("ожидали отказ, получили %q", sender.last())
	}
}

func TestHandleUpdate_ChatIDOpenToAll(t *testing.T) {
	h, sender := newTestHandler(&fakePostRepo{}, &fakeHandoff{})

	h.HandleUpdate(context.Background(), update(999, "/chatid"))

	if !strings.Contains(sender.last(), "999") {
		t.Fatalf("ожидали ID чата, получили %q", sender.last())
	}
	// Ответ уходит без ParseMode, разметки в нём быть не должно.
	if strings.Contains(sender.last(), "`") {
		t.Fatalf("в ответе не должно быть markdown-разметки: %q", sender.last())
	}
}

func TestHandleUpdate_Generate(t *testing.T) {
	posts := &fakePostRepo{}
	h, sender := newTestHandler(posts, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/generate"))

	if len(posts.posts) != 1 {
		t.Fatalf("пост должен сохраниться, постов %d", len(posts.posts))
	}
	if !strings.Contains(sender.last(), "Пост #1 сохранён") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_GenerateCustomPassesTopic(t *testing.T) {
	posts := &fakePostRepo{}
	h, _ := newTestHandler(posts, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/generate_custom Зимний Байкал"))

	if posts.posts[0].Topic != "Зимний Байкал" {
		t.Fatalf("тема не передана: %q", posts.posts[0].Topic)
	}
}

func TestHandleUpdate_PublishEmptyQueue(t *testing.T) {
	h, sender := newTestHandler(&fakePostRepo{}, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/publish"))

	if !strings.Contains(sender.last(), "Очередь пуста") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_PublishByID(t *testing.T) {
	posts := &fakePostRepo{}
	posts.CreatePost(domain.PostDraft{Topic: "т", Content: "текст"})
	h, sender := newTestHandler(posts, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/publish 1"))

	if !posts.posts[0].Published {
		t.Fatal("пост должен быть опубликован")
	}
	if !strings.Contains(sender.last(), "опубликован") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_PublishNowIsNotPublishWithArg(t *testing.T) {
	posts := &fakePostRepo{}
	h, sender := newTestHandler(posts, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/publish_now"))

	if len(posts.posts) != 1 {
		t.Fatalf("/publish_now должен сгенерировать пост, постов %d", len(posts.posts))
	}
	if !strings.Contains(sender.last(), "опубликован") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_ScheduleDaily(t *testing.T) {
	h, sender := newTestHandler(&fakePostRepo{}, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/schedule_daily 10:00"))

	if !strings.Contains(sender.last(), "Каждый день в 10:00") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_ScheduleWeeklyInvalidDays(t *testing.T) {
	h, sender := newTestHandler(&fakePostRepo{}, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/schedule_weekly 10:00 7,8"))

	if !strings.Contains(sender.last(), "Неверные дни") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_ScheduleStopPausesPublication(t *testing.T) {
	h, sender, control := newTestHandlerWithScheduler(&fakePostRepo{}, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/schedule_stop"))

	if !control.paused {
		t.Fatal("планировщик должен быть приостановлен")
	}
	if !strings.Contains(sender.last(), "приостановлена") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_ScheduleStartResumesPublication(t *testing.T) {
	h, sender, control := newTestHandlerWithScheduler(&fakePostRepo{}, &fakeHandoff{})
	control.paused = true

	h.HandleUpdate(context.Background(), adminUpdate("/schedule_start"))

	if control.paused {
		t.Fatal("планировщик должен возобновиться")
	}
	if !strings.Contains(sender.last(), "возобновлена") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_ScheduleStartWithoutSchedule(t *testing.T) {
	h, sender, control := newTestHandlerWithScheduler(&fakePostRepo{}, &fakeHandoff{})
	control.resumeErr = errors.New("расписание не настроено")

	h.HandleUpdate(context.Background(), adminUpdate("/schedule_start"))

	if !strings.Contains(sender.last(), "Не удалось возобновить") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_MakeTopic(t *testing.T) {
	handoff := &fakeHandoff{}
	h, sender := newTestHandler(&fakePostRepo{}, handoff)

	h.HandleUpdate(context.Background(), adminUpdate("/make_topic северное сияние"))

	if handoff.topic != "северное сияние" {
		t.Fatalf("тема не сохранена: %q", handoff.topic)
	}
	if !strings.Contains(sender.last(), "Тема передана") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_FixPublished(t *testing.T) {
	h, sender := newTestHandler(&fakePostRepo{fixed: 3}, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/fix_published_posts"))

	if !strings.Contains(sender.last(), "3") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestHandleUpdate_DiagnosticWarnsOnNull(t *testing.T) {
	repo := &fakePostRepo{diag: domain.PostDiagnostic{Total: 5, PublishedTrue: 2, PublishedFalse: 2, PublishedNull: 1}}
	h, sender := newTestHandler(repo, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/db_diagnostic"))

	if !strings.Contains(sender.last(), "fix_published_posts") {
		t.Fatalf("при NULL-флагах должна быть подсказка: %q", sender.last())
	}
}

func TestHandleUpdate_UnknownCommand(t *testing.T) {
	h, sender := newTestHandler(&fakePostRepo{}, &fakeHandoff{})

	h.HandleUpdate(context.Background(), adminUpdate("/bogus"))

	if !strings.Contains(sender.last(), "Неизвестная команда") {
		t.Fatalf("неожиданный ответ: %q", sender.last())
	}
}

func TestFormatDays(t *testing.T) {
	if got := formatDays("0,2,4"); got != "Пн, Ср, Пт" {
		t.Fatalf("неожиданный формат дней: %q", got)
	}
}
