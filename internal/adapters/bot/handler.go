package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/adapters/telegram"
	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/metrics"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/publish"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/schedule"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type schedulerControl interface {
	Pause()
	Resume() error
}

// Handler обслуживает команды управления ботом в личном чате.
// Все команды, кроме /chatid, доступны только администратору.
type Handler struct {
	bot        sender
	log        zerolog.Logger
	publishUC  *publish.Service
	scheduleUC *schedule.Service
	scheduler  schedulerControl
	posts      domain.PostRepo
	generator  domain.Generator
	topics     domain.TopicHandoff
	adminID    int64
}

// NewHandler создаёт обработчик команд.
func NewHandler(bot sender, log zerolog.Logger, publishUC *publish.Service, scheduleUC *schedule.Service, scheduler schedulerControl, posts domain.PostRepo, generator domain.Generator, topics domain.TopicHandoff, adminID int64) *Handler {
	return &Handler{
		bot:        bot,
		log:        log,
		publishUC:  publishUC,
		scheduleUC: scheduleUC,
		scheduler:  scheduler,
		posts:      posts,
		generator:  generator,
		topics:     topics,
		adminID:    adminID,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	h.handleMessage(ctx, upd.Message)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	// /chatid работает для всех: без него не узнать ID группы.
	if strings.HasPrefix(text, "/chatid") {
		h.handleChatID(msg)
		return
	}

	if msg.From == nil || msg.From.ID != h.adminID {
		h.log.Warn().Int64("chat", msg.Chat.ID).Msg("команда от неавторизованного пользователя")
		h.reply(msg.Chat.ID, "⛔ Доступ запрещён. Бот доступен только администратору.")
		return
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(msg.Chat.ID)
	case strings.HasPrefix(text, "/help"):
		h.handleHelp(msg.Chat.ID)
	case strings.HasPrefix(text, "/generate_custom"):
		topic := strings.TrimSpace(strings.TrimPrefix(text, "/generate_custom"))
		h.handleGenerate(ctx, msg.Chat.ID, topic)
	case strings.HasPrefix(text, "/generate"):
		h.handleGenerate(ctx, msg.Chat.ID, "")
	case strings.HasPrefix(text, "/publish_now"):
		h.handlePublishNow(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/publish"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/publish"))
		h.handlePublish(ctx, msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/recommend"):
		h.handleRecommend(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/topics"):
		h.handleTopics(ctx, msg.Chat.ID)
	case strings.HasPrefix(text, "/analyze"):
		idea := strings.TrimSpace(strings.TrimPrefix(text, "/analyze"))
		h.handleAnalyze(ctx, msg.Chat.ID, idea)
	case strings.HasPrefix(text, "/schedule_status"):
		h.handleScheduleStatus(msg.Chat.ID)
	case strings.HasPrefix(text, "/schedule_daily"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/schedule_daily"))
		h.handleScheduleDaily(msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/schedule_weekly"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/schedule_weekly"))
		h.handleScheduleWeekly(msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/schedule_start"):
		h.handleScheduleStart(msg.Chat.ID)
	case strings.HasPrefix(text, "/schedule_stop"):
		h.handleScheduleStop(msg.Chat.ID)
	case strings.HasPrefix(text, "/list_posts"):
		h.handleListPosts(msg.Chat.ID)
	case strings.HasPrefix(text, "/all_posts"):
		h.handleAllPosts(msg.Chat.ID)
	case strings.HasPrefix(text, "/view_post"):
		// Поддерживаются оба варианта: /view_post 42 и /view_post_42.
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/view_post"))
		payload = strings.TrimPrefix(payload, "_")
		h.handleViewPost(msg.Chat.ID, payload)
	case strings.HasPrefix(text, "/stats"):
		h.handleStats(msg.Chat.ID)
	case strings.HasPrefix(text, "/db_diagnostic"):
		h.handleDiagnostic(msg.Chat.ID)
	case strings.HasPrefix(text, "/fix_published_posts"):
		h.handleFixPublished(msg.Chat.ID)
	case strings.HasPrefix(text, "/make_topic"):
		topic := strings.TrimSpace(strings.TrimPrefix(text, "/make_topic"))
		h.handleMakeTopic(msg.Chat.ID, topic)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

func (h *Handler) handleStart(chatID int64) {
	h.reply(chatID, "👋 Привет! Я SMM-бот для travel-блога.\n\n"+
		"Генерирую посты о путешествиях, публикую их в группу и работаю по расписанию.\n\n"+
		"Список команд: /help")
}

func (h *Handler) handleHelp(chatID int64) {
	h.reply(chatID, buildHelpMessage())
}

func buildHelpMessage() string {
	return strings.Join([]string{
		"📝 *Генерация контента*",
		"/generate — сгенерировать пост на случайную тему",
		"/generate_custom <тема> — сгенерировать пост на свою тему",
		"/recommend — рекомендации по контенту",
		"/topics — идеи тем для постов",
		"/analyze <идея> — анализ идеи поста",
		"",
		"📤 *Публикация*",
		"/publish — опубликовать свежий пост из очереди",
		"/publish <id> — опубликовать пост по номеру",
		"/publish_now — сгенерировать и сразу опубликовать",
		"",
		"⏰ *Расписание*",
		"/schedule_status — текущее расписание",
		"/schedule_daily <HH:MM> — публикация каждый день",
		"/schedule_weekly <HH:MM> <дни> — по дням недели (0=Пн ... 6=Вс)",
		"/schedule_stop — приостановить автопубликацию",
		"/schedule_start — возобновить автопубликацию",
		"",
		"📋 *Посты*",
		"/list_posts — неопубликованные посты",
		"/all_posts — последние посты",
		"/view_post <id> — показать пост",
		"",
		"🔧 *Служебные*",
		"/stats — статистика",
		"/db_diagnostic — состояние флагов публикации",
		"/fix_published_posts — исправить NULL-флаги",
		"/make_topic <тема> — передать тему внешнему автоматизатору",
		"/chatid — показать ID текущего чата",
	}, "\n")
}

func (h *Handler) handleChatID(msg *tgbotapi.Message) {
	text := fmt.Sprintf("ID этого чата: %d", msg.Chat.ID)
	if msg.From != nil {
		text += fmt.Sprintf("\nВаш ID: %d", msg.From.ID)
		if msg.From.ID == h.adminID {
			text += "\n✅ Вы администратор бота"
		}
	}
	h.reply(msg.Chat.ID, text)
}

func (h *Handler) handleGenerate(ctx context.Context, chatID int64, topic string) {
	h.reply(chatID, "⏳ Генерирую пост, это займёт до минуты...")
	post, err := h.publishUC.Generate(ctx, topic, "manual")
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка генерации: %v", err))
		return
	}
	preview := fmt.Sprintf("✅ Пост #%d сохранён\n\n📌 Тема: %s\n\n%s", post.ID, post.Topic, previewText(post.Content))
	if post.ImageURL != "" {
		preview += "\n\n🖼 Изображение сгенерировано"
	}
	preview += fmt.Sprintf("\n\nОпубликовать: /publish %d", post.ID)
	h.reply(chatID, preview)
}

func (h *Handler) handlePublish(ctx context.Context, chatID int64, payload string) {
	var post domain.Post
	var err error
	if payload == "" {
		post, err = h.publishUC.PublishLatest(ctx, "manual")
	} else {
		id, parseErr := strconv.ParseInt(payload, 10, 64)
		if parseErr != nil {
			h.reply(chatID, "Укажите номер поста: /publish 42")
			return
		}
		post, err = h.publishUC.PublishByID(ctx, id, "manual")
	}
	h.replyPublishResult(chatID, post, err)
}

func (h *Handler) handlePublishNow(ctx context.Context, chatID int64) {
	h.reply(chatID, "⏳ Генерирую и публикую пост...")
	post, err := h.publishUC.GenerateAndPublish(ctx, "", "manual")
	h.replyPublishResult(chatID, post, err)
}

func (h *Handler) replyPublishResult(chatID int64, post domain.Post, err error) {
	switch {
	case err == nil:
		h.reply(chatID, fmt.Sprintf("✅ Пост #%d опубликован в группе", post.ID))
	case errors.Is(err, publish.ErrNoUnpublished):
		h.reply(chatID, "Очередь пуста. Сгенерируйте пост: /generate")
	case errors.Is(err, publish.ErrNotSent):
		h.reply(chatID, "⚠️ Отправка не удалась, пост остался в очереди. Попробуйте позже.")
	case errors.Is(err, domain.ErrPostNotFound):
		h.reply(chatID, "Пост с таким номером не найден")
	case errors.Is(err, telegram.ErrGroupNotFound):
		h.reply(chatID, "❌ Группа не найдена. Проверьте TG_GROUP_ID и добавьте бота в группу.")
	case errors.Is(err, telegram.ErrGroupForbidden):
		h.reply(chatID, "❌ У бота нет прав на публикацию в группе. Сделайте его администратором.")
	default:
		h.reply(chatID, fmt.Sprintf("Ошибка публикации: %v", err))
	}
}

func (h *Handler) handleRecommend(ctx context.Context, chatID int64) {
	h.reply(chatID, "⏳ Готовлю рекомендации...")
	text, err := h.generator.Recommendations(ctx)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	h.reply(chatID, text)
}

func (h *Handler) handleTopics(ctx context.Context, chatID int64) {
	h.reply(chatID, "⏳ Подбираю темы...")
	text, err := h.generator.TopicIdeas(ctx, 5)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	h.reply(chatID, text)
}

func (h *Handler) handleAnalyze(ctx context.Context, chatID int64, idea string) {
	if idea == "" {
		h.reply(chatID, "Укажите идею: /analyze тур по Грузии на майские")
		return
	}
	h.reply(chatID, "⏳ Анализирую идею...")
	text, err := h.generator.AnalyzeIdea(ctx, idea)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	h.reply(chatID, text)
}

func (h *Handler) handleScheduleStatus(chatID int64) {
	sched, err := h.scheduleUC.Status()
	if errors.Is(err, domain.ErrScheduleNotFound) {
		h.reply(chatID, "Активное расписание не настроено.\n/schedule_daily 10:00 — включить")
		return
	}
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	h.reply(chatID, FormatSchedule(sched))
}

func (h *Handler) handleScheduleDaily(chatID int64, payload string) {
	if payload == "" {
		h.reply(chatID, "Укажите время: /schedule_daily 10:00")
		return
	}
	sched, err := h.scheduleUC.SetDaily(payload)
	if err != nil {
		h.replyScheduleError(chatID, err)
		return
	}
	h.reply(chatID, "✅ Расписание обновлено\n\n"+FormatSchedule(sched))
}

func (h *Handler) handleScheduleWeekly(chatID int64, payload string) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		h.reply(chatID, "Формат: /schedule_weekly 10:00 0,2,4\n(0=Пн, 1=Вт ... 6=Вс)")
		return
	}
	sched, err := h.scheduleUC.SetWeekly(fields[0], fields[1])
	if err != nil {
		h.replyScheduleError(chatID, err)
		return
	}
	h.reply(chatID, "✅ Расписание обновлено\n\n"+FormatSchedule(sched))
}

func (h *Handler) handleScheduleStop(chatID int64) {
	h.scheduler.Pause()
	h.reply(chatID, "⏸ Автопубликация приостановлена.\nРасписание сохранено, возобновить: /schedule_start")
}

func (h *Handler) handleScheduleStart(chatID int64) {
	if err := h.scheduler.Resume(); err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось возобновить автопубликацию: %v\nНастройте расписание: /schedule_daily 10:00", err))
		return
	}
	h.reply(chatID, "▶️ Автопубликация возобновлена")
}

func (h *Handler) replyScheduleError(chatID int64, err error) {
	switch {
	case errors.Is(err, schedule.ErrInvalidTime):
		h.reply(chatID, "Неверное время. Формат: HH:MM, например 10:00")
	case errors.Is(err, schedule.ErrInvalidDays):
		h.reply(chatID, "Неверные дни недели. Числа 0-6 через запятую, например 0,2,4")
	default:
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
	}
}

func (h *Handler) handleListPosts(chatID int64) {
	// NULL-флаги чинятся перед выборкой, чтобы старые записи не терялись.
	if fixed, err := h.posts.FixNullPublished(); err == nil && fixed > 0 {
		h.log.Info().Int("fixed", fixed).Msg("исправлены NULL-флаги перед выборкой")
	}
	posts, err := h.posts.ListUnpublished()
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	if len(posts) == 0 {
		h.reply(chatID, "Неопубликованных постов нет. /generate — создать новый")
		return
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 Неопубликованные посты (%d):\n\n", len(posts)))
	for _, p := range posts {
		b.WriteString(formatPostLine(p))
	}
	b.WriteString("\n/view_post <id> — показать, /publish <id> — опубликовать")
	h.reply(chatID, b.String())
}

func (h *Handler) handleAllPosts(chatID int64) {
	posts, err := h.posts.ListAll(20)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	if len(posts) == 0 {
		h.reply(chatID, "Постов пока нет")
		return
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📚 Последние посты (%d):\n\n", len(posts)))
	for _, p := range posts {
		b.WriteString(formatPostLine(p))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleViewPost(chatID int64, payload string) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		h.reply(chatID, "Укажите номер поста: /view_post 42")
		return
	}
	post, err := h.posts.GetPost(id)
	if errors.Is(err, domain.ErrPostNotFound) {
		h.reply(chatID, "Пост не найден")
		return
	}
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	h.reply(chatID, FormatPost(post))
}

func (h *Handler) handleStats(chatID int64) {
	diag, err := h.posts.Diagnostic()
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	sched, schedErr := h.scheduleUC.Status()
	var b strings.Builder
	b.WriteString("📊 Статистика\n\n")
	b.WriteString(fmt.Sprintf("Всего постов: %d\n", diag.Total))
	b.WriteString(fmt.Sprintf("Опубликовано: %d\n", diag.PublishedTrue))
	b.WriteString(fmt.Sprintf("В очереди: %d\n", diag.PublishedFalse+diag.PublishedNull))
	if schedErr == nil {
		b.WriteString("\n" + FormatSchedule(sched))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleDiagnostic(chatID int64) {
	diag, err := h.posts.Diagnostic()
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	text := fmt.Sprintf("🔍 Диагностика флагов публикации\n\n"+
		"Всего: %d\n"+
		"published = TRUE: %d\n"+
		"published = FALSE: %d\n"+
		"published IS NULL: %d",
		diag.Total, diag.PublishedTrue, diag.PublishedFalse, diag.PublishedNull)
	if diag.PublishedNull > 0 {
		text += "\n\n⚠️ Найдены NULL-флаги. Исправить: /fix_published_posts"
	}
	h.reply(chatID, text)
}

func (h *Handler) handleFixPublished(chatID int64) {
	fixed, err := h.posts.FixNullPublished()
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err))
		return
	}
	reverted, err := h.posts.RevertOrphanedPublished(time.Now().Add(-24 * time.Hour))
	if err != nil {
		h.reply(chatID, fmt.Sprintf("NULL-флаги исправлены (%d), но вернуть осиротевшие посты не удалось: %v", fixed, err))
		return
	}
	if fixed == 0 && len(reverted) == 0 {
		h.reply(chatID, "Флаги в порядке, исправлять нечего")
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ Исправлено NULL-флагов: %d\n✅ Возвращено в очередь: %d", fixed, len(reverted)))
}

func (h *Handler) handleMakeTopic(chatID int64, topic string) {
	if topic == "" {
		h.reply(chatID, "Укажите тему: /make_topic зимний Байкал")
		return
	}
	if err := h.topics.Put(topic); err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка сохранения темы: %v", err))
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ Тема передана: %s\n\nОна будет использована при следующем запросе автоматизатора.", topic))
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}
