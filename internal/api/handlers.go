package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/adapters/telegram"
	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/publish"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/schedule"
)

type updateHandler interface {
	HandleUpdate(ctx context.Context, upd tgbotapi.Update)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Handler обслуживает HTTP API для внешних автоматизаторов.
type Handler struct {
	log        zerolog.Logger
	publishUC  *publish.Service
	scheduleUC *schedule.Service
	posts      domain.PostRepo
	topics     domain.TopicHandoff
	bot        updateHandler
	db         pinger

	webhookPath   string
	webhookSecret string
}

// NewHandler создаёт обработчик API.
func NewHandler(log zerolog.Logger, publishUC *publish.Service, scheduleUC *schedule.Service, posts domain.PostRepo, topics domain.TopicHandoff, bot updateHandler, db pinger, webhookPath, webhookSecret string) *Handler {
	if webhookPath == "" {
		webhookPath = "/webhook/telegram"
	}
	return &Handler{
		log:           log,
		publishUC:     publishUC,
		scheduleUC:    scheduleUC,
		posts:         posts,
		topics:        topics,
		bot:           bot,
		db:            db,
		webhookPath:   webhookPath,
		webhookSecret: webhookSecret,
	}
}

// Register навешивает маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.root)
	r.Get("/api/status", h.status)
	r.Post("/api/generate", h.generate)
	r.Post("/api/publish", h.publish)
	r.Post("/api/publish_content", h.publishContent)
	r.Get("/api/posts/unpublished", h.unpublished)
	r.Get("/api/make_topic", h.makeTopic)
	r.Post(h.webhookPath, h.webhook)
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "smm-travel-bot",
		"status":  "running",
		"endpoints": []string{
			"GET /api/status",
			"POST /api/generate",
			"POST /api/publish",
			"POST /api/publish_content",
			"GET /api/posts/unpublished",
			"GET /api/make_topic",
			"GET /metrics",
		},
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	dbStatus := "ok"
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			dbStatus = "error: " + err.Error()
		}
	}

	resp := map[string]any{
		"status":   "running",
		"database": dbStatus,
		"time":     time.Now().Format(time.RFC3339),
	}
	if sched, err := h.scheduleUC.Status(); err == nil {
		resp["schedule"] = map[string]any{
			"frequency":    sched.Frequency,
			"time":         sched.Time,
			"days_of_week": sched.DaysOfWeek,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type generateRequest struct {
	Topic   string `json:"topic"`
	Publish bool   `json:"publish"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса")
		return
	}
	post, err := h.publishUC.Generate(r.Context(), req.Topic, "api")
	if err != nil {
		h.log.Error().Err(err).Msg("api: ошибка генерации")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := postPayload(post)
	if req.Publish {
		// Пост уже сохранён: ошибка публикации не роняет запрос.
		published, pubErr := h.publishUC.PublishPost(r.Context(), post, "api")
		if pubErr != nil {
			h.log.Warn().Err(pubErr).Int64("post_id", post.ID).Msg("api: пост сгенерирован, но не опубликован")
			payload["publish_error"] = pubErr.Error()
		} else {
			payload = postPayload(published)
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

type publishRequest struct {
	PostID int64 `json:"post_id"`
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса")
		return
	}

	var post domain.Post
	var err error
	if req.PostID > 0 {
		post, err = h.publishUC.PublishByID(r.Context(), req.PostID, "api")
	} else {
		post, err = h.publishUC.PublishLatest(r.Context(), "api")
	}
	h.writePublishResult(w, post, err)
}

type publishContentRequest struct {
	Topic    string `json:"topic"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url"`
	SaveToDB *bool  `json:"save_to_db"`
}

func (h *Handler) publishContent(w http.ResponseWriter, r *http.Request) {
	var req publishContentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content обязателен")
		return
	}

	if req.SaveToDB != nil && !*req.SaveToDB {
		messageID, err := h.publishUC.PublishRaw(r.Context(), req.Content, req.ImageURL, "api")
		if err != nil {
			h.writePublishResult(w, domain.Post{}, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"telegram_message_id": messageID, "saved": false})
		return
	}

	post, err := h.publishUC.PublishContent(r.Context(), req.Topic, req.Content, req.ImageURL, "api")
	h.writePublishResult(w, post, err)
}

func (h *Handler) writePublishResult(w http.ResponseWriter, post domain.Post, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, postPayload(post))
	case errors.Is(err, publish.ErrNoUnpublished):
		writeError(w, http.StatusNotFound, "нет неопубликованных постов")
	case errors.Is(err, domain.ErrPostNotFound):
		writeError(w, http.StatusNotFound, "пост не найден")
	case errors.Is(err, publish.ErrNotSent):
		writeError(w, http.StatusBadGateway, "отправка не подтверждена, пост остался в очереди")
	case errors.Is(err, telegram.ErrGroupNotFound), errors.Is(err, telegram.ErrGroupForbidden):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("api: ошибка публикации")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) unpublished(w http.ResponseWriter, _ *http.Request) {
	posts, err := h.posts.ListUnpublished()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(posts) > 10 {
		posts = posts[:10]
	}
	payload := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		payload = append(payload, postPayload(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": payload, "count": len(payload)})
}

// makeTopic отдаёт тему, сохранённую через /make_topic, ровно один раз.
// Без сохранённой темы возвращается {"topic": null}.
func (h *Handler) makeTopic(w http.ResponseWriter, _ *http.Request) {
	topic, ok, err := h.topics.Take()
	if err != nil {
		h.log.Warn().Err(err).Msg("api: ошибка чтения темы")
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"topic": nil, "message": "тема не задана"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topic": topic})
}

// webhook принимает апдейты Telegram. Ответ всегда 200, иначе Telegram
// будет бесконечно ретраить сломанный апдейт.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != h.webhookSecret {
		h.log.Warn().Msg("api: неверный секрет вебхука")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.log.Warn().Err(err).Msg("api: некорректный апдейт вебхука")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if h.bot != nil {
		h.bot.HandleUpdate(r.Context(), upd)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func postPayload(post domain.Post) map[string]any {
	payload := map[string]any{
		"id":         post.ID,
		"topic":      post.Topic,
		"content":    post.Content,
		"image_url":  post.ImageURL,
		"status":     post.Status(),
		"created_at": post.CreatedAt.Format(time.RFC3339),
	}
	if post.PublishedAt != nil {
		payload["published_at"] = post.PublishedAt.Format(time.RFC3339)
	}
	if post.TelegramMessageID != nil {
		payload["telegram_message_id"] = *post.TelegramMessageID
	}
	return payload
}

// decodeBody разбирает JSON-тело. Пустое тело не ошибка: часть
// запросов (например /api/publish) валидна без параметров.
func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(out)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
