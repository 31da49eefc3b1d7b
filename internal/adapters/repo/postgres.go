package repo

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.PostRepo      = (*Postgres)(nil)
	_ domain.ScheduleRepo  = (*Postgres)(nil)
	_ domain.AnalyticsRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// CreatePost сохраняет новый пост. Флаг публикации записывается явно,
// чтобы в таблице не появлялись новые NULL-значения.
func (p *Postgres) CreatePost(draft domain.PostDraft) (domain.Post, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO posts (topic, content, image_url, image_prompt, is_published)
VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5)
RETURNING id, topic, content, image_url, image_prompt, created_at, published_at, is_published, telegram_message_id
`, draft.Topic, draft.Content, draft.ImageURL, draft.ImagePrompt, draft.Published)
	post, err := scanPost(row)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	return post, nil
}

// GetPost возвращает пост по ID.
func (p *Postgres) GetPost(id int64) (domain.Post, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, topic, content, image_url, image_prompt, created_at, published_at, is_published, telegram_message_id
FROM posts WHERE id = $1
`, id)
	post, err := scanPost(row)
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, domain.ErrPostNotFound
	}
	if err != nil {
		return domain.Post{}, err
	}
	return post, nil
}

// ListUnpublished возвращает неопубликованные посты от новых к старым.
// IS NOT TRUE покрывает и false, и старые NULL-записи.
func (p *Postgres) ListUnpublished() ([]domain.Post, error) {
	return p.listPosts(`
SELECT id, topic, content, image_url, image_prompt, created_at, published_at, is_published, telegram_message_id
FROM posts WHERE is_published IS NOT TRUE ORDER BY created_at DESC
`, "posts_list_unpublished")
}

// ListAll возвращает последние посты независимо от статуса.
func (p *Postgres) ListAll(limit int) ([]domain.Post, error) {
	if limit <= 0 {
		limit = 20
	}
	return p.listPosts(`
SELECT id, topic, content, image_url, image_prompt, created_at, published_at, is_published, telegram_message_id
FROM posts ORDER BY created_at DESC LIMIT `+strconv.Itoa(limit), "posts_list_all")
}

func (p *Postgres) listPosts(query, operation string) ([]domain.Post, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query)
	metrics.ObserveNetworkRequest("postgres", operation, "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// MarkPublished помечает пост опубликованным. Идемпотентна по эффекту:
// повторный вызов оставляет флаг и переписывает ID сообщения.
func (p *Postgres) MarkPublished(id int64, messageID int) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE posts
SET is_published = TRUE,
    published_at = COALESCE(published_at, now()),
    telegram_message_id = $2
WHERE id = $1
`, id, messageID)
	metrics.ObserveNetworkRequest("postgres", "posts_mark_published", "posts", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Diagnostic возвращает разбивку постов по значению флага публикации.
func (p *Postgres) Diagnostic() (domain.PostDiagnostic, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var diag domain.PostDiagnostic
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE is_published IS TRUE),
       count(*) FILTER (WHERE is_published IS FALSE),
       count(*) FILTER (WHERE is_published IS NULL)
FROM posts
`).Scan(&diag.Total, &diag.PublishedTrue, &diag.PublishedFalse, &diag.PublishedNull)
	metrics.ObserveNetworkRequest("postgres", "posts_diagnostic", "posts", start, err)
	if err != nil {
		return domain.PostDiagnostic{}, err
	}
	return diag, nil
}

// FixNullPublished выставляет false всем постам с NULL-флагом.
func (p *Postgres) FixNullPublished() (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE posts SET is_published = FALSE WHERE is_published IS NULL`)
	metrics.ObserveNetworkRequest("postgres", "posts_fix_null", "posts", start, err)
	if err != nil {
		return 0, err
	}
	fixed := int(tag.RowsAffected())
	if fixed > 0 {
		metrics.NullFlagsFixedTotal.Add(float64(fixed))
	}
	return fixed, nil
}

// RevertOrphanedPublished возвращает в черновики недавние посты,
// помеченные опубликованными без ID сообщения. Эвристический ремонт
// под старый баг пути записи, а не общий инвариант.
func (p *Postgres) RevertOrphanedPublished(since time.Time) ([]int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
UPDATE posts
SET is_published = FALSE, published_at = NULL
WHERE is_published IS TRUE AND telegram_message_id IS NULL AND created_at >= $1
RETURNING id
`, since)
	metrics.ObserveNetworkRequest("postgres", "posts_revert_orphaned", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveSchedule возвращает первую активную запись расписания.
func (p *Postgres) ActiveSchedule() (domain.Schedule, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, frequency, time, days_of_week, is_active, created_at, last_run
FROM schedules WHERE is_active IS TRUE ORDER BY id LIMIT 1
`)
	schedule, err := scanSchedule(row)
	metrics.ObserveNetworkRequest("postgres", "schedules_active", "schedules", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Schedule{}, domain.ErrScheduleNotFound
	}
	if err != nil {
		return domain.Schedule{}, err
	}
	return schedule, nil
}

// UpsertActive обновляет активное расписание либо создаёт новое.
func (p *Postgres) UpsertActive(frequency domain.Frequency, timeOfDay, daysOfWeek string) (domain.Schedule, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tx, err := p.pool.Begin(ctx)
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "schedules", start, err)
	if err != nil {
		return domain.Schedule{}, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `SELECT id FROM schedules WHERE is_active IS TRUE ORDER BY id LIMIT 1`).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		start = time.Now()
		row := tx.QueryRow(ctx, `
INSERT INTO schedules (frequency, time, days_of_week, is_active)
VALUES ($1, $2, NULLIF($3,''), TRUE)
RETURNING id, frequency, time, days_of_week, is_active, created_at, last_run
`, string(frequency), timeOfDay, daysOfWeek)
		schedule, err := scanSchedule(row)
		metrics.ObserveNetworkRequest("postgres", "schedules_insert", "schedules", start, err)
		if err != nil {
			return domain.Schedule{}, err
		}
		return schedule, tx.Commit(ctx)
	case err != nil:
		return domain.Schedule{}, err
	}

	start = time.Now()
	row := tx.QueryRow(ctx, `
UPDATE schedules
SET frequency = $2, time = $3, days_of_week = NULLIF($4,'')
WHERE id = $1
RETURNING id, frequency, time, days_of_week, is_active, created_at, last_run
`, id, string(frequency), timeOfDay, daysOfWeek)
	schedule, err := scanSchedule(row)
	metrics.ObserveNetworkRequest("postgres", "schedules_update", "schedules", start, err)
	if err != nil {
		return domain.Schedule{}, err
	}
	return schedule, tx.Commit(ctx)
}

// EnsureDefault создаёт расписание по умолчанию, если таблица пуста.
func (p *Postgres) EnsureDefault(frequency domain.Frequency, timeOfDay string) (domain.Schedule, error) {
	existing, err := p.ActiveSchedule()
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrScheduleNotFound) {
		return domain.Schedule{}, err
	}
	return p.UpsertActive(frequency, timeOfDay, "")
}

// TouchLastRun обновляет время последнего запуска расписания.
func (p *Postgres) TouchLastRun(id int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE schedules SET last_run = now() WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "schedules_touch", "schedules", start, err)
	return err
}

// UpsertRecord сохраняет счётчики поста.
func (p *Postgres) UpsertRecord(record domain.AnalyticsRecord) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO analytics (post_id, views, forwards, last_updated)
VALUES ($1, $2, $3, now())
`, record.PostID, record.Views, record.Forwards)
	metrics.ObserveNetworkRequest("postgres", "analytics_upsert", "analytics", start, err)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (domain.Post, error) {
	var (
		post        domain.Post
		imageURL    sql.NullString
		imagePrompt sql.NullString
		publishedAt sql.NullTime
		published   sql.NullBool
		messageID   sql.NullInt64
	)
	err := row.Scan(&post.ID, &post.Topic, &post.Content, &imageURL, &imagePrompt, &post.CreatedAt, &publishedAt, &published, &messageID)
	if err != nil {
		return domain.Post{}, err
	}
	post.ImageURL = imageURL.String
	post.ImagePrompt = imagePrompt.String
	if publishedAt.Valid {
		ts := publishedAt.Time
		post.PublishedAt = &ts
	}
	// NULL нормализуется в false прямо при чтении
	post.Published = published.Valid && published.Bool
	if messageID.Valid {
		id := int(messageID.Int64)
		post.TelegramMessageID = &id
	}
	return post, nil
}

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var (
		schedule domain.Schedule
		freq     string
		days     sql.NullString
		lastRun  sql.NullTime
	)
	err := row.Scan(&schedule.ID, &freq, &schedule.Time, &days, &schedule.IsActive, &schedule.CreatedAt, &lastRun)
	if err != nil {
		return domain.Schedule{}, err
	}
	schedule.Frequency = domain.Frequency(freq)
	schedule.DaysOfWeek = days.String
	if lastRun.Valid {
		ts := lastRun.Time
		schedule.LastRun = &ts
	}
	return schedule, nil
}
