package domain

import "time"

// PublicationStatus описывает состояние публикации поста.
type PublicationStatus string

const (
	// StatusDraft пост создан, но ещё не опубликован.
	StatusDraft PublicationStatus = "draft"
	// StatusPublished пост отправлен в группу.
	StatusPublished PublicationStatus = "published"
)

// Post представляет сгенерированный или присланный оператором пост.
type Post struct {
	ID                int64
	Topic             string
	Content           string
	ImageURL          string
	ImagePrompt       string
	CreatedAt         time.Time
	PublishedAt       *time.Time
	Published         bool
	TelegramMessageID *int
}

// Status возвращает состояние публикации. Записи со старым NULL-флагом
// нормализуются при чтении из БД, поэтому здесь достаточно двух состояний.
func (p Post) Status() PublicationStatus {
	if p.Published {
		return StatusPublished
	}
	return StatusDraft
}

// PostDraft содержит данные для создания нового поста.
type PostDraft struct {
	Topic       string
	Content     string
	ImageURL    string
	ImagePrompt string
	Published   bool
}

// PostDiagnostic содержит разбивку постов по значению флага публикации.
type PostDiagnostic struct {
	Total          int
	PublishedTrue  int
	PublishedFalse int
	PublishedNull  int
}

// Frequency задаёт периодичность расписания.
type Frequency string

const (
	// FrequencyDaily публикация каждый день.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly публикация по выбранным дням недели.
	FrequencyWeekly Frequency = "weekly"
)

// Schedule описывает правило автоматической публикации.
// DaysOfWeek хранится строкой вида "0,2,4", где 0 — понедельник.
type Schedule struct {
	ID         int64
	Frequency  Frequency
	Time       string
	DaysOfWeek string
	IsActive   bool
	CreatedAt  time.Time
	LastRun    *time.Time
}

// GeneratedPost результат работы генератора контента.
// Генератор никогда не возвращает ошибку: при сбое модели Content
// содержит текст ошибки, а ImageURL остаётся пустым.
type GeneratedPost struct {
	Topic       string
	Content     string
	ImagePrompt string
	ImageURL    string
}

// AnalyticsRecord счётчики просмотров поста. Таблица создаётся,
// но ни один пайплайн её пока не наполняет.
type AnalyticsRecord struct {
	ID          int64
	PostID      int64
	Views       int
	Forwards    int
	LastUpdated time.Time
}
