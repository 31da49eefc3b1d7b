package domain

import (
	"context"
	"errors"
	"time"
)

// ErrPostNotFound возвращается, если пост с указанным ID отсутствует.
var ErrPostNotFound = errors.New("пост не найден")

// ErrScheduleNotFound возвращается, если активное расписание не настроено.
var ErrScheduleNotFound = errors.New("активное расписание не найдено")

// PostRepo управляет хранением постов.
type PostRepo interface {
	CreatePost(draft PostDraft) (Post, error)
	GetPost(id int64) (Post, error)
	// ListUnpublished возвращает посты с флагом false или NULL,
	// отсортированные от новых к старым.
	ListUnpublished() ([]Post, error)
	ListAll(limit int) ([]Post, error)
	// MarkPublished выставляет флаг, время публикации и ID сообщения.
	// Возвращает false, если пост не найден.
	MarkPublished(id int64, messageID int) (bool, error)
	Diagnostic() (PostDiagnostic, error)
	// FixNullPublished переводит все NULL-флаги в false и возвращает
	// количество исправленных записей.
	FixNullPublished() (int, error)
	// RevertOrphanedPublished снимает флаг публикации с постов без
	// telegram_message_id, созданных после since. Возвращает их ID.
	RevertOrphanedPublished(since time.Time) ([]int64, error)
}

// ScheduleRepo управляет расписанием публикаций.
type ScheduleRepo interface {
	// ActiveSchedule возвращает первую активную запись.
	ActiveSchedule() (Schedule, error)
	UpsertActive(frequency Frequency, timeOfDay, daysOfWeek string) (Schedule, error)
	// EnsureDefault создаёт расписание по умолчанию, если таблица пуста.
	EnsureDefault(frequency Frequency, timeOfDay string) (Schedule, error)
	TouchLastRun(id int64) error
}

// AnalyticsRepo хранит счётчики постов. Записи создаёт только внешний
// инструментарий, пайплайн публикации таблицу не трогает.
type AnalyticsRepo interface {
	UpsertRecord(record AnalyticsRecord) error
}

// Generator создаёт контент поста и сопутствующие рекомендации.
type Generator interface {
	// GeneratePost генерирует текст и изображение. Пустой topic означает
	// случайную тему из фиксированного списка. Ошибки модели деградируют
	// в результат, а не пробрасываются.
	GeneratePost(ctx context.Context, topic string) GeneratedPost
	Recommendations(ctx context.Context) (string, error)
	TopicIdeas(ctx context.Context, count int) (string, error)
	AnalyzeIdea(ctx context.Context, idea string) (string, error)
}

// Publisher отправляет пост в целевую группу.
type Publisher interface {
	// Publish возвращает ID первого отправленного сообщения. Ошибки
	// валидации (группа не найдена, нет прав) возвращаются как error;
	// транзиентные сбои отправки логируются, и возвращается 0.
	Publish(ctx context.Context, content, imageURL string) (int, error)
}

// TopicHandoff одноразовая передача темы внешнему автоматизатору.
type TopicHandoff interface {
	Put(topic string) error
	// Take возвращает тему и удаляет её. ok=false, если тема не задана.
	Take() (topic string, ok bool, err error)
}
