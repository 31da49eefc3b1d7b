package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
)

// Ошибки валидации параметров расписания.
var (
	ErrInvalidTime = errors.New("неверный формат времени, ожидается HH:MM")
	ErrInvalidDays = errors.New("неверные дни недели, ожидаются числа 0-6 через запятую")
)

// Rescheduler перенастраивает планировщик после изменения расписания.
type Rescheduler interface {
	Setup(schedule domain.Schedule) error
}

// Service управляет расписанием автоматических публикаций.
type Service struct {
	schedules   domain.ScheduleRepo
	rescheduler Rescheduler
	log         zerolog.Logger
}

// NewService создаёт сервис расписания. rescheduler может быть nil,
// тогда изменения применятся при следующем старте.
func NewService(schedules domain.ScheduleRepo, rescheduler Rescheduler, log zerolog.Logger) *Service {
	return &Service{schedules: schedules, rescheduler: rescheduler, log: log}
}

// SetDaily включает ежедневную публикацию в указанное время.
func (s *Service) SetDaily(timeOfDay string) (domain.Schedule, error) {
	normalized, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return domain.Schedule{}, err
	}
	return s.apply(domain.FrequencyDaily, normalized, "")
}

// SetWeekly включает публикацию по выбранным дням недели (0 — понедельник).
func (s *Service) SetWeekly(timeOfDay, daysOfWeek string) (domain.Schedule, error) {
	normalizedTime, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return domain.Schedule{}, err
	}
	normalizedDays, err := ParseDaysOfWeek(daysOfWeek)
	if err != nil {
		return domain.Schedule{}, err
	}
	return s.apply(domain.FrequencyWeekly, normalizedTime, normalizedDays)
}

func (s *Service) apply(frequency domain.Frequency, timeOfDay, daysOfWeek string) (domain.Schedule, error) {
	updated, err := s.schedules.UpsertActive(frequency, timeOfDay, daysOfWeek)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("сохранение расписания: %w", err)
	}
	if s.rescheduler != nil {
		if err := s.rescheduler.Setup(updated); err != nil {
			return updated, fmt.Errorf("перенастройка планировщика: %w", err)
		}
	}
	s.log.Info().
		Str("frequency", string(updated.Frequency)).
		Str("time", updated.Time).
		Str("days", updated.DaysOfWeek).
		Msg("расписание обновлено")
	return updated, nil
}

// Status возвращает активное расписание.
func (s *Service) Status() (domain.Schedule, error) {
	return s.schedules.ActiveSchedule()
}

// EnsureDefault создаёт расписание по умолчанию, если ни одного нет.
func (s *Service) EnsureDefault(frequency domain.Frequency, timeOfDay string) (domain.Schedule, error) {
	normalized, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return domain.Schedule{}, err
	}
	if frequency != domain.FrequencyDaily && frequency != domain.FrequencyWeekly {
		frequency = domain.FrequencyDaily
	}
	return s.schedules.EnsureDefault(frequency, normalized)
}

// ParseTimeOfDay проверяет строку "HH:MM" и возвращает её в
// нормализованном виде с ведущими нулями.
func ParseTimeOfDay(value string) (string, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTime, value)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// ParseDaysOfWeek проверяет строку вида "0,2,4" (0 — понедельник)
// и возвращает отсортированный список без дубликатов.
func ParseDaysOfWeek(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: пустая строка", ErrInvalidDays)
	}
	seen := map[int]bool{}
	for _, part := range strings.Split(trimmed, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || day < 0 || day > 6 {
			return "", fmt.Errorf("%w: %q", ErrInvalidDays, part)
		}
		seen[day] = true
	}
	days := make([]int, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Ints(days)
	out := make([]string, len(days))
	for i, day := range days {
		out[i] = strconv.Itoa(day)
	}
	return strings.Join(out, ","), nil
}
