package cron

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/metrics"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/publish"
)

// misfireGrace окно, в котором пропущенный запуск догоняется после
// рестарта сервиса.
const misfireGrace = time.Hour

const jobTimeout = 5 * time.Minute

// Scheduler запускает автоматическую публикацию по расписанию из БД.
// В cron всегда живёт не больше одной задачи: Setup заменяет предыдущую.
type Scheduler struct {
	cron      *cron.Cron
	publisher *publish.Service
	schedules domain.ScheduleRepo
	log       zerolog.Logger
	loc       *time.Location

	mu      sync.Mutex
	entryID cron.EntryID
	current domain.Schedule
	hasJob  bool
}

// NewScheduler создаёт планировщик в указанной таймзоне.
func NewScheduler(publisher *publish.Service, schedules domain.ScheduleRepo, log zerolog.Logger, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		publisher: publisher,
		schedules: schedules,
		log:       log,
		loc:       loc,
	}
}

// Setup применяет расписание, заменяя текущую cron-задачу.
// Если ближайший по расписанию запуск был пропущен недавно
// (рестарт в момент срабатывания), задача выполняется сразу.
func (s *Scheduler) Setup(schedule domain.Schedule) error {
	spec, err := cronSpec(schedule)
	if err != nil {
		return err
	}
	parsed, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("cron: разбор выражения %q: %w", spec, err)
	}

	s.mu.Lock()
	if s.hasJob {
		s.cron.Remove(s.entryID)
		s.hasJob = false
	}
	entryID, err := s.cron.AddFunc(spec, s.runJob)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("cron: добавление задачи: %w", err)
	}
	s.entryID = entryID
	s.current = schedule
	s.hasJob = true
	s.mu.Unlock()

	s.log.Info().
		Str("frequency", string(schedule.Frequency)).
		Str("cron", spec).
		Msg("расписание публикации применено")

	if s.missedRecently(parsed, schedule, time.Now().In(s.loc)) {
		s.log.Info().Msg("пропущенный запуск расписания, публикуем сейчас")
		go s.runJob()
	}
	return nil
}

// missedRecently проверяет, что последний теоретический запуск попал в
// окно misfireGrace и ещё не был выполнен.
func (s *Scheduler) missedRecently(sched cron.Schedule, schedule domain.Schedule, now time.Time) bool {
	prev := sched.Next(now.Add(-misfireGrace))
	if !prev.Before(now) {
		return false
	}
	if schedule.LastRun != nil && !schedule.LastRun.Before(prev) {
		return false
	}
	return true
}

// Start запускает cron-цикл.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Pause снимает cron-задачу, не трогая расписание в БД.
// Повторный вызов безопасен.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasJob {
		s.cron.Remove(s.entryID)
		s.hasJob = false
	}
	s.log.Info().Msg("автопубликация приостановлена")
}

// Resume возвращает задачу по последнему применённому расписанию.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	current := s.current
	hasJob := s.hasJob
	s.mu.Unlock()
	if hasJob {
		return nil
	}
	if current.ID == 0 {
		return fmt.Errorf("cron: расписание не настроено")
	}
	return s.Setup(current)
}

// Stop останавливает cron и дожидается завершения текущей задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	err := s.publishOnce(ctx)
	metrics.IncSchedulerRun(err)
	if err != nil {
		s.log.Error().Err(err).Msg("запланированная публикация не удалась")
		return
	}

	s.mu.Lock()
	scheduleID := s.current.ID
	s.mu.Unlock()
	if err := s.schedules.TouchLastRun(scheduleID); err != nil {
		s.log.Warn().Err(err).Msg("не удалось обновить время последнего запуска")
	}
}

// publishOnce публикует готовый пост из очереди, а если очередь пуста,
// генерирует новый.
func (s *Scheduler) publishOnce(ctx context.Context) error {
	_, err := s.publisher.PublishLatest(ctx, "scheduler")
	if errors.Is(err, publish.ErrNoUnpublished) {
		s.log.Info().Msg("очередь пуста, генерируем пост для публикации")
		_, err = s.publisher.GenerateAndPublish(ctx, "", "scheduler")
	}
	return err
}

// cronSpec строит cron-выражение из расписания. Дни недели хранятся
// как 0=понедельник, cron считает 0=воскресеньем, отсюда сдвиг.
func cronSpec(schedule domain.Schedule) (string, error) {
	parts := strings.Split(schedule.Time, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("cron: неверное время %q", schedule.Time)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("cron: неверное время %q", schedule.Time)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("cron: неверное время %q", schedule.Time)
	}

	switch schedule.Frequency {
	case domain.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case domain.FrequencyWeekly:
		days, err := cronDays(schedule.DaysOfWeek)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, days), nil
	default:
		return "", fmt.Errorf("cron: неизвестная периодичность %q", schedule.Frequency)
	}
}

func cronDays(daysOfWeek string) (string, error) {
	trimmed := strings.TrimSpace(daysOfWeek)
	if trimmed == "" {
		return "", fmt.Errorf("cron: пустые дни недели")
	}
	var out []string
	for _, part := range strings.Split(trimmed, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || day < 0 || day > 6 {
			return "", fmt.Errorf("cron: неверный день недели %q", part)
		}
		out = append(out, strconv.Itoa((day+1)%7))
	}
	return strings.Join(out, ","), nil
}
