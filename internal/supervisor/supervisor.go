package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// State состояние супервизируемого компонента.
type State string

const (
	// StateRunning компонент работает.
	StateRunning State = "running"
	// StateFailed компонент завершился с ошибкой.
	StateFailed State = "failed"
	// StateBackoff ожидание перед перезапуском.
	StateBackoff State = "backoff"
	// StateStopped компонент остановлен штатно.
	StateStopped State = "stopped"
)

const (
	baseBackoff = 10 * time.Second
	maxBackoff  = 5 * time.Minute
)

// Supervisor перезапускает долгоживущий компонент после сбоев с
// экспоненциальной задержкой. Паника внутри компонента считается сбоем.
type Supervisor struct {
	name string
	log  zerolog.Logger
	run  func(ctx context.Context) error

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// New создаёт супервизор для компонента.
func New(name string, log zerolog.Logger, run func(ctx context.Context) error) *Supervisor {
	return &Supervisor{
		name:        name,
		log:         log,
		run:         run,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
}

// Run крутит компонент до отмены контекста. Успешное завершение run
// тоже перезапускается: долгоживущий цикл не должен выходить сам.
func (s *Supervisor) Run(ctx context.Context) {
	backoff := s.baseBackoff
	for {
		if ctx.Err() != nil {
			s.log.Info().Str("component", s.name).Str("state", string(StateStopped)).Msg("компонент остановлен")
			return
		}

		started := time.Now()
		err := s.safeRun(ctx)
		if ctx.Err() != nil {
			s.log.Info().Str("component", s.name).Str("state", string(StateStopped)).Msg("компонент остановлен")
			return
		}

		s.log.Error().
			Err(err).
			Str("component", s.name).
			Str("state", string(StateFailed)).
			Dur("uptime", time.Since(started)).
			Msg("компонент завершился, перезапускаем")

		// Долгая стабильная работа сбрасывает задержку.
		if time.Since(started) > s.maxBackoff {
			backoff = s.baseBackoff
		}

		s.log.Info().
			Str("component", s.name).
			Str("state", string(StateBackoff)).
			Dur("delay", backoff).
			Msg("пауза перед перезапуском")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

func (s *Supervisor) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника: %v", r)
		}
	}()
	s.log.Info().Str("component", s.name).Str("state", string(StateRunning)).Msg("компонент запущен")
	return s.run(ctx)
}
