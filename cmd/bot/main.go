package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/adapters/bot"
	cronsched "github.com/zhural-2025/Smm-travel-bot/internal/adapters/cron"
	"github.com/zhural-2025/Smm-travel-bot/internal/adapters/generator"
	"github.com/zhural-2025/Smm-travel-bot/internal/adapters/images"
	"github.com/zhural-2025/Smm-travel-bot/internal/adapters/repo"
	"github.com/zhural-2025/Smm-travel-bot/internal/adapters/telegram"
	"github.com/zhural-2025/Smm-travel-bot/internal/adapters/topicfile"
	"github.com/zhural-2025/Smm-travel-bot/internal/api"
	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/config"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/db"
	httpserver "github.com/zhural-2025/Smm-travel-bot/internal/infra/http"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/log"
	"github.com/zhural-2025/Smm-travel-bot/internal/infra/metrics"
	openaiclient "github.com/zhural-2025/Smm-travel-bot/internal/infra/openai"
	"github.com/zhural-2025/Smm-travel-bot/internal/supervisor"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/publish"
	"github.com/zhural-2025/Smm-travel-bot/internal/usecase/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := log.NewLogger(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("конфигурация неполная")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.TZ).Msg("таймзона не найдена, используем локальную")
		loc = time.Local
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()
	if err := db.Migrate(pool); err != nil {
		logger.Fatal().Err(err).Msg("не удалось применить миграции")
	}

	repoAdapter := repo.NewPostgres(pool)

	// Старые строки с NULL-флагом чинятся на старте, дальше за ними
	// следит команда /fix_published_posts.
	if fixed, err := repoAdapter.FixNullPublished(); err != nil {
		logger.Warn().Err(err).Msg("не удалось исправить NULL-флаги публикации")
	} else if fixed > 0 {
		logger.Info().Int("fixed", fixed).Msg("исправлены NULL-флаги публикации")
	}
	// Посты, помеченные опубликованными без ID сообщения, возвращаются
	// в очередь: такие записи оставлял старый путь записи при сбое отправки.
	if ids, err := repoAdapter.RevertOrphanedPublished(time.Now().Add(-24 * time.Hour)); err != nil {
		logger.Warn().Err(err).Msg("не удалось вернуть осиротевшие посты в очередь")
	} else if len(ids) > 0 {
		logger.Info().Ints64("post_ids", ids).Msg("осиротевшие посты возвращены в очередь")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("бот авторизован")

	openaiAPI := openaiclient.NewClient(cfg.OpenAI.APIKey, "", 90*time.Second)
	contentGen := generator.NewOpenAI(openaiAPI, logger, cfg.OpenAI.Model, cfg.OpenAI.ImageModel, config.TravelTopics)
	downloader := images.NewDownloader(logger, cfg.ImagesDir)
	publisher := telegram.NewPublisher(botAPI, downloader, logger, cfg.Telegram.GroupID)
	topics := topicfile.NewStore(logger, cfg.TopicFile)

	publishService := publish.NewService(repoAdapter, contentGen, publisher, logger)

	scheduler := cronsched.NewScheduler(publishService, repoAdapter, logger, loc)
	scheduleService := schedule.NewService(repoAdapter, scheduler, logger)

	defaultSchedule, err := scheduleService.EnsureDefault(domain.Frequency(cfg.Schedule.Frequency), cfg.Schedule.Time)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать расписание по умолчанию")
	}
	if err := scheduler.Setup(defaultSchedule); err != nil {
		logger.Fatal().Err(err).Msg("не удалось применить расписание")
	}
	scheduler.Start()
	defer scheduler.Stop()

	botHandler := bot.NewHandler(botAPI, logger, publishService, scheduleService, scheduler, repoAdapter, contentGen, topics, cfg.Telegram.AdminID)

	apiHandler := api.NewHandler(logger, publishService, scheduleService, repoAdapter, topics, botHandler, pool, cfg.Webhook.Path, cfg.Webhook.Secret)
	server := httpserver.NewServer(logger)
	apiHandler.Register(server.Router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiSup := supervisor.New("api", logger, func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))
		}()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		}
	})
	go apiSup.Run(ctx)

	if !cfg.Webhook.Enabled {
		pollSup := supervisor.New("bot-polling", logger, func(ctx context.Context) error {
			return runPolling(ctx, botAPI, botHandler, logger)
		})
		go pollSup.Run(ctx)
	} else {
		logger.Info().Str("path", cfg.Webhook.Path).Msg("режим вебхука, long polling отключён")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка сервиса")
	cancel()
	botAPI.StopReceivingUpdates()
}

// runPolling крутит long polling до отмены контекста. Любая ошибка
// обрабатывается супервизором перезапуском цикла.
func runPolling(ctx context.Context, botAPI *tgbotapi.BotAPI, handler *bot.Handler, logger zerolog.Logger) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := botAPI.GetUpdatesChan(updateCfg)
	logger.Info().Msg("long polling запущен")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return fmt.Errorf("канал апдейтов закрыт")
			}
			handler.HandleUpdate(ctx, upd)
		}
	}
}
