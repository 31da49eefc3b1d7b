package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhural-2025/Smm-travel-bot/internal/infra/metrics"
)

// Downloader скачивает сгенерированные изображения во временный каталог.
// Ссылки DALL-E живут недолго, поэтому файл забирается сразу после генерации.
type Downloader struct {
	http *http.Client
	log  zerolog.Logger
	dir  string
}

// NewDownloader создаёт загрузчик изображений.
func NewDownloader(log zerolog.Logger, dir string) *Downloader {
	if dir == "" {
		dir = "images"
	}
	return &Downloader{
		http: &http.Client{Timeout: 60 * time.Second},
		log:  log,
		dir:  dir,
	}
}

// Download скачивает изображение по URL и возвращает путь к локальному файлу.
// Просроченная ссылка (403/404) возвращается как ошибка: пост публикуется без фото.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("images: пустой URL")
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("images: создание каталога: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("images: build request: %w", err)
	}

	start := time.Now()
	resp, err := d.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("images", "download", "dalle", start, err)
		return "", fmt.Errorf("images: скачивание: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("images: неожиданный статус %d", resp.StatusCode)
		metrics.ObserveNetworkRequest("images", "download", "dalle", start, err)
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
			d.log.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("ссылка на изображение просрочена")
		}
		return "", err
	}

	path := filepath.Join(d.dir, uuid.NewString()+".png")
	file, err := os.Create(path)
	if err != nil {
		metrics.ObserveNetworkRequest("images", "download", "dalle", start, err)
		return "", fmt.Errorf("images: создание файла: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		metrics.ObserveNetworkRequest("images", "download", "dalle", start, err)
		os.Remove(path)
		return "", fmt.Errorf("images: запись файла: %w", err)
	}
	metrics.ObserveNetworkRequest("images", "download", "dalle", start, nil)
	return path, nil
}

// Cleanup удаляет скачанный файл после отправки.
func (d *Downloader) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.log.Warn().Err(err).Str("path", path).Msg("не удалось удалить временный файл изображения")
	}
}
