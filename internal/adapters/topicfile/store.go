package topicfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store передаёт тему от чат-команды внешнему потребителю через файл.
// Запись перезаписывает предыдущую тему, чтение одноразовое: файл
// удаляется при первом успешном Take.
type Store struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

type record struct {
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStore создаёт файловое хранилище темы.
func NewStore(log zerolog.Logger, path string) *Store {
	if path == "" {
		path = "make_topic_request.json"
	}
	return &Store{path: path, log: log}
}

// Put сохраняет тему, затирая предыдущую.
func (s *Store) Put(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record{Topic: topic, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("topicfile: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("topicfile: запись файла: %w", err)
	}
	return nil
}

// Take возвращает сохранённую тему и удаляет файл.
// ok=false означает, что темы нет.
func (s *Store) Take() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("topicfile: чтение файла: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Битый файл убираем, чтобы не зациклиться на нём.
		os.Remove(s.path)
		return "", false, fmt.Errorf("topicfile: разбор файла: %w", err)
	}
	if err := os.Remove(s.path); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("не удалось удалить файл темы")
	}
	return rec.Topic, true, nil
}
