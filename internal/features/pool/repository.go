// Package pool — repository.go хранит статистику сессий в документе session_stats.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
)

const statsDocument = "session_stats"

// DocumentStore — хранилище JSON-документов (файлы или PostgreSQL).
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// Repository читает и перезаписывает статистику сессий целиком.
type Repository struct {
	docs DocumentStore
}

// NewRepository создаёт репозиторий.
func NewRepository(docs DocumentStore) *Repository {
	return &Repository{docs: docs}
}

// LoadStats возвращает статистику по имени сессии. Для пустого документа возвращается пустая карта.
func (r *Repository) LoadStats(ctx context.Context) (map[string]Stats, error) {
	data, err := r.docs.Load(ctx, statsDocument)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения статистики сессий: %w", err)
	}
	stats := make(map[string]Stats)
	if len(data) == 0 {
		return stats, nil
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("ошибка разбора статистики сессий: %w", err)
	}
	return stats, nil
}

// SaveStats перезаписывает документ статистики.
func (r *Repository) SaveStats(ctx context.Context, stats map[string]Stats) error {
	data, err := json.MarshalIndent(stats, "", "    ")
	if err != nil {
		return err
	}
	if err := r.docs.Save(ctx, statsDocument, data); err != nil {
		return fmt.Errorf("ошибка записи статистики сессий: %w", err)
	}
	return nil
}
