// Package admin — repository.go хранит список операторов и попытки входа.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const operatorsDocument = "operators"

// DocumentStore — хранилище JSON-документов (файлы или PostgreSQL).
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// Repository — операторы в документе operators, попытки входа в памяти.
type Repository struct {
	docs DocumentStore

	mu       sync.Mutex
	attempts []LoginAttempt
}

// NewRepository создаёт репозиторий.
func NewRepository(docs DocumentStore) *Repository {
	return &Repository{docs: docs}
}

// LoadOperators возвращает ID операторов, вошедших по паролю.
func (r *Repository) LoadOperators(ctx context.Context) ([]int64, error) {
	data, err := r.docs.Load(ctx, operatorsDocument)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения операторов: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("ошибка разбора операторов: %w", err)
	}
	return ids, nil
}

// SaveOperators перезаписывает список операторов.
func (r *Repository) SaveOperators(ctx context.Context, ids []int64) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := r.docs.Save(ctx, operatorsDocument, data); err != nil {
		return fmt.Errorf("ошибка записи операторов: %w", err)
	}
	return nil
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(userID int64, at time.Time, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, LoginAttempt{UserID: userID, AttemptTime: at, Success: success})
}

// GetRecentFailures считает неудачные попытки пользователя после since.
// Заодно выбрасывает попытки старше since.
func (r *Repository) GetRecentFailures(userID int64, since time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.attempts[:0]
	n := 0
	for _, a := range r.attempts {
		if a.AttemptTime.Before(since) {
			continue
		}
		kept = append(kept, a)
		if a.UserID == userID && !a.Success {
			n++
		}
	}
	r.attempts = kept
	return n
}
