// Package ledger — repository.go хранит журнал в документе auto_gift_orders.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

const ordersDocument = "auto_gift_orders"

// Repository — журнал заказов: только добавление и полное чтение.
type Repository interface {
	Append(ctx context.Context, rec OrderRecord) error
	List(ctx context.Context) ([]OrderRecord, error)
}

// DocumentStore — хранилище JSON-документов.
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// DocumentRepository хранит журнал как JSON-список в одном документе.
type DocumentRepository struct {
	mu   sync.Mutex
	docs DocumentStore
}

// NewDocumentRepository создаёт журнал поверх хранилища документов.
func NewDocumentRepository(docs DocumentStore) *DocumentRepository {
	return &DocumentRepository{docs: docs}
}

func (r *DocumentRepository) Append(ctx context.Context, rec OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.list(ctx)
	if err != nil {
		return err
	}
	records = append(records, rec)
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}
	if err := r.docs.Save(ctx, ordersDocument, data); err != nil {
		return fmt.Errorf("ошибка записи журнала заказов: %w", err)
	}
	return nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]OrderRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(ctx)
}

func (r *DocumentRepository) list(ctx context.Context) ([]OrderRecord, error) {
	data, err := r.docs.Load(ctx, ordersDocument)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала заказов: %w", err)
	}
	records := []OrderRecord{}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("ошибка разбора журнала заказов: %w", err)
	}
	return records, nil
}
