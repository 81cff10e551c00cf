// Package catalog — repository.go читает и пишет документ gift_lots.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
)

const settingsDocument = "gift_lots"

// DocumentStore — хранилище JSON-документов (файлы или PostgreSQL).
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// Repository работает с документом настроек.
type Repository struct {
	docs DocumentStore
}

// NewRepository создаёт репозиторий.
func NewRepository(docs DocumentStore) *Repository {
	return &Repository{docs: docs}
}

// Load возвращает настройки. Отсутствующие ключи дополняются значениями по умолчанию,
// и тогда документ перезаписывается. Если документа нет, создаётся DefaultSettings.
func (r *Repository) Load(ctx context.Context) (Settings, error) {
	data, err := r.docs.Load(ctx, settingsDocument)
	if err != nil {
		return Settings{}, fmt.Errorf("ошибка чтения gift_lots: %w", err)
	}
	if len(data) == 0 {
		def := DefaultSettings()
		return def, r.Save(ctx, def)
	}

	settings, backfilled, err := decodeSettings(data, false)
	if err != nil {
		return Settings{}, fmt.Errorf("ошибка разбора gift_lots: %w", err)
	}
	if backfilled {
		if err := r.Save(ctx, settings); err != nil {
			return Settings{}, err
		}
	}
	return settings, nil
}

// Save перезаписывает документ настроек.
func (r *Repository) Save(ctx context.Context, s Settings) error {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return err
	}
	if err := r.docs.Save(ctx, settingsDocument, data); err != nil {
		return fmt.Errorf("ошибка записи gift_lots: %w", err)
	}
	return nil
}

// decodeSettings разбирает документ и дополняет пропущенные ключи.
// requireLots — отсутствие lot_mapping считается ошибкой (загрузка файла оператором).
func decodeSettings(data []byte, requireLots bool) (Settings, bool, error) {
	var doc settingsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Settings{}, false, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	backfilled := false
	s := Settings{AutoRefunds: true, ActiveLots: true}
	if doc.Lots == nil {
		if requireLots {
			return Settings{}, false, ErrMissingLotMapping
		}
		backfilled = true
		s.Lots = LotMapping{}
	} else {
		s.Lots = *doc.Lots
	}
	if doc.AutoRefunds == nil {
		backfilled = true
	} else {
		s.AutoRefunds = *doc.AutoRefunds
	}
	if doc.ActiveLots == nil {
		backfilled = true
	} else {
		s.ActiveLots = *doc.ActiveLots
	}
	return s, backfilled, nil
}
