// Package postgres — queries.go содержит документное хранилище,
// журнал заказов и применение миграций.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"serotonyl.ru/autogifts/internal/features/ledger"
)

// ExecMigrationSQL выполняет один SQL-запрос миграции в транзакции.
// Если запрос упадёт, транзакция откатится.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	return tx.Commit(ctx)
}

// Documents хранит JSON-документы в таблице documents.
type Documents struct {
	pool *pgxpool.Pool
}

// NewDocuments создаёт документное хранилище.
func NewDocuments(pool *pgxpool.Pool) *Documents {
	return &Documents{pool: pool}
}

// Load читает документ. Для отсутствующего документа возвращает nil без ошибки.
func (d *Documents) Load(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := d.pool.QueryRow(ctx,
		"SELECT body::text FROM documents WHERE name = $1", name,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение документа %s: %w", name, err)
	}
	return []byte(body), nil
}

// Save перезаписывает документ целиком.
func (d *Documents) Save(ctx context.Context, name string, data []byte) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO documents (name, body, updated_at)
		VALUES ($1, $2::text::json, NOW())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, name, string(data))
	if err != nil {
		return fmt.Errorf("запись документа %s: %w", name, err)
	}
	return nil
}

// Orders — журнал заказов в таблице gift_orders.
type Orders struct {
	pool *pgxpool.Pool
}

// NewOrders создаёт журнал заказов.
func NewOrders(pool *pgxpool.Pool) *Orders {
	return &Orders{pool: pool}
}

func (o *Orders) Append(ctx context.Context, rec ledger.OrderRecord) error {
	_, err := o.pool.Exec(ctx, `
		INSERT INTO gift_orders (order_id, created_at, amount_paid, description, profit)
		VALUES ($1, $2, $3::text::numeric, $4, $5::text::numeric)
	`, rec.OrderID, rec.Timestamp, rec.AmountPaid.String(), rec.Description, rec.Profit.String())
	if err != nil {
		return fmt.Errorf("запись заказа %s: %w", rec.OrderID, err)
	}
	return nil
}

func (o *Orders) List(ctx context.Context) ([]ledger.OrderRecord, error) {
	rows, err := o.pool.Query(ctx, `
		SELECT order_id, created_at, amount_paid::text, description, profit::text
		FROM gift_orders
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("чтение журнала заказов: %w", err)
	}
	defer rows.Close()

	var out []ledger.OrderRecord
	for rows.Next() {
		var (
			rec            ledger.OrderRecord
			createdAt      time.Time
			amount, profit string
		)
		if err := rows.Scan(&rec.OrderID, &createdAt, &amount, &rec.Description, &profit); err != nil {
			return nil, fmt.Errorf("чтение журнала заказов: %w", err)
		}
		rec.Timestamp = createdAt.Local()
		if rec.AmountPaid, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("сумма заказа %s: %w", rec.OrderID, err)
		}
		if rec.Profit, err = decimal.NewFromString(profit); err != nil {
			return nil, fmt.Errorf("профит заказа %s: %w", rec.OrderID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
