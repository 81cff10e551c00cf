package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/autogifts/internal/features/ledger"
)

// testPool подключается к TEST_DATABASE_DSN и работает в отдельной схеме,
// которая удаляется после теста.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN не задан")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(admin.Close)

	schema := fmt.Sprintf("autogifts_test_%d", time.Now().UnixNano())
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestDocumentsRoundTrip(t *testing.T) {
	pool := testPool(t)
	docs := NewDocuments(pool)
	ctx := context.Background()

	data, err := docs.Load(ctx, "gift_lots")
	require.NoError(t, err)
	assert.Nil(t, data)

	// Тип JSON хранит текст как есть, порядок ключей lot_mapping сохраняется
	body := `{"lot_mapping": {"lot_2": {"gift_id": 2}, "lot_1": {"gift_id": 1}}, "autoRefunds": true}`
	require.NoError(t, docs.Save(ctx, "gift_lots", []byte(body)))
	data, err = docs.Load(ctx, "gift_lots")
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	require.NoError(t, docs.Save(ctx, "gift_lots", []byte(`[]`)))
	data, err = docs.Load(ctx, "gift_lots")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	assert.Error(t, docs.Save(ctx, "broken", []byte(`{`)))
}

func TestOrdersRoundTrip(t *testing.T) {
	pool := testPool(t)
	orders := NewOrders(pool)
	ctx := context.Background()

	list, err := orders.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	first := ledger.OrderRecord{
		Timestamp:   time.Date(2026, 3, 1, 12, 30, 15, 0, time.Local),
		OrderID:     "ABC123",
		AmountPaid:  decimal.RequireFromString("200.5"),
		Description: "Подарок 🔮lot_1|",
		Profit:      decimal.RequireFromString("12.3"),
	}
	second := ledger.OrderRecord{
		Timestamp:   first.Timestamp.Add(time.Minute),
		OrderID:     "DEF456",
		AmountPaid:  decimal.RequireFromString("99"),
		Description: "Подарок 🔮lot_2|",
		Profit:      decimal.RequireFromString("-1.5"),
	}
	require.NoError(t, orders.Append(ctx, first))
	require.NoError(t, orders.Append(ctx, second))

	list, err = orders.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	for i, want := range []ledger.OrderRecord{first, second} {
		got := list[i]
		assert.Equal(t, want.OrderID, got.OrderID)
		assert.Equal(t, want.Description, got.Description)
		assert.True(t, want.Timestamp.Equal(got.Timestamp), "created_at: %s != %s", want.Timestamp, got.Timestamp)
		assert.True(t, want.AmountPaid.Equal(got.AmountPaid), "amount_paid: %s != %s", want.AmountPaid, got.AmountPaid)
		assert.True(t, want.Profit.Equal(got.Profit), "profit: %s != %s", want.Profit, got.Profit)
	}
}
