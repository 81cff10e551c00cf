// Package ledger ведёт журнал заказов и считает статистику продаж.
// models.go описывает запись журнала и агрегаты.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/autogifts/internal/common"
)

// OrderRecord — запись журнала. После создания не меняется.
type OrderRecord struct {
	Timestamp   time.Time
	OrderID     string
	AmountPaid  decimal.Decimal
	Description string
	Profit      decimal.Decimal
}

// recordJSON — формат записи в auto_gift_orders.json.
type recordJSON struct {
	Date    string      `json:"date"`
	OrderID string      `json:"order_id"`
	Summa   json.Number `json:"summa"`
	LotName string      `json:"lot_name"`
	Profit  json.Number `json:"profit"`
}

func (r OrderRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Date:    r.Timestamp.Format(common.LedgerTimeLayout),
		OrderID: r.OrderID,
		Summa:   json.Number(r.AmountPaid.String()),
		LotName: r.Description,
		Profit:  json.Number(r.Profit.String()),
	})
}

func (r *OrderRecord) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.ParseInLocation(common.LedgerTimeLayout, raw.Date, time.Local)
	if err != nil {
		return fmt.Errorf("дата заказа %s: %w", raw.OrderID, err)
	}
	paid, err := numberOrZero(raw.Summa)
	if err != nil {
		return fmt.Errorf("сумма заказа %s: %w", raw.OrderID, err)
	}
	profit, err := numberOrZero(raw.Profit)
	if err != nil {
		return fmt.Errorf("профит заказа %s: %w", raw.OrderID, err)
	}
	*r = OrderRecord{
		Timestamp:   ts,
		OrderID:     raw.OrderID,
		AmountPaid:  paid,
		Description: raw.LotName,
		Profit:      profit,
	}
	return nil
}

func numberOrZero(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

// Window — агрегат за один период.
type Window struct {
	Count  int
	Total  decimal.Decimal
	Profit decimal.Decimal
	TopLot string // пусто, если заказов нет
}

// Summary — статистика за 24 часа, неделю, месяц и всё время.
type Summary struct {
	Day   Window
	Week  Window
	Month Window
	All   Window
}
