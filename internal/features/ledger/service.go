// Package ledger — service.go записывает заказы и считает статистику по окнам.
// Журнал небольшой, поэтому каждый расчёт заново проходит его целиком.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Pricing — курс звезды в рублях и комиссия, по которым считается себестоимость.
type Pricing struct {
	StarRate      decimal.Decimal
	FeeMultiplier decimal.Decimal
}

// Profit = оплачено − количество × цена × курс × комиссия, с точностью до 0.1.
func (p Pricing) Profit(paid decimal.Decimal, quantity, unitPrice int64) decimal.Decimal {
	cost := decimal.NewFromInt(quantity * unitPrice).Mul(p.StarRate).Mul(p.FeeMultiplier)
	return paid.Sub(cost).Round(1)
}

// Service ведёт журнал заказов.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService создаёт сервис журнала.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record добавляет запись в журнал.
func (s *Service) Record(ctx context.Context, orderID string, amountPaid decimal.Decimal, description string, profit decimal.Decimal) error {
	rec := OrderRecord{
		Timestamp:   s.now(),
		OrderID:     orderID,
		AmountPaid:  amountPaid,
		Description: description,
		Profit:      profit,
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"order_id": orderID,
		"paid":     amountPaid.String(),
		"profit":   profit.String(),
	}).Info("Заказ записан в журнал")
	return nil
}

// Aggregate считает статистику за 24 часа, 7 дней, 30 дней и всё время.
func (s *Service) Aggregate(ctx context.Context, now time.Time) (Summary, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Day:   window(records, now.Add(-24*time.Hour)),
		Week:  window(records, now.AddDate(0, 0, -7)),
		Month: window(records, now.AddDate(0, 0, -30)),
		All:   window(records, time.Time{}),
	}, nil
}

// window агрегирует записи не раньше since. Нулевой since снимает ограничение.
// Топ-лот: самое частое описание; при равенстве побеждает то, что встретилось раньше.
func window(records []OrderRecord, since time.Time) Window {
	w := Window{Total: decimal.Zero, Profit: decimal.Zero}
	counts := make(map[string]int)
	var order []string

	for _, r := range records {
		if !since.IsZero() && r.Timestamp.Before(since) {
			continue
		}
		w.Count++
		w.Total = w.Total.Add(r.AmountPaid)
		w.Profit = w.Profit.Add(r.Profit)
		if counts[r.Description] == 0 {
			order = append(order, r.Description)
		}
		counts[r.Description]++
	}

	best := 0
	for _, desc := range order {
		if counts[desc] > best {
			best = counts[desc]
			w.TopLot = desc
		}
	}
	w.Total = w.Total.Round(2)
	w.Profit = w.Profit.Round(2)
	return w
}
