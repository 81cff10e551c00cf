// Package delivery отправляет купленные подарки с сессий пула.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/common"
	"serotonyl.ru/autogifts/internal/features/pool"
	"serotonyl.ru/autogifts/internal/gateway"
)

// Capacity — пул сессий, с которых идут отправки.
type Capacity interface {
	Size() int
	Select(ctx context.Context, orderID string) (pool.Identity, error)
	Deactivate(ctx context.Context, name string, reason error)
	RecordSpend(ctx context.Context, name string, units, unitPrice int64) error
	Do(ctx context.Context, name string, fn func(ctx context.Context, c gateway.Client) error) error
}

// Request — что и кому отправить.
type Request struct {
	OrderID   string
	GiftID    int64
	Target    string // юзернейм без @
	Quantity  int64
	UnitPrice int64 // звёзд за штуку
	Comment   string // уже очищенный; для пустого подпись по умолчанию
	Anonymous bool
}

// Result — итог успешной выдачи.
type Result struct {
	Identity string
	Sent     int64
}

// SendError — сессия вернула ошибку при отправке. Сессия уже отключена.
type SendError struct {
	Identity string
	Sent     int64 // сколько подарков ушло до ошибки
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("сессия %s: отправлено %d, ошибка: %v", e.Identity, e.Sent, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Executor выдаёт заказ целиком с одной сессии.
type Executor struct {
	capacity Capacity
	pause    time.Duration
}

// NewExecutor создаёт исполнителя. pause — пауза между отправками одного заказа.
func NewExecutor(capacity Capacity, pause time.Duration) *Executor {
	return &Executor{capacity: capacity, pause: pause}
}

// Deliver отправляет req.Quantity подарков.
//
// Сессия без нужного баланса отключается, и берётся следующая (не больше размера пула).
// Распроданный подарок (gateway.ErrSoldOut) прерывает выдачу сразу.
// Любая другая ошибка отправки отключает сессию и возвращает *SendError без перебора.
// Если сессии закончились, возвращается pool.ErrNoCapacity.
func (e *Executor) Deliver(ctx context.Context, req Request) (Result, error) {
	logger := log.WithFields(log.Fields{
		"order_id": req.OrderID,
		"gift_id":  req.GiftID,
		"target":   req.Target,
	})
	need := req.UnitPrice * req.Quantity
	text := req.Comment
	if text == "" {
		text = common.DefaultGiftText()
	}

	attempts := e.capacity.Size()
	for range attempts {
		id, err := e.capacity.Select(ctx, req.OrderID)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, fmt.Errorf("выдача заказа %s: %w", req.OrderID, pool.ErrNoCapacity)
		}

		if id.Balance < need {
			logger.WithFields(log.Fields{
				"identity":  id.Name,
				"required":  need,
				"available": id.Balance,
			}).Warn("Недостаточно звёзд на сессии")
			e.capacity.Deactivate(ctx, id.Name, fmt.Errorf("недостаточно звёзд: нужно %d, доступно %d", need, id.Balance))
			continue
		}

		return e.sendAll(ctx, id.Name, req, text)
	}

	logger.Error("Перебраны все сессии")
	return Result{}, fmt.Errorf("выдача заказа %s: %w", req.OrderID, pool.ErrNoCapacity)
}

func (e *Executor) sendAll(ctx context.Context, identity string, req Request, text string) (Result, error) {
	logger := log.WithFields(log.Fields{"order_id": req.OrderID, "identity": identity})
	res := Result{Identity: identity}
	send := gateway.SendRequest{
		ChatID:    req.Target,
		GiftID:    req.GiftID,
		IsPrivate: req.Anonymous,
		Text:      text,
	}

	for i := range req.Quantity {
		if i > 0 {
			if err := sleep(ctx, e.pause); err != nil {
				return res, &SendError{Identity: identity, Sent: res.Sent, Err: err}
			}
		}

		err := e.capacity.Do(ctx, identity, func(ctx context.Context, c gateway.Client) error {
			return c.SendGift(ctx, send)
		})
		if errors.Is(err, gateway.ErrSoldOut) {
			logger.WithError(err).Error("Подарок распродан")
			return res, err
		}
		if err != nil {
			logger.WithError(err).WithField("unit", i+1).Error("Ошибка отправки подарка")
			e.capacity.Deactivate(ctx, identity, err)
			return res, &SendError{Identity: identity, Sent: res.Sent, Err: err}
		}

		res.Sent++
		if err := e.capacity.RecordSpend(ctx, identity, 1, req.UnitPrice); err != nil {
			logger.WithError(err).Warn("Не удалось сохранить статистику сессии")
		}
		logger.Infof("Отправлен подарок %d/%d", i+1, req.Quantity)
	}
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
