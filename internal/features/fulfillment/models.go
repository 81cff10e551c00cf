// Package fulfillment ведёт диалог с покупателем от оплаты заказа до выдачи подарков.
// models.go описывает состояние диалога.
package fulfillment

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrGiftNotListed — подарка нет в каталоге Telegram, цену определить нельзя.
var ErrGiftNotListed = errors.New("подарок не найден в каталоге")

// Step — шаг диалога с покупателем.
type Step int

const (
	StepAwaitUsername Step = iota
	StepAwaitConfirm
)

func (s Step) String() string {
	switch s {
	case StepAwaitUsername:
		return "await_username"
	case StepAwaitConfirm:
		return "await_confirm"
	default:
		return "unknown"
	}
}

// Session — открытый диалог по одному заказу. У покупателя не больше одного диалога.
type Session struct {
	OrderID  string
	BuyerID  int64
	ChatID   string
	Step     Step
	GiftID   int64
	GiftName string

	UnitPrice int64 // звёзд за подарок
	Quantity  int64
	Paid      decimal.Decimal
	Profit    decimal.Decimal

	Identity    string // привязанная сессия пула, пусто если ещё не выбрана
	Handle      string // без @
	DisplayName string
	Comment     string
	Anonymous   bool

	CreatedAt    time.Time
	LastActivity time.Time
}

// Required — сколько звёзд нужно на весь заказ.
func (s *Session) Required() int64 {
	return s.UnitPrice * s.Quantity
}
