// Package marketplace — клиент API площадки и приёмник её событий.
// models.go описывает заказы, сообщения и лоты.
package marketplace

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// summaryField — поле формы лота с русским названием.
const summaryField = "fields[summary][ru]"

// Order — событие «новый заказ».
type Order struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`  // оплачено покупателем, ₽
	Amount      int64           `json:"amount"` // количество
	BuyerID     int64           `json:"buyer_id"`
	ChatID      string          `json:"chat_id"`
}

// Message — событие «новое сообщение в чате».
type Message struct {
	AuthorID int64  `json:"author_id"`
	ChatID   string `json:"chat_id"`
	Text     string `json:"text"`
}

// Listing — лот продавца в категории.
type Listing struct {
	ID     int64 `json:"id"`
	Active bool  `json:"active"`
}

// LotFields — форма редактирования лота.
type LotFields struct {
	LotID  int64             `json:"lot_id"`
	Active bool              `json:"active"`
	Fields map[string]string `json:"fields"`
}

// Summary возвращает название лота или "Без названия".
func (f LotFields) Summary() string {
	if s := f.Fields[summaryField]; s != "" {
		return s
	}
	return "Без названия"
}

// APIError — ошибка, которую вернула площадка.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace status %d: %s", e.Status, e.Message)
}
