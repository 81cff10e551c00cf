// Package gateway — клиент шлюза Telegram-сессий, через которые покупаются подарки.
// models.go описывает структуры запросов и ответов шлюза.
package gateway

import (
	"errors"
	"fmt"
)

// Типы чатов, которые возвращает шлюз при разрешении юзернейма.
const (
	PeerPrivate    = "private"
	PeerChannel    = "channel"
	PeerGroup      = "group"
	PeerSupergroup = "supergroup"
	PeerBot        = "bot"
)

// codeSoldOut — код ошибки Telegram, когда лимит подарка исчерпан.
const codeSoldOut = "STARGIFT_USAGE_LIMITED"

// ErrSoldOut — подарок распродан, повторять бессмысленно.
var ErrSoldOut = errors.New("подарок распродан")

// Gift — позиция каталога подарков.
type Gift struct {
	ID    int64 `json:"id"`
	Price int64 `json:"price"` // цена в звёздах
}

// Peer — результат разрешения @username.
type Peer struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
}

// AcceptsGifts сообщает, можно ли отправить подарок этому чату.
// Подарки принимают только пользователи и каналы.
func (p Peer) AcceptsGifts() bool {
	return p.Kind == PeerPrivate || p.Kind == PeerChannel
}

// SendRequest — параметры отправки одного подарка.
type SendRequest struct {
	ChatID    string `json:"chat_id"`
	GiftID    int64  `json:"gift_id"`
	IsPrivate bool   `json:"is_private"`
	Text      string `json:"text"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// APIError — ошибка, которую вернул шлюз.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway status %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("gateway status %d: %s: %s", e.Status, e.Code, e.Message)
}
