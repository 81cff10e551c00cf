// Package admin реализует панель оператора с парольной аутентификацией.
// models.go описывает состояния диалога, попытки входа и данные кнопок.
package admin

import (
	"strings"
	"time"
)

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	UserID      int64
	AttemptTime time.Time
	Success     bool
}

// AdminState — состояние диалога с оператором (конечный автомат).
// Каждый шаг ждёт следующее сообщение оператора.
type AdminState struct {
	State     string    // Текущее состояние ("", "awaiting_password", "add_lot_id", ...)
	LotKey    string    // Лот, который редактируется
	Draft     *LotDraft // Черновик нового лота
	ExpiresAt time.Time // Когда состояние истекает (5 минут)
}

// LotDraft — лот, собираемый по шагам: ID на маркетплейсе → GIFT ID → GIFT NAME.
type LotDraft struct {
	MarketLotID int64
	Name        string
	GiftID      int64
}

// Возможные состояния диалога
const (
	StateNone             = ""                  // Нет активного состояния
	StateAwaitingPassword = "awaiting_password" // Ждём пароль
	StateAwaitingUpload   = "awaiting_upload"   // Ждём JSON-файл с лотами
	StateAddLotID         = "add_lot_id"        // Ждём ID лота на маркетплейсе
	StateAddGiftID        = "add_gift_id"       // Ждём GIFT ID нового лота
	StateAddGiftName      = "add_gift_name"     // Ждём GIFT NAME нового лота
	StateRenameLot        = "rename_lot"        // Ждём новое название лота
	StateChangeGiftID     = "change_gift_id"    // Ждём новый GIFT ID
	StateChangeGiftName   = "change_gift_name"  // Ждём новый GIFT NAME
)

// stateTTL — сколько живёт состояние диалога.
const stateTTL = 5 * time.Minute

// Действия inline-кнопок панели.
const (
	ActionSettings   = "settings"
	ActionLots       = "lots"
	ActionPage       = "page"
	ActionLot        = "lot"
	ActionRename     = "rename"
	ActionGiftID     = "gift_id"
	ActionGiftName   = "gift_name"
	ActionDelete     = "delete"
	ActionUpload     = "upload"
	ActionRefunds    = "refunds"
	ActionListings   = "listings"
	ActionAddLot     = "add_lot"
	ActionStatistics = "stats"
	ActionSessions   = "sessions"
)

// Callback — разобранные данные inline-кнопки: "действие" или "действие:аргумент".
type Callback struct {
	Action string
	Arg    string
}

// String кодирует кнопку обратно в callback data.
func (c Callback) String() string {
	if c.Arg == "" {
		return c.Action
	}
	return c.Action + ":" + c.Arg
}

// ParseCallback разбирает callback data. Пустая строка даёт пустой Callback.
func ParseCallback(data string) Callback {
	action, arg, _ := strings.Cut(strings.TrimSpace(data), ":")
	return Callback{Action: action, Arg: arg}
}
