// Package pool управляет сессиями Telegram-аккаунтов, с которых покупаются подарки.
// models.go описывает сессию и её статистику.
package pool

import (
	"errors"
	"time"
)

var (
	// ErrNoCapacity — нет ни одной активной сессии с положительным балансом.
	ErrNoCapacity = errors.New("нет активных сессий с балансом звёзд")
	// ErrUnknownIdentity — сессия с таким именем не зарегистрирована.
	ErrUnknownIdentity = errors.New("сессия не найдена")
)

// Identity — снимок состояния одной сессии.
type Identity struct {
	Name          string
	CredentialRef string
	Active        bool
	LastUsed      time.Time
	Balance       int64     // кэш удалённого баланса, в звёздах
	ProbedAt      time.Time // нулевое значение: баланс ещё не проверялся
	GiftsSent     int64
	TotalCost     int64 // потрачено звёзд
}

// Probed сообщает, известен ли баланс сессии.
func (i Identity) Probed() bool {
	return !i.ProbedAt.IsZero()
}

// eligible — сессия может участвовать в выборе.
// Непроверенные сессии допускаются: выбор всё равно проверит баланс.
func (i Identity) eligible() bool {
	return i.Active && (!i.Probed() || i.Balance > 0)
}

// Stats — статистика сессии в файле session_stats.json.
type Stats struct {
	GiftsSent int64   `json:"gifts_sent"`
	TotalCost float64 `json:"total_cost"`
}
