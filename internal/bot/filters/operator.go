// Package filters решает, какие апдейты бот вообще обрабатывает.
package filters

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// Operators — проверка прав оператора.
type Operators interface {
	IsOperator(userID int64) bool
}

// OperatorFilter пропускает только личные сообщения.
// Панель и команды управления доступны операторам, /login доступен всем в личке.
type OperatorFilter struct {
	operators Operators
}

func NewOperatorFilter(operators Operators) *OperatorFilter {
	return &OperatorFilter{operators: operators}
}

// CheckPrivate — сообщение пришло в личку от живого пользователя.
func (f *OperatorFilter) CheckPrivate(message *telego.Message) bool {
	if message == nil || message.From == nil {
		log.WithField("component", "OperatorFilter").Debug("nil message/from")
		return false
	}
	if message.Chat.Type != telego.ChatTypePrivate {
		log.WithFields(log.Fields{
			"component": "OperatorFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("deny: not private")
		return false
	}
	return true
}

// CheckAccess — личное сообщение от оператора.
func (f *OperatorFilter) CheckAccess(message *telego.Message) bool {
	if !f.CheckPrivate(message) {
		return false
	}
	if !f.operators.IsOperator(message.From.ID) {
		log.WithFields(log.Fields{
			"component": "OperatorFilter",
			"user_id":   message.From.ID,
		}).Info("deny: not an operator")
		return false
	}
	return true
}
