package bot

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Sender — отправка сообщения в Telegram.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// OperatorNotifier рассылает HTML-уведомления всем операторам.
type OperatorNotifier struct {
	api       Sender
	operators func() []int64
}

// NewOperatorNotifier создаёт рассыльщик. operators вызывается на каждое уведомление,
// поэтому операторы, вошедшие после запуска, тоже получают сообщения.
func NewOperatorNotifier(api Sender, operators func() []int64) *OperatorNotifier {
	return &OperatorNotifier{api: api, operators: operators}
}

// NotifyOperators отправляет текст каждому оператору. Ошибки только логируются.
func (n *OperatorNotifier) NotifyOperators(ctx context.Context, text string) {
	for _, id := range n.operators() {
		params := tu.Message(tu.ID(id), text).
			WithParseMode(telego.ModeHTML).
			WithLinkPreviewOptions(&telego.LinkPreviewOptions{IsDisabled: true})
		if _, err := n.api.SendMessage(ctx, params); err != nil {
			log.WithError(err).WithField("operator_id", id).Warn("Не удалось уведомить оператора")
		}
	}
}
