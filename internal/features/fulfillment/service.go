// Package fulfillment — service.go принимает события площадки и двигает диалоги по шагам.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/common"
	"serotonyl.ru/autogifts/internal/features/catalog"
	"serotonyl.ru/autogifts/internal/features/delivery"
	"serotonyl.ru/autogifts/internal/features/ledger"
	"serotonyl.ru/autogifts/internal/features/pool"
	"serotonyl.ru/autogifts/internal/gateway"
	"serotonyl.ru/autogifts/internal/marketplace"
)

// handlePattern — @username из букв, цифр и подчёркиваний.
var handlePattern = regexp.MustCompile(`^@(\w+)$`)

// Catalog — настройки лотов.
type Catalog interface {
	Resolve(description string) (catalog.LotDefinition, bool)
	AutoRefunds() bool
	SetActiveLots(ctx context.Context, active bool) error
}

// Pool — сессии, с которых покупаются подарки.
type Pool interface {
	Select(ctx context.Context, orderID string) (pool.Identity, error)
	Reacquire(ctx context.Context, bound, orderID string) (pool.Identity, error)
	Probe(ctx context.Context, name string) (pool.Identity, error)
	Do(ctx context.Context, name string, fn func(ctx context.Context, c gateway.Client) error) error
}

// Deliverer отправляет подарки.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) (delivery.Result, error)
}

// Ledger — журнал заказов.
type Ledger interface {
	Record(ctx context.Context, orderID string, amountPaid decimal.Decimal, description string, profit decimal.Decimal) error
}

// Listings — лоты категории на площадке.
type Listings interface {
	IsActive(ctx context.Context) (bool, error)
	SetActive(ctx context.Context, active bool) (int, error)
}

// Market — чат с покупателем и возвраты.
type Market interface {
	SendMessage(ctx context.Context, chatID, text string) error
	Refund(ctx context.Context, orderID string) error
	OrderURL(orderID string) string
	SelfID() int64
}

// Notifier отправляет уведомления операторам (HTML).
type Notifier interface {
	NotifyOperators(ctx context.Context, text string)
}

// Deps — внешние зависимости сервиса.
type Deps struct {
	Catalog   Catalog
	Pool      Pool
	Deliverer Deliverer
	Ledger    Ledger
	Listings  Listings
	Market    Market
	Notifier  Notifier
}

// Options — настройки сервиса.
type Options struct {
	Pricing     ledger.Pricing
	IdleTimeout time.Duration  // при 0 диалоги не закрываются по бездействию
	Location    *time.Location // для времени в уведомлениях
	Running     bool           // начальное состояние автовыдачи
}

// Service хранит открытые диалоги покупателей.
//
// Каждое событие обрабатывается целиком под mu, поэтому два события
// никогда не меняют диалоги одновременно.
type Service struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	running atomic.Bool
	deps    Deps
	opts    Options
	now     func() time.Time
}

// NewService создаёт сервис выдачи.
func NewService(deps Deps, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Service{
		sessions: make(map[int64]*Session),
		deps:     deps,
		opts:     opts,
		now:      time.Now,
	}
	s.running.Store(opts.Running)
	return s
}

// Start включает автовыдачу. false, если уже была включена.
func (s *Service) Start() bool {
	ok := s.running.CompareAndSwap(false, true)
	if ok {
		log.Info("Автовыдача включена")
	}
	return ok
}

// Stop выключает автовыдачу. false, если уже была выключена.
// Открытые диалоги сохраняются до следующего включения.
func (s *Service) Stop() bool {
	ok := s.running.CompareAndSwap(true, false)
	if ok {
		log.Info("Автовыдача выключена")
	}
	return ok
}

// Running сообщает, включена ли автовыдача.
func (s *Service) Running() bool { return s.running.Load() }

// Snapshot возвращает копии открытых диалогов.
func (s *Service) Snapshot() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out
}

// HandleOrder открывает диалог по новому заказу.
// Заказы не на подарки пропускаются без ошибки.
func (s *Service) HandleOrder(ctx context.Context, o marketplace.Order) error {
	logger := log.WithField("order_id", o.ID)
	if !s.Running() {
		logger.Debug("Автовыдача выключена, заказ пропущен")
		return nil
	}

	lot, ok := s.deps.Catalog.Resolve(o.Description)
	if !ok {
		logger.WithField("description", o.Description).Info("Лот не найден, заказ пропущен")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	price, err := s.unitPrice(ctx, o.ID, lot.GiftID)
	if err != nil {
		s.reportPriceError(ctx, o, lot.GiftID, err)
		return fmt.Errorf("стоимость подарка %d для заказа %s: %w", lot.GiftID, o.ID, err)
	}

	profit := s.opts.Pricing.Profit(o.Price, o.Amount, price)
	if err := s.deps.Ledger.Record(ctx, o.ID, o.Price, o.Description, profit); err != nil {
		logger.WithError(err).Error("Не удалось записать заказ в журнал")
	}

	now := s.now()
	if prev, ok := s.sessions[o.BuyerID]; ok {
		logger.WithField("previous_order_id", prev.OrderID).Warn("Новый заказ заменил открытый диалог покупателя")
	}
	s.sessions[o.BuyerID] = &Session{
		OrderID:      o.ID,
		BuyerID:      o.BuyerID,
		ChatID:       o.ChatID,
		Step:         StepAwaitUsername,
		GiftID:       lot.GiftID,
		GiftName:     lot.GiftName,
		UnitPrice:    price,
		Quantity:     o.Amount,
		Paid:         o.Price,
		Profit:       profit,
		Anonymous:    true,
		CreatedAt:    now,
		LastActivity: now,
	}

	logger.WithFields(log.Fields{
		"gift_id":  lot.GiftID,
		"quantity": o.Amount,
		"price":    price,
		"profit":   profit.String(),
	}).Info("🛍 Заказ принят, ждём юзернейм")
	s.reply(ctx, o.ChatID, orderAcceptedText(o.ID, o.Amount, lot.GiftName))
	return nil
}

// HandleMessage продвигает диалог покупателя.
// Сообщения без открытого диалога и собственные сообщения продавца игнорируются.
func (s *Service) HandleMessage(ctx context.Context, m marketplace.Message) error {
	if !s.Running() {
		log.WithField("author_id", m.AuthorID).Debug("Автовыдача выключена, сообщение пропущено")
		return nil
	}
	if m.AuthorID == s.deps.Market.SelfID() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[m.AuthorID]
	if !ok {
		log.WithField("author_id", m.AuthorID).Debug("Нет открытого диалога")
		return nil
	}
	sess.LastActivity = s.now()
	if m.ChatID != "" {
		sess.ChatID = m.ChatID
	}
	text := strings.TrimSpace(m.Text)

	switch sess.Step {
	case StepAwaitUsername:
		s.onUsername(ctx, sess, text)
	case StepAwaitConfirm:
		s.onConfirm(ctx, sess, text)
	}
	return nil
}

// Sweep закрывает диалоги, в которых покупатель молчит дольше IdleTimeout.
// Возвращает число закрытых диалогов.
func (s *Service) Sweep(ctx context.Context, now time.Time) int {
	if s.opts.IdleTimeout <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for buyer, sess := range s.sessions {
		if now.Sub(sess.LastActivity) < s.opts.IdleTimeout {
			continue
		}
		delete(s.sessions, buyer)
		closed++
		log.WithFields(log.Fields{
			"order_id": sess.OrderID,
			"buyer_id": buyer,
			"step":     sess.Step.String(),
		}).Warn("Диалог закрыт по бездействию")

		url := s.deps.Market.OrderURL(sess.OrderID)
		s.reply(ctx, sess.ChatID, idleExpiredText(sess.OrderID))
		s.notify(ctx, idleExpiredNotice(sess.OrderID, url))
	}
	return closed
}

// --- шаги диалога (вызываются под s.mu) ---

func (s *Service) onUsername(ctx context.Context, sess *Session, text string) {
	logger := log.WithField("order_id", sess.OrderID)

	match := handlePattern.FindStringSubmatch(text)
	if match == nil {
		logger.WithField("text", text).Warn("Неверный формат юзернейма")
		s.reply(ctx, sess.ChatID, msgInvalidHandle)
		return
	}
	handle := match[1]

	id, err := s.deps.Pool.Reacquire(ctx, sess.Identity, sess.OrderID)
	if err != nil {
		logger.WithError(err).Error("Нет сессий для проверки юзернейма")
		s.reply(ctx, sess.ChatID, msgNoSessions)
		s.notify(ctx, fmt.Sprintf("⚠️ Нет активных сессий для обработки заказа #%s", sess.OrderID))
		return
	}
	sess.Identity = id.Name

	var peer gateway.Peer
	err = s.deps.Pool.Do(ctx, id.Name, func(ctx context.Context, c gateway.Client) error {
		var err error
		peer, err = c.ResolveHandle(ctx, handle)
		return err
	})
	if err != nil || !peer.AcceptsGifts() {
		logger.WithFields(log.Fields{"handle": handle, "kind": peer.Kind}).WithError(err).Warn("Юзернейм не подходит")
		s.reply(ctx, sess.ChatID, msgUnresolved)
		return
	}

	sess.Handle = handle
	sess.DisplayName = common.CleanDisplayName(peer.DisplayName)
	sess.Step = StepAwaitConfirm
	logger.WithField("handle", handle).Info("Юзернейм принят, ждём подтверждения")
	s.reply(ctx, sess.ChatID, summaryText(sess))
}

func (s *Service) onConfirm(ctx context.Context, sess *Session, text string) {
	logger := log.WithField("order_id", sess.OrderID)

	switch {
	case text == "-":
		sess.Step = StepAwaitUsername
		sess.Comment = ""
		sess.Anonymous = true
		logger.Debug("Покупатель меняет данные")
		s.reply(ctx, sess.ChatID, msgAskAgain)
	case text == "+":
		s.settle(ctx, sess)
	case common.RuneLen(text) > common.MaxCommentLength:
		logger.WithField("length", common.RuneLen(text)).Warn("Комментарий слишком длинный")
		s.reply(ctx, sess.ChatID, msgCommentLong)
	default:
		sess.Comment = common.SanitizeComment(text)
		sess.Anonymous = false
		logger.Debug("Комментарий обновлён")
		s.reply(ctx, sess.ChatID, summaryText(sess))
	}
}

// unitPrice ищет цену подарка в каталоге сессии с балансом.
func (s *Service) unitPrice(ctx context.Context, orderID string, giftID int64) (int64, error) {
	id, err := s.deps.Pool.Select(ctx, orderID)
	if err != nil {
		return 0, err
	}

	var price int64
	err = s.deps.Pool.Do(ctx, id.Name, func(ctx context.Context, c gateway.Client) error {
		gifts, err := c.Catalog(ctx)
		if err != nil {
			return err
		}
		for _, g := range gifts {
			if g.ID == giftID {
				price = g.Price
				return nil
			}
		}
		return ErrGiftNotListed
	})
	return price, err
}

func (s *Service) reportPriceError(ctx context.Context, o marketplace.Order, giftID int64, err error) {
	if errors.Is(err, ErrGiftNotListed) || errors.Is(err, pool.ErrNoCapacity) {
		s.reply(ctx, o.ChatID, priceUnknownText(o.ID))
		s.notify(ctx, fmt.Sprintf("❌ Ошибка при получении стоимости подарка для заказа #%s: gift_id %d", o.ID, giftID))
		return
	}
	s.reply(ctx, o.ChatID, fmt.Sprintf("❌ Ошибка при обработке заказа #%s. Свяжитесь с продавцом.\nПодробности: %v", o.ID, err))
	s.notify(ctx, fmt.Sprintf("❌ Ошибка при получении стоимости подарка для заказа #%s: %s", o.ID, common.EscapeHTML(err.Error())))
}

func (s *Service) reply(ctx context.Context, chatID, text string) {
	if err := s.deps.Market.SendMessage(ctx, chatID, text); err != nil {
		log.WithField("chat_id", chatID).WithError(err).Error("Не удалось отправить сообщение покупателю")
	}
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyOperators(ctx, text)
	}
}
