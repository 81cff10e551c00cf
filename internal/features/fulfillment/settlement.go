package fulfillment

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/common"
	"serotonyl.ru/autogifts/internal/features/delivery"
	"serotonyl.ru/autogifts/internal/features/pool"
	"serotonyl.ru/autogifts/internal/gateway"
)

// settle выполняет заказ после "+" покупателя. Вызывается под s.mu.
func (s *Service) settle(ctx context.Context, sess *Session) {
	logger := log.WithFields(log.Fields{"order_id": sess.OrderID, "required": sess.Required()})

	id, ok := s.verifyCapacity(ctx, sess)
	if !ok {
		logger.Warn("Недостаточно звёзд для заказа")
		s.refundOrAlert(ctx, sess)
		return
	}
	sess.Identity = id.Name

	res, err := s.deps.Deliverer.Deliver(ctx, delivery.Request{
		OrderID:   sess.OrderID,
		GiftID:    sess.GiftID,
		Target:    sess.Handle,
		Quantity:  sess.Quantity,
		UnitPrice: sess.UnitPrice,
		Comment:   sess.Comment,
		Anonymous: sess.Anonymous,
	})

	var sendErr *delivery.SendError
	switch {
	case err == nil:
		s.complete(ctx, sess, res.Identity)

	case errors.Is(err, gateway.ErrSoldOut):
		logger.WithError(err).Error("Подарок распродан")
		s.drop(sess)
		s.notify(ctx, fmt.Sprintf("❌ Подарок распродан для заказа #%s: %s", sess.OrderID, common.EscapeHTML(err.Error())))
		s.reply(ctx, sess.ChatID, msgSoldOut)

	case errors.Is(err, pool.ErrNoCapacity):
		logger.WithError(err).Error("Нет сессий для отправки")
		s.reply(ctx, sess.ChatID, msgNoCapacity)
		s.notify(ctx, fmt.Sprintf("⚠️ Нет активных сессий для обработки заказа #%s", sess.OrderID))
		s.restart(ctx, sess)

	default:
		identity, sent := sess.Identity, int64(0)
		if errors.As(err, &sendErr) {
			identity, sent = sendErr.Identity, sendErr.Sent
		}
		logger.WithFields(log.Fields{"identity": identity, "sent": sent}).WithError(err).Error("Ошибка выдачи заказа")
		s.reply(ctx, sess.ChatID, orderErrorText(sess.OrderID, err))
		s.notify(ctx, fmt.Sprintf("❌ Ошибка при обработке заказа #%s с сессией %s (отправлено %d из %d): %s",
			sess.OrderID, identity, sent, sess.Quantity, common.EscapeHTML(err.Error())))
		s.restart(ctx, sess)
	}
}

// verifyCapacity перепроверяет баланс привязанной сессии.
// Если её не хватает, выбирает другую. false, если звёзд на заказ нет нигде.
func (s *Service) verifyCapacity(ctx context.Context, sess *Session) (pool.Identity, bool) {
	need := sess.Required()
	logger := log.WithField("order_id", sess.OrderID)

	if sess.Identity != "" {
		id, err := s.deps.Pool.Probe(ctx, sess.Identity)
		if err == nil && id.Active && id.Balance >= need {
			return id, true
		}
		logger.WithField("identity", sess.Identity).WithError(err).Warn("Привязанная сессия не подходит, выбираем другую")
	}

	id, err := s.deps.Pool.Select(ctx, sess.OrderID)
	if err != nil {
		logger.WithError(err).Error("Нет активных сессий")
		return pool.Identity{}, false
	}
	sess.Identity = id.Name
	if id.Balance < need {
		logger.WithFields(log.Fields{"identity": id.Name, "available": id.Balance}).Warn("Баланса сессии не хватает")
		return id, false
	}
	return id, true
}

// refundOrAlert закрывает заказ без выдачи: автовозврат или просьба к оператору.
// Затем снимает лоты категории с продажи, если они ещё активны.
func (s *Service) refundOrAlert(ctx context.Context, sess *Session) {
	s.drop(sess)
	url := s.deps.Market.OrderURL(sess.OrderID)
	logger := log.WithField("order_id", sess.OrderID)

	refunded := false
	if s.deps.Catalog.AutoRefunds() {
		if err := s.deps.Market.Refund(ctx, sess.OrderID); err != nil {
			logger.WithError(err).Error("Автовозврат не прошёл")
			s.notify(ctx, refundFailedNotice(sess.OrderID, url, err))
		} else {
			refunded = true
			logger.Info("Автоматический возврат средств")
			s.reply(ctx, sess.ChatID, msgAutoRefund)
		}
	}
	if !refunded {
		s.reply(ctx, sess.ChatID, msgManualRefund)
		s.notify(ctx, manualRefundNotice(sess.OrderID, url))
	}

	s.deactivateListings(ctx, sess.OrderID)
}

func (s *Service) deactivateListings(ctx context.Context, orderID string) {
	logger := log.WithField("order_id", orderID)

	active, err := s.deps.Listings.IsActive(ctx)
	if err != nil {
		logger.WithError(err).Warn("Не удалось проверить состояние лотов")
		return
	}
	if !active {
		logger.Debug("Лоты уже деактивированы")
		return
	}
	if _, err := s.deps.Listings.SetActive(ctx, false); err != nil {
		logger.WithError(err).Error("Не удалось деактивировать лоты")
		return
	}
	if err := s.deps.Catalog.SetActiveLots(ctx, false); err != nil {
		logger.WithError(err).Warn("Не удалось сохранить состояние лотов")
	}
	s.notify(ctx, noticeLotsDeactivated)
	logger.Info("Лоты деактивированы")
}

func (s *Service) complete(ctx context.Context, sess *Session, identity string) {
	s.drop(sess)
	url := s.deps.Market.OrderURL(sess.OrderID)

	log.WithFields(log.Fields{
		"order_id": sess.OrderID,
		"identity": identity,
		"quantity": sess.Quantity,
	}).Info("Заказ выполнен")
	s.reply(ctx, sess.ChatID, successText(sess.Anonymous, url))
	s.notify(ctx, completedNotice(sess, url, identity, s.now(), s.opts.Location))
}

// restart возвращает диалог к вводу юзернейма.
func (s *Service) restart(ctx context.Context, sess *Session) {
	sess.Step = StepAwaitUsername
	s.reply(ctx, sess.ChatID, msgAskAgain)
}

// drop закрывает диалог, если он всё ещё принадлежит этому заказу.
func (s *Service) drop(sess *Session) {
	if cur, ok := s.sessions[sess.BuyerID]; ok && cur == sess {
		delete(s.sessions, sess.BuyerID)
	}
}
