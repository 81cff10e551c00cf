// Package listings включает и выключает лоты категории подарков на площадке.
package listings

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/marketplace"
)

// Marketplace — операции площадки над лотами.
type Marketplace interface {
	ListCategoryLots(ctx context.Context, categoryID int64) ([]marketplace.Listing, error)
	GetLotFields(ctx context.Context, lotID int64) (marketplace.LotFields, error)
	SaveLotFields(ctx context.Context, fields marketplace.LotFields) error
}

// Service управляет лотами одной категории.
type Service struct {
	market     Marketplace
	categoryID int64
	pause      time.Duration
}

// NewService создаёт сервис. pause — пауза между чтением и сохранением лота.
func NewService(market Marketplace, categoryID int64, pause time.Duration) *Service {
	return &Service{market: market, categoryID: categoryID, pause: pause}
}

// IsActive сообщает, активен ли хотя бы один лот категории.
func (s *Service) IsActive(ctx context.Context) (bool, error) {
	lots, err := s.market.ListCategoryLots(ctx, s.categoryID)
	if err != nil {
		return false, err
	}
	for _, l := range lots {
		if l.Active {
			return true, nil
		}
	}
	return false, nil
}

// Toggle переключает все лоты категории в состояние, обратное текущему.
// Возвращает новое состояние.
func (s *Service) Toggle(ctx context.Context) (bool, error) {
	active, err := s.IsActive(ctx)
	if err != nil {
		return false, err
	}
	target := !active
	if _, err := s.SetActive(ctx, target); err != nil {
		return target, err
	}
	return target, nil
}

// SetActive переводит все лоты категории в состояние active.
// Ошибка отдельного лота не прерывает обход. Возвращает число изменённых лотов.
func (s *Service) SetActive(ctx context.Context, active bool) (int, error) {
	lots, err := s.market.ListCategoryLots(ctx, s.categoryID)
	if err != nil {
		return 0, fmt.Errorf("список лотов категории %d: %w", s.categoryID, err)
	}

	changed := 0
	for _, l := range lots {
		if err := s.setLot(ctx, l.ID, active); err != nil {
			if ctx.Err() != nil {
				return changed, ctx.Err()
			}
			log.WithField("lot_id", l.ID).WithError(err).Warn("Не удалось изменить лот")
			continue
		}
		changed++
	}

	log.WithFields(log.Fields{
		"category": s.categoryID,
		"active":   active,
		"changed":  changed,
	}).Info("Лоты категории обновлены")
	return changed, nil
}

func (s *Service) setLot(ctx context.Context, lotID int64, active bool) error {
	fields, err := s.market.GetLotFields(ctx, lotID)
	if err != nil {
		return err
	}

	if s.pause > 0 {
		t := time.NewTimer(s.pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	fields.Active = active
	return s.market.SaveLotFields(ctx, fields)
}
