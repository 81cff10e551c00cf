// Package pool — service.go выбирает сессию для каждой покупки:
// по кругу среди сессий с положительным балансом, с перепроверкой баланса перед выдачей.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/common"
	"serotonyl.ru/autogifts/internal/gateway"
)

// Notifier отправляет уведомления операторам.
type Notifier interface {
	NotifyOperators(ctx context.Context, text string)
}

// Dialer создаёт клиента для сессии. Клиент создаётся один раз и переиспользуется.
type Dialer func(credentialRef string) gateway.Client

// Service владеет списком сессий.
//
// Порядок блокировок: mu → connMu сессии. Колбэк Do не должен вызывать методы Service.
type Service struct {
	mu       sync.Mutex
	entries  []*entry
	cursor   int
	repo     *Repository
	notifier Notifier
	now      func() time.Time
}

type entry struct {
	Identity
	client gateway.Client
	connMu sync.Mutex // держится на время удалённого вызова
}

// NewService создаёт пул. Сессии получают имена stars_1, stars_2, ... в порядке refs.
func NewService(refs []string, dial Dialer, repo *Repository, notifier Notifier) *Service {
	entries := make([]*entry, 0, len(refs))
	for i, ref := range refs {
		entries = append(entries, &entry{
			Identity: Identity{
				Name:          fmt.Sprintf("stars_%d", i+1),
				CredentialRef: ref,
				Active:        true,
			},
			client: dial(ref),
		})
	}
	log.WithField("count", len(entries)).Info("Загружены сессии")
	return &Service{
		entries:  entries,
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// LoadStats подтягивает сохранённую статистику. Если документа нет, создаёт его.
func (s *Service) LoadStats(ctx context.Context) error {
	stats, err := s.repo.LoadStats(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(stats) == 0 {
		return s.saveStatsLocked(ctx)
	}
	for _, e := range s.entries {
		if st, ok := stats[e.Name]; ok {
			e.GiftsSent = st.GiftsSent
			e.TotalCost = int64(st.TotalCost)
		}
	}
	return nil
}

// Size возвращает количество зарегистрированных сессий.
func (s *Service) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot возвращает копию состояния всех сессий.
func (s *Service) Snapshot() []Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Identity, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Identity)
	}
	return out
}

// ActiveCount возвращает число активных сессий.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Active {
			n++
		}
	}
	return n
}

// Next возвращает имя сессии, с которой начнётся следующий выбор.
func (s *Service) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eligible := s.eligibleLocked()
	if len(eligible) == 0 {
		return "", false
	}
	return eligible[s.cursor%len(eligible)].Name, true
}

// Select выбирает сессию для заказа.
// Каждый кандидат перепроверяется: ошибка или нулевой баланс отключают сессию.
func (s *Service) Select(ctx context.Context, orderID string) (Identity, error) {
	var notices []string
	defer func() { s.flush(ctx, notices) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := s.eligibleLocked()
	if len(eligible) == 0 {
		log.WithField("order_id", orderID).Error("Нет активных сессий с балансом")
		return Identity{}, ErrNoCapacity
	}

	start := s.cursor % len(eligible)
	for i := range eligible {
		idx := (start + i) % len(eligible)
		e := eligible[idx]

		balance, err := s.probeLocked(ctx, e)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Identity{}, ctxErr
		}
		if err != nil || balance <= 0 {
			notices = append(notices, s.disableLocked(e, err)...)
			continue
		}

		s.cursor = (idx + 1) % len(eligible)
		e.LastUsed = s.now()
		log.WithFields(log.Fields{
			"order_id": orderID,
			"identity": e.Name,
			"balance":  balance,
		}).Info("Выбрана сессия")
		return e.Identity, nil
	}

	log.WithField("order_id", orderID).Error("Полный круг без сессий с балансом")
	return Identity{}, ErrNoCapacity
}

// Reacquire возвращает привязанную сессию, если она ещё активна, иначе выбирает новую.
func (s *Service) Reacquire(ctx context.Context, bound, orderID string) (Identity, error) {
	if bound != "" {
		s.mu.Lock()
		e := s.findLocked(bound)
		if e != nil && e.Active {
			id := e.Identity
			s.mu.Unlock()
			return id, nil
		}
		s.mu.Unlock()
	}
	return s.Select(ctx, orderID)
}

// Probe перепроверяет баланс одной сессии.
// Положительный баланс возвращает отключённую сессию в работу.
func (s *Service) Probe(ctx context.Context, name string) (Identity, error) {
	var notices []string
	defer func() { s.flush(ctx, notices) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(name)
	if e == nil {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnknownIdentity, name)
	}
	balance, err := s.probeLocked(ctx, e)
	switch {
	case err != nil || balance <= 0:
		notices = append(notices, s.disableLocked(e, err)...)
	case !e.Active:
		notices = append(notices, s.enableLocked(e)...)
	}
	if err != nil {
		return e.Identity, err
	}
	return e.Identity, nil
}

// RefreshAll проверяет баланс каждой сессии ровно один раз, независимо от флага active.
// Уведомления отправляются только при смене состояния.
func (s *Service) RefreshAll(ctx context.Context) []Identity {
	var notices []string
	defer func() { s.flush(ctx, notices) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Identity, 0, len(s.entries))
	for _, e := range s.entries {
		balance, err := s.probeLocked(ctx, e)
		switch {
		case err != nil || balance <= 0:
			notices = append(notices, s.disableLocked(e, err)...)
		case !e.Active:
			notices = append(notices, s.enableLocked(e)...)
		}
		out = append(out, e.Identity)
	}
	return out
}

// RecordSpend учитывает отправленные подарки и сохраняет статистику.
func (s *Service) RecordSpend(ctx context.Context, name string, units, unitPrice int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(name)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, name)
	}
	e.GiftsSent += units
	e.TotalCost += units * unitPrice
	e.Balance = max(e.Balance-units*unitPrice, 0)
	return s.saveStatsLocked(ctx)
}

// Deactivate отключает сессию и уведомляет операторов.
func (s *Service) Deactivate(ctx context.Context, name string, reason error) {
	var notices []string
	defer func() { s.flush(ctx, notices) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.findLocked(name); e != nil {
		notices = append(notices, s.disableLocked(e, reason)...)
	}
}

// Do выполняет fn с клиентом сессии. Соединение сессии занято до выхода из fn.
func (s *Service) Do(ctx context.Context, name string, fn func(ctx context.Context, c gateway.Client) error) error {
	s.mu.Lock()
	e := s.findLocked(name)
	s.mu.Unlock()
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownIdentity, name)
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()
	return fn(ctx, e.client)
}

// --- внутренние функции (вызываются под s.mu) ---

func (s *Service) eligibleLocked() []*entry {
	var out []*entry
	for _, e := range s.entries {
		if e.eligible() {
			out = append(out, e)
		}
	}
	return out
}

func (s *Service) findLocked(name string) *entry {
	for _, e := range s.entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func (s *Service) probeLocked(ctx context.Context, e *entry) (int64, error) {
	e.connMu.Lock()
	balance, err := e.client.Balance(ctx)
	e.connMu.Unlock()

	logger := log.WithField("identity", e.Name)
	if err != nil {
		logger.WithError(err).Error("Ошибка проверки баланса")
		return 0, err
	}
	e.Balance = balance
	e.ProbedAt = s.now()
	logger.WithField("balance", balance).Debug("Баланс сессии")
	return balance, nil
}

func (s *Service) disableLocked(e *entry, reason error) []string {
	if !e.Active {
		return nil
	}
	e.Active = false
	logger := log.WithField("identity", e.Name)
	if reason != nil {
		logger.WithError(reason).Warn("Сессия отключена")
		return []string{fmt.Sprintf("⚠️ Сессия %s отключена: %s", e.Name, common.EscapeHTML(reason.Error()))}
	}
	logger.Warn("Сессия отключена: нулевой баланс")
	return []string{fmt.Sprintf("⚠️ Сессия %s имеет нулевой баланс звёзд! Пожалуйста, пополните баланс.", e.Name)}
}

func (s *Service) enableLocked(e *entry) []string {
	e.Active = true
	log.WithFields(log.Fields{"identity": e.Name, "balance": e.Balance}).Info("Сессия восстановлена")
	return []string{fmt.Sprintf("✅ Сессия %s восстановлена с балансом %d звёзд", e.Name, e.Balance)}
}

func (s *Service) saveStatsLocked(ctx context.Context) error {
	stats := make(map[string]Stats, len(s.entries))
	for _, e := range s.entries {
		stats[e.Name] = Stats{GiftsSent: e.GiftsSent, TotalCost: float64(e.TotalCost)}
	}
	return s.repo.SaveStats(ctx, stats)
}

// flush отправляет накопленные уведомления. Вызывается после снятия s.mu.
func (s *Service) flush(ctx context.Context, notices []string) {
	if s.notifier == nil {
		return
	}
	for _, text := range notices {
		s.notifier.NotifyOperators(ctx, text)
	}
}
