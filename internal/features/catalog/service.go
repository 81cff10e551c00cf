// Package catalog — service.go: поиск подарка по описанию заказа и редактирование лотов.
package catalog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// LotsPerPage — количество лотов на одной странице админ-панели.
const LotsPerPage = 10

// keyFragment вытаскивает ключ лота из названия: "🔮<ключ> ... |".
var keyFragment = regexp.MustCompile(`🔮([^\s]+)[^|]*\|`)

// Service хранит настройки в памяти и сохраняет их при каждом изменении.
type Service struct {
	repo    *Repository
	markers []string

	mu       sync.RWMutex
	settings Settings
}

// NewService создаёт сервис. markers — подстроки, обязательные в описании заказа.
func NewService(repo *Repository, markers []string) *Service {
	return &Service{
		repo:     repo,
		markers:  markers,
		settings: DefaultSettings(),
	}
}

// Load читает настройки из хранилища.
func (s *Service) Load(ctx context.Context) error {
	settings, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	log.WithField("lots", len(settings.Lots)).Info("Настройки лотов загружены")
	return nil
}

// Settings возвращает копию текущих настроек.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// AutoRefunds сообщает, включены ли автовозвраты.
func (s *Service) AutoRefunds() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.AutoRefunds
}

// Resolve находит лот по описанию заказа. Первый подходящий лот выигрывает.
// Описание без любого из маркеров не подходит ни к одному лоту.
func (s *Service) Resolve(description string) (LotDefinition, bool) {
	for _, marker := range s.markers {
		if !strings.Contains(description, marker) {
			return LotDefinition{}, false
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lot := range s.settings.Lots {
		m := keyFragment.FindStringSubmatch(lot.Name)
		if m == nil {
			continue
		}
		if strings.Contains(description, m[1]) {
			log.WithFields(log.Fields{
				"lot":     lot.Key,
				"key":     m[1],
				"gift_id": lot.GiftID,
			}).Debug("Лот найден")
			return lot, true
		}
	}
	return LotDefinition{}, false
}

// Lot возвращает лот по ключу.
func (s *Service) Lot(key string) (LotDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.settings.Lots.index(key)
	if i < 0 {
		return LotDefinition{}, fmt.Errorf("%w: %s", ErrLotNotFound, key)
	}
	return s.settings.Lots[i], nil
}

// Page возвращает страницу списка лотов (нумерация с 0).
func (s *Service) Page(number int) Page {
	s.mu.RLock()
	defer s.mu.RUnlock()

	number = max(number, 0)
	lots := s.settings.Lots
	start := min(number*LotsPerPage, len(lots))
	end := min(start+LotsPerPage, len(lots))
	return Page{
		Lots:    append([]LotDefinition(nil), lots[start:end]...),
		Number:  number,
		HasPrev: number > 0,
		HasNext: end < len(lots),
	}
}

// Add добавляет лот со следующим свободным ключом lot_<n>.
func (s *Service) Add(ctx context.Context, name string, giftID int64, giftName string) (LotDefinition, error) {
	var added LotDefinition
	err := s.update(ctx, func(st *Settings) error {
		n := len(st.Lots) + 1
		for st.Lots.index(lotKey(n)) >= 0 {
			n++
		}
		added = LotDefinition{Key: lotKey(n), Name: name, GiftID: giftID, GiftName: giftName}
		st.Lots = append(st.Lots, added)
		return nil
	})
	return added, err
}

// Rename меняет название лота.
func (s *Service) Rename(ctx context.Context, key, name string) error {
	return s.editLot(ctx, key, func(l *LotDefinition) { l.Name = name })
}

// SetGiftID меняет подарок лота.
func (s *Service) SetGiftID(ctx context.Context, key string, giftID int64) error {
	return s.editLot(ctx, key, func(l *LotDefinition) { l.GiftID = giftID })
}

// SetGiftName меняет название подарка лота.
func (s *Service) SetGiftName(ctx context.Context, key, giftName string) error {
	return s.editLot(ctx, key, func(l *LotDefinition) { l.GiftName = giftName })
}

// Delete удаляет лот и переиндексирует оставшиеся, чтобы ключи шли подряд.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(st *Settings) error {
		i := st.Lots.index(key)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrLotNotFound, key)
		}
		st.Lots = Reindex(append(st.Lots[:i], st.Lots[i+1:]...))
		log.WithField("lot", key).Info("Лот удалён, лоты переиндексированы")
		return nil
	})
}

// ToggleAutoRefunds переключает автовозвраты и возвращает новое значение.
func (s *Service) ToggleAutoRefunds(ctx context.Context) (bool, error) {
	var enabled bool
	err := s.update(ctx, func(st *Settings) error {
		st.AutoRefunds = !st.AutoRefunds
		enabled = st.AutoRefunds
		return nil
	})
	return enabled, err
}

// SetActiveLots запоминает, активны ли лоты на маркетплейсе.
func (s *Service) SetActiveLots(ctx context.Context, active bool) error {
	return s.update(ctx, func(st *Settings) error {
		st.ActiveLots = active
		return nil
	})
}

// ReplaceFromJSON заменяет настройки загруженным файлом.
// При ошибке текущие настройки не меняются.
func (s *Service) ReplaceFromJSON(ctx context.Context, data []byte) (Settings, error) {
	settings, _, err := decodeSettings(data, true)
	if err != nil {
		return Settings{}, err
	}
	err = s.update(ctx, func(st *Settings) error {
		*st = settings
		return nil
	})
	return settings, err
}

// Reindex переименовывает лоты в lot_1..lot_N по числовому суффиксу.
// Ключи не вида lot_<n> идут первыми, порядок внутри равных сохраняется.
func Reindex(lots LotMapping) LotMapping {
	out := lots.clone()
	sort.SliceStable(out, func(i, j int) bool {
		return lotNumber(out[i].Key) < lotNumber(out[j].Key)
	})
	for i := range out {
		out[i].Key = lotKey(i + 1)
	}
	return out
}

func (s *Service) editLot(ctx context.Context, key string, fn func(*LotDefinition)) error {
	return s.update(ctx, func(st *Settings) error {
		i := st.Lots.index(key)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrLotNotFound, key)
		}
		fn(&st.Lots[i])
		return nil
	})
}

// update применяет изменение к копии, сохраняет её и только потом подменяет настройки.
func (s *Service) update(ctx context.Context, fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

func lotKey(n int) string {
	return "lot_" + strconv.Itoa(n)
}

func lotNumber(key string) int {
	rest, ok := strings.CutPrefix(key, "lot_")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}
