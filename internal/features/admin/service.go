// Package admin — service.go содержит аутентификацию операторов
// и state-машину для пошаговых действий в панели.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/autogifts/internal/common"
)

// Защита от перебора: 3 неудачные попытки за час.
const (
	maxFailedAttempts = 3
	attemptsWindow    = time.Hour
)

// Service управляет операторами и диалогами панели.
type Service struct {
	repo         *Repository
	passwordHash string
	adminIDs     []int64

	mu        sync.RWMutex
	operators map[int64]struct{} // вошедшие по паролю

	states   map[int64]*AdminState // Состояния диалогов (in-memory)
	statesMu sync.RWMutex

	now func() time.Time
}

// NewService создаёт сервис панели. Операторам из adminIDs пароль не нужен.
func NewService(repo *Repository, adminIDs []int64, passwordHash string) *Service {
	return &Service{
		repo:         repo,
		passwordHash: passwordHash,
		adminIDs:     adminIDs,
		operators:    make(map[int64]struct{}),
		states:       make(map[int64]*AdminState),
		now:          time.Now,
	}
}

// Load подтягивает операторов, вошедших ранее.
func (s *Service) Load(ctx context.Context) error {
	ids, err := s.repo.LoadOperators(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, id := range ids {
		s.operators[id] = struct{}{}
	}
	s.mu.Unlock()
	log.WithField("count", len(ids)).Info("Операторы загружены")
	return nil
}

// IsOperator проверяет, может ли пользователь управлять ботом.
func (s *Service) IsOperator(userID int64) bool {
	if slices.Contains(s.adminIDs, userID) {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.operators[userID]
	return ok
}

// Operators возвращает всех операторов без повторов, по возрастанию ID.
func (s *Service) Operators() []int64 {
	s.mu.RLock()
	out := slices.Clone(s.adminIDs)
	for id := range s.operators {
		out = append(out, id)
	}
	s.mu.RUnlock()

	slices.Sort(out)
	return slices.Compact(out)
}

// Login проверяет пароль оператора с использованием Argon2id.
// Включает защиту от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) Login(ctx context.Context, userID int64, password string) error {
	if s.passwordHash == "" {
		return common.ErrLoginDisabled
	}

	now := s.now()
	if s.repo.GetRecentFailures(userID, now.Add(-attemptsWindow)) >= maxFailedAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(strings.TrimSpace(password), s.passwordHash)
	s.repo.LogAttempt(userID, now, match)
	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль оператора")
		return common.ErrWrongPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operators[userID]; ok {
		return nil
	}
	s.operators[userID] = struct{}{}

	ids := make([]int64, 0, len(s.operators))
	for id := range s.operators {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if err := s.repo.SaveOperators(ctx, ids); err != nil {
		delete(s.operators, userID)
		return err
	}
	log.WithField("user_id", userID).Info("Оператор вошёл в панель")
	return nil
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *AdminState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil
	}
	// Проверяем истечение
	if s.now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, stateName string, lotKey string, draft *LotDraft) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &AdminState{
		State:     stateName,
		LotKey:    lotKey,
		Draft:     draft,
		ExpiresAt: s.now().Add(stateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	// Парсим хеш
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	// Извлекаем параметры
	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	// Декодируем соль
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	// Декодируем хеш
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	// Вычисляем хеш введённого пароля
	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравниваем в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}
