// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: закрытие брошенных диалогов
// и периодическую проверку балансов сессий.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/features/pool"
)

// Sweeper закрывает диалоги, в которых покупатель давно молчит.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) int
}

// Refresher перепроверяет балансы всех сессий.
type Refresher interface {
	RefreshAll(ctx context.Context) []pool.Identity
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron      *cron.Cron
	sweeper   Sweeper
	refresher Refresher
	now       func() time.Time
}

// NewScheduler создаёт планировщик задач в часовом поясе loc.
// Пустая спецификация отключает задачу.
func NewScheduler(loc *time.Location, sweeper Sweeper, sweepSpec string, refresher Refresher, refreshSpec string) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper:   sweeper,
		refresher: refresher,
		now:       time.Now,
	}

	if sweepSpec != "" {
		if _, err := s.cron.AddFunc(sweepSpec, s.sweep); err != nil {
			return nil, fmt.Errorf("расписание JOBS_SWEEP_SPEC %q: %w", sweepSpec, err)
		}
	}
	if refreshSpec != "" {
		if _, err := s.cron.AddFunc(refreshSpec, s.refresh); err != nil {
			return nil, fmt.Errorf("расписание JOBS_REFRESH_SPEC %q: %w", refreshSpec, err)
		}
	}
	return s, nil
}

// Jobs возвращает число зарегистрированных задач.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.WithField("jobs", s.Jobs()).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и ждёт выполняющиеся задачи.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if n := s.sweeper.Sweep(ctx, s.now()); n > 0 {
		log.WithField("closed", n).Info("[CRON] Закрыты брошенные диалоги")
	}
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	active := 0
	identities := s.refresher.RefreshAll(ctx)
	for _, id := range identities {
		if id.Active {
			active++
		}
	}
	log.WithFields(log.Fields{
		"active": active,
		"total":  len(identities),
	}).Debug("[CRON] Балансы сессий обновлены")
}
