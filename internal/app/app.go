// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: хранилище, клиенты внешних API, сервисы,
// панель оператора, приёмник событий площадки и планировщик.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/bot"
	"serotonyl.ru/autogifts/internal/bot/filters"
	"serotonyl.ru/autogifts/internal/config"
	"serotonyl.ru/autogifts/internal/db/postgres"
	"serotonyl.ru/autogifts/internal/features/admin"
	"serotonyl.ru/autogifts/internal/features/catalog"
	"serotonyl.ru/autogifts/internal/features/delivery"
	"serotonyl.ru/autogifts/internal/features/fulfillment"
	"serotonyl.ru/autogifts/internal/features/ledger"
	"serotonyl.ru/autogifts/internal/features/listings"
	"serotonyl.ru/autogifts/internal/features/pool"
	"serotonyl.ru/autogifts/internal/gateway"
	"serotonyl.ru/autogifts/internal/jobs"
	"serotonyl.ru/autogifts/internal/marketplace"
	"serotonyl.ru/autogifts/internal/storage/jsonfile"
)

// Пауза между сохранениями лотов при массовом переключении.
const listingsPause = 300 * time.Millisecond

// documentStore — общее хранилище JSON-документов для всех фич.
type documentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// App содержит все компоненты приложения.
type App struct {
	Bot         *bot.Bot
	BotAPI      *telego.Bot
	Scheduler   *jobs.Scheduler
	Webhook     *marketplace.Webhook
	Server      *http.Server
	Pool        *pool.Service
	Fulfillment *fulfillment.Service
	DB          *pgxpool.Pool // nil при STORAGE_BACKEND=file

	wg sync.WaitGroup
}

// New создаёт и инициализирует приложение.
// Компоненты создаются в порядке зависимостей.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}

	// === 1. Хранилище ===
	docs, orders, err := app.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// === 2. Telegram Bot API ===
	botAPI, err := telego.NewBot(cfg.TelegramBotToken, telego.WithLogger(log.StandardLogger()))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	me, err := botAPI.GetMe(ctx)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("ошибка авторизации бота: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)
	app.BotAPI = botAPI

	// === 3. Операторы и уведомления ===
	adminService := admin.NewService(admin.NewRepository(docs), cfg.AdminIDs, cfg.AdminPasswordHash)
	if err := adminService.Load(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if cfg.AdminPasswordHash == "" {
		log.Warn("ADMIN_PASSWORD_HASH не задан — вход по /login отключён")
	}
	notifier := bot.NewOperatorNotifier(botAPI, adminService.Operators)

	// === 4. Внешние API ===
	gw := gateway.New(cfg.GatewayURL, cfg.GatewayToken, cfg.GatewayTimeout)
	market := marketplace.New(cfg.MarketplaceURL, cfg.MarketplaceToken, cfg.MarketplaceSelfID,
		cfg.MarketplaceOrderURL, cfg.GatewayTimeout)

	// === 5. Сервисы ===
	refs, err := identityRefs(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	poolService := pool.NewService(refs, gw.Session, pool.NewRepository(docs), notifier)
	if err := poolService.LoadStats(ctx); err != nil {
		app.Close()
		return nil, err
	}

	catalogService := catalog.NewService(catalog.NewRepository(docs), cfg.OrderMarkers)
	if err := catalogService.Load(ctx); err != nil {
		app.Close()
		return nil, err
	}

	pricing, err := parsePricing(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	ledgerService := ledger.NewService(orders)
	listingsService := listings.NewService(market, cfg.MarketplaceCategoryID, listingsPause)
	executor := delivery.NewExecutor(poolService, cfg.GiftSendPause)

	fulfillmentService := fulfillment.NewService(fulfillment.Deps{
		Catalog:   catalogService,
		Pool:      poolService,
		Deliverer: executor,
		Ledger:    ledgerService,
		Listings:  listingsService,
		Market:    market,
		Notifier:  notifier,
	}, fulfillment.Options{
		Pricing:     pricing,
		IdleTimeout: cfg.SessionIdleTimeout,
		Location:    cfg.Location(),
		Running:     cfg.FeatureAutostart,
	})

	// === 6. Панель оператора ===
	adminHandler := admin.NewHandler(adminService, admin.Deps{
		API:      botAPI,
		Catalog:  catalogService,
		Pool:     poolService,
		Ledger:   ledgerService,
		Listings: listingsService,
		Lots:     market,
		Gifts:    fulfillmentService,
	})
	operatorFilter := filters.NewOperatorFilter(adminService)

	// === 7. Собираем бота ===
	b := bot.New(botAPI, cfg, adminHandler, operatorFilter)

	// === 8. Приёмник событий площадки ===
	webhook := marketplace.NewWebhook(cfg.EventsSecret, cfg.EventsQueueSize, fulfillmentService)
	if cfg.EventsSecret == "" {
		log.Warn("EVENTS_SECRET не задан — события площадки принимаются без проверки")
	}
	server := &http.Server{
		Addr:              cfg.EventsListen,
		Handler:           webhook.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// === 9. Планировщик задач ===
	sweepSpec := cfg.JobsSweepSpec
	if cfg.SessionIdleTimeout == 0 {
		sweepSpec = ""
	}
	scheduler, err := jobs.NewScheduler(cfg.Location(), fulfillmentService, sweepSpec, poolService, cfg.JobsRefreshSpec)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.Bot = b
	app.Scheduler = scheduler
	app.Webhook = webhook
	app.Server = server
	app.Pool = poolService
	app.Fulfillment = fulfillmentService
	return app, nil
}

// Start запускает бота, приёмник событий и планировщик.
func (a *App) Start(ctx context.Context) {
	if err := a.Bot.RegisterCommands(ctx); err != nil {
		log.WithError(err).Warn("Не удалось опубликовать команды бота")
	}

	// Один проход по балансам до первых заказов
	identities := a.Pool.RefreshAll(ctx)
	log.WithFields(log.Fields{
		"total":  len(identities),
		"active": a.Pool.ActiveCount(),
	}).Info("Балансы сессий проверены")

	a.Scheduler.Start()

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.Webhook.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		log.WithField("addr", a.Server.Addr).Info("Приём событий площадки запущен")
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP-сервер событий упал")
		}
	}()
	go func() {
		defer a.wg.Done()
		a.Bot.Start(ctx)
	}()
}

// Shutdown останавливает компоненты в обратном порядке. ctx ограничивает ожидание HTTP-сервера.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.Server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP-сервер остановлен с ошибкой")
	}
	a.Scheduler.Stop()
	a.wg.Wait()
	a.Bot.Close()
	a.Close()
}

// Close освобождает хранилище.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
}

// openStorage выбирает хранилище документов и журнал заказов по STORAGE_BACKEND.
func (a *App) openStorage(ctx context.Context, cfg *config.Config) (documentStore, ledger.Repository, error) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		db, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = db
		return postgres.NewDocuments(db), postgres.NewOrders(db), nil

	default:
		store, err := jsonfile.New(cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return store, ledger.NewDocumentRepository(store), nil
	}
}

// identityRefs — список сессий из IDENTITIES или из каталога SESSIONS_DIR.
func identityRefs(cfg *config.Config) ([]string, error) {
	if len(cfg.Identities) > 0 {
		return cfg.Identities, nil
	}
	refs, err := gateway.DiscoverSessions(cfg.SessionsDir)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		log.WithField("dir", cfg.SessionsDir).Warn("Сессии не найдены — подарки отправлять не с чего")
	}
	return refs, nil
}

func parsePricing(cfg *config.Config) (ledger.Pricing, error) {
	rate, err := decimal.NewFromString(cfg.GiftStarRate)
	if err != nil {
		return ledger.Pricing{}, fmt.Errorf("GIFT_STAR_RATE: %w", err)
	}
	fee, err := decimal.NewFromString(cfg.GiftFeeMultiplier)
	if err != nil {
		return ledger.Pricing{}, fmt.Errorf("GIFT_FEE_MULTIPLIER: %w", err)
	}
	return ledger.Pricing{StarRate: rate, FeeMultiplier: fee}, nil
}
