// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Поддерживаемые хранилища документов и журнала заказов.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config содержит все настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken  string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	AdminIDsRaw       string  `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs          []int64 `envconfig:"-"` // разобранный список
	AdminPasswordHash string  `envconfig:"ADMIN_PASSWORD_HASH"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	BotMaxInflight          int `envconfig:"BOT_MAX_INFLIGHT" default:"16"`
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Storage ---
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"file"`
	StorageDir     string `envconfig:"STORAGE_DIR" default:"storage/cache"`

	// --- Database (только для STORAGE_BACKEND=postgres) ---
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"autogifts"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"1"`

	// --- Gift gateway (сессии Telegram-аккаунтов со звёздами) ---
	GatewayURL     string        `envconfig:"GATEWAY_URL" required:"true"`
	GatewayToken   string        `envconfig:"GATEWAY_TOKEN"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
	SessionsDir    string        `envconfig:"SESSIONS_DIR" default:"sessions"`
	IdentitiesRaw  string        `envconfig:"IDENTITIES"`
	Identities     []string      `envconfig:"-"`

	// --- Marketplace ---
	MarketplaceURL        string `envconfig:"MARKETPLACE_URL" required:"true"`
	MarketplaceToken      string `envconfig:"MARKETPLACE_TOKEN"`
	MarketplaceSelfID     int64  `envconfig:"MARKETPLACE_SELF_ID" required:"true"`
	MarketplaceOrderURL   string `envconfig:"MARKETPLACE_ORDER_URL" default:"https://funpay.com/orders/%s/"`
	MarketplaceCategoryID int64  `envconfig:"MARKETPLACE_CATEGORY_ID" default:"3064"`

	// --- Inbound events ---
	EventsListen    string `envconfig:"EVENTS_LISTEN" default:":8080"`
	EventsSecret    string `envconfig:"EVENTS_SECRET"`
	EventsQueueSize int    `envconfig:"EVENTS_QUEUE_SIZE" default:"256"`

	// --- Gifts ---
	GiftStarRate      string        `envconfig:"GIFT_STAR_RATE" default:"1.16"`
	GiftFeeMultiplier string        `envconfig:"GIFT_FEE_MULTIPLIER" default:"1.06"`
	GiftSendPause     time.Duration `envconfig:"GIFT_SEND_PAUSE" default:"1s"`
	OrderMarkersRaw   string        `envconfig:"ORDER_MARKERS" default:"ПОДАРОК НА АККАУНТ,ПО USERNAME"`
	OrderMarkers      []string      `envconfig:"-"`

	// --- Sessions / jobs ---
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"24h"`
	JobsSweepSpec      string        `envconfig:"JOBS_SWEEP_SPEC" default:"@every 1m"`
	JobsRefreshSpec    string        `envconfig:"JOBS_REFRESH_SPEC" default:"@every 15m"`

	// --- Feature Flags ---
	FeatureAutostart bool `envconfig:"FEATURE_AUTOSTART" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс приложения, при ошибке UTC+3.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

func (c *Config) Validate() error {
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS не задан")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	switch c.StorageBackend {
	case StorageFile:
	case StoragePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен для STORAGE_BACKEND=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	default:
		return fmt.Errorf("неизвестный STORAGE_BACKEND %q", c.StorageBackend)
	}
	if !strings.Contains(c.MarketplaceOrderURL, "%s") {
		return fmt.Errorf("MARKETPLACE_ORDER_URL должен содержать %%s")
	}
	if len(c.OrderMarkers) == 0 {
		return fmt.Errorf("ORDER_MARKERS пуст")
	}
	if c.EventsQueueSize <= 0 {
		return fmt.Errorf("EVENTS_QUEUE_SIZE должен быть > 0")
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT не может быть отрицательным")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids
	cfg.Identities = parseStringCSV(cfg.IdentitiesRaw)
	cfg.OrderMarkers = parseStringCSV(cfg.OrderMarkersRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseStringCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
