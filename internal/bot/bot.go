// Package bot содержит Telegram-бота операторов.
// bot.go принимает апдейты long polling'ом и раздаёт их панели.
package bot

import (
	"context"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/bot/filters"
	"serotonyl.ru/autogifts/internal/bot/middleware"
	"serotonyl.ru/autogifts/internal/common"
	"serotonyl.ru/autogifts/internal/config"
	"serotonyl.ru/autogifts/internal/features/admin"
)

const helpText = "🎁 Auto Gifts — автовыдача подарков.\n\n" +
	"/start_gifts — включить автовыдачу\n" +
	"/stop_gifts — выключить автовыдачу\n" +
	"/auto_gifts_settings — панель управления\n" +
	"/login <пароль> — вход для оператора"

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *telego.Bot
	cfg *config.Config

	operatorFilter *filters.OperatorFilter
	rateLimiter    *middleware.RateLimiter
	adminHandler   *admin.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *telego.Bot,
	cfg *config.Config,
	adminHandler *admin.Handler,
	operatorFilter *filters.OperatorFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}

	return &Bot{
		api:            api,
		cfg:            cfg,
		operatorFilter: operatorFilter,
		rateLimiter:    middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		adminHandler:   adminHandler,
		parser:         NewCommandParser(),
		inflight:       make(chan struct{}, maxInFlight),
	}
}

// RegisterCommands публикует меню команд бота.
func (b *Bot) RegisterCommands(ctx context.Context) error {
	return b.api.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "start_gifts", Description: "🚀 Старт автопродажи"},
			{Command: "stop_gifts", Description: "🛑 Стоп автопродажи"},
			{Command: "auto_gifts_settings", Description: "⚙️ Настройки автовыдачи — лоты и режимы"},
			{Command: "login", Description: "🔐 Вход для оператора"},
		},
	})
}

// Start запускает long polling и блокируется до отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		log.WithError(err).Error("Не удалось запустить long polling")
		return
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			b.wg.Add(1)
			go func(upd telego.Update) {
				defer func() {
					<-b.inflight
					b.wg.Done()
				}()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// Close дожидается обработчиков и останавливает rate limiter.
func (b *Bot) Close() {
	b.wg.Wait()
	b.rateLimiter.Close()
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	// Кнопки панели
	if q := update.CallbackQuery; q != nil {
		if !b.rateLimiter.Allow(q.From.ID) {
			log.WithField("user_id", q.From.ID).Debug("rate limited")
			return
		}
		b.adminHandler.HandleCallback(ctx, *q)
		return
	}

	message := update.Message
	if message == nil {
		return
	}
	middleware.LogMessage(message)

	if !b.operatorFilter.CheckPrivate(message) {
		return
	}
	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	// Файл с лотами
	if message.Document != nil {
		if b.operatorFilter.CheckAccess(message) {
			b.adminHandler.HandleDocument(ctx, chatID, userID, message.Document)
		}
		return
	}
	if message.Text == "" {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	log.WithFields(log.Fields{
		"isCommand": isCommand,
		"cmd":       cmd,
		"args":      len(args),
	}).Debug("parsed command")

	if !isCommand {
		// Ответ на шаг диалога (в том числе ввод пароля)
		b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.Text)
		return
	}
	b.routeCommand(ctx, message, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *telego.Message, cmd string, args []string) {
	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd {
	case "start", "help":
		b.sendMessage(ctx, chatID, helpText)
		return
	case "login":
		b.adminHandler.HandleLogin(ctx, chatID, userID, args)
		return
	}

	if !b.operatorFilter.CheckAccess(message) {
		b.sendMessage(ctx, chatID, "❌ "+common.ErrNotOperator.Error()+". Войдите: /login <пароль>")
		return
	}

	switch cmd {
	case "start_gifts":
		b.adminHandler.HandleStart(ctx, chatID)
	case "stop_gifts":
		b.adminHandler.HandleStop(ctx, chatID)
	case "auto_gifts_settings", "settings":
		b.adminHandler.HandleSettings(ctx, chatID)
	default:
		log.WithField("cmd", cmd).Debug("Неизвестная команда")
	}
}

// sendMessage — утилита для отправки сообщений без разметки.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!", "."},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @имя_бота у команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command, _, _ := strings.Cut(parts[0], "@")
	command = strings.ToLower(command)
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
