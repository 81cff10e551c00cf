// Package admin — handlers.go обрабатывает взаимодействие с панелью оператора.
// Панель работает через inline-кнопки в личных сообщениях.
// Поток: /login → /auto_gifts_settings → кнопка → пошаговый диалог.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/autogifts/internal/common"
	"serotonyl.ru/autogifts/internal/features/catalog"
	"serotonyl.ru/autogifts/internal/features/ledger"
	"serotonyl.ru/autogifts/internal/features/pool"
	"serotonyl.ru/autogifts/internal/marketplace"
)

// TelegramAPI — методы бота, которые нужны панели.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

// Catalog — настройки лотов.
type Catalog interface {
	Settings() catalog.Settings
	Lot(key string) (catalog.LotDefinition, error)
	Page(number int) catalog.Page
	Add(ctx context.Context, name string, giftID int64, giftName string) (catalog.LotDefinition, error)
	Rename(ctx context.Context, key, name string) error
	SetGiftID(ctx context.Context, key string, giftID int64) error
	SetGiftName(ctx context.Context, key, giftName string) error
	Delete(ctx context.Context, key string) error
	ToggleAutoRefunds(ctx context.Context) (bool, error)
	SetActiveLots(ctx context.Context, active bool) error
	ReplaceFromJSON(ctx context.Context, data []byte) (catalog.Settings, error)
}

// Pool — сессии со звёздами.
type Pool interface {
	Size() int
	ActiveCount() int
	Next() (string, bool)
	Probe(ctx context.Context, name string) (pool.Identity, error)
	RefreshAll(ctx context.Context) []pool.Identity
}

// Ledger — статистика заказов.
type Ledger interface {
	Aggregate(ctx context.Context, now time.Time) (ledger.Summary, error)
}

// Listings — активность лотов на маркетплейсе.
type Listings interface {
	Toggle(ctx context.Context) (bool, error)
}

// LotSource читает форму лота на маркетплейсе.
type LotSource interface {
	GetLotFields(ctx context.Context, lotID int64) (marketplace.LotFields, error)
}

// Switch включает и выключает автовыдачу.
type Switch interface {
	Start() bool
	Stop() bool
	Running() bool
}

// Deps — зависимости обработчика.
type Deps struct {
	API      TelegramAPI
	Catalog  Catalog
	Pool     Pool
	Ledger   Ledger
	Listings Listings
	Lots     LotSource
	Gifts    Switch
}

// Handler обрабатывает команды и кнопки операторов.
type Handler struct {
	service  *Service
	api      TelegramAPI
	catalog  Catalog
	pool     Pool
	ledger   Ledger
	listings Listings
	lots     LotSource
	gifts    Switch
	http     *resty.Client
	now      func() time.Time
}

// NewHandler создаёт обработчик панели.
func NewHandler(service *Service, deps Deps) *Handler {
	return &Handler{
		service:  service,
		api:      deps.API,
		catalog:  deps.Catalog,
		pool:     deps.Pool,
		ledger:   deps.Ledger,
		listings: deps.Listings,
		lots:     deps.Lots,
		gifts:    deps.Gifts,
		http:     resty.New().SetTimeout(30 * time.Second),
		now:      time.Now,
	}
}

// --- Команды ---

// HandleLogin обрабатывает /login [пароль]. Без пароля просим ввести его следующим сообщением.
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) == 0 {
		h.service.SetState(userID, StateAwaitingPassword, "", nil)
		h.send(ctx, chatID, "🔐 Введите пароль для доступа к панели:", nil)
		return
	}
	h.login(ctx, chatID, userID, strings.Join(args, " "))
}

// HandleStart — /start_gifts.
func (h *Handler) HandleStart(ctx context.Context, chatID int64) {
	if h.gifts.Start() {
		h.send(ctx, chatID, "🚀 Auto Gifts активирован!\nТеперь всё будет работать на автомате 🎁", nil)
		return
	}
	h.send(ctx, chatID, "⚠️ Auto Gifts уже работает!\nРасслабься и наблюдай за магией ✨", nil)
}

// HandleStop — /stop_gifts.
func (h *Handler) HandleStop(ctx context.Context, chatID int64) {
	if h.gifts.Stop() {
		h.send(ctx, chatID, "⛔ Auto Gifts выключен.\nЕсли что — включи обратно, я всегда на готове 🤖", nil)
		return
	}
	h.send(ctx, chatID, "🛑 Auto Gifts и так отдыхает.\nНичего останавливать не нужно 😉", nil)
}

// HandleSettings — /auto_gifts_settings, главный экран панели.
func (h *Handler) HandleSettings(ctx context.Context, chatID int64) {
	text, kb := h.panel(ctx)
	h.send(ctx, chatID, text, kb)
}

// HandleAdminMessage обрабатывает текстовое сообщение, если у пользователя открыт диалог.
// Возвращает false, если сообщение не относится к панели.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, text string) bool {
	state := h.service.GetState(userID)
	if state == nil {
		return false
	}

	// Пароль может вводить и пользователь, который ещё не оператор
	if state.State == StateAwaitingPassword {
		h.service.ClearState(userID)
		h.login(ctx, chatID, userID, text)
		return true
	}
	if !h.service.IsOperator(userID) {
		h.service.ClearState(userID)
		return false
	}

	text = strings.TrimSpace(text)
	switch state.State {
	case StateAwaitingUpload:
		h.send(ctx, chatID, "📤 Жду файл с лотами в формате <b>JSON</b> 🧾", backToSettings())
	case StateAddLotID:
		h.handleAddLotID(ctx, chatID, userID, text)
	case StateAddGiftID, StateAddGiftName:
		if state.Draft == nil {
			h.service.ClearState(userID)
			return false
		}
		if state.State == StateAddGiftID {
			h.handleAddGiftID(ctx, chatID, userID, state.Draft, text)
		} else {
			h.handleAddGiftName(ctx, chatID, userID, state.Draft, text)
		}
	case StateRenameLot:
		h.handleRename(ctx, chatID, userID, state.LotKey, text)
	case StateChangeGiftID:
		h.handleChangeGiftID(ctx, chatID, userID, state.LotKey, text)
	case StateChangeGiftName:
		h.handleChangeGiftName(ctx, chatID, userID, state.LotKey, text)
	default:
		return false
	}
	return true
}

// HandleDocument принимает JSON-файл с лотами после кнопки «Загрузить лоты».
func (h *Handler) HandleDocument(ctx context.Context, chatID, userID int64, doc *telego.Document) {
	state := h.service.GetState(userID)
	if state == nil || state.State != StateAwaitingUpload {
		h.send(ctx, chatID, "❌ Вы не активировали загрузку JSON. Используйте меню настроек.", nil)
		return
	}
	h.service.ClearState(userID)

	logger := log.WithFields(log.Fields{
		"user_id": userID,
		"file":    doc.FileName,
	})

	data, err := h.download(ctx, doc.FileID)
	if err != nil {
		logger.WithError(err).Error("Не удалось скачать файл с лотами")
		h.send(ctx, chatID, fmt.Sprintf("❌ Произошла ошибка при загрузке файла: %s", common.EscapeHTML(err.Error())), nil)
		return
	}

	settings, err := h.catalog.ReplaceFromJSON(ctx, data)
	switch {
	case errors.Is(err, catalog.ErrMissingLotMapping):
		logger.Warn("В файле нет lot_mapping")
		h.send(ctx, chatID, "❌ Ошибка: в файле нет ключа 'lot_mapping'.", nil)
	case errors.Is(err, catalog.ErrMalformedJSON):
		logger.WithError(err).Warn("Файл с лотами не разобран")
		h.send(ctx, chatID, fmt.Sprintf("❌ Ошибка: Не удалось считать JSON. Проверьте синтаксис. (%s)", common.EscapeHTML(err.Error())), nil)
	case err != nil:
		logger.WithError(err).Error("Не удалось сохранить лоты")
		h.send(ctx, chatID, fmt.Sprintf("❌ Произошла ошибка при загрузке файла: %s", common.EscapeHTML(err.Error())), nil)
	default:
		logger.WithField("lots", len(settings.Lots)).Info("Лоты загружены из файла")
		h.send(ctx, chatID,
			fmt.Sprintf("✅ Новый gift_lots.json успешно загружен и сохранён!\n📦 Лотов: %d", len(settings.Lots)),
			singleButton("🔙 Назад", Callback{Action: ActionSettings}))
	}
}

// HandleCallback обрабатывает нажатие inline-кнопки панели.
func (h *Handler) HandleCallback(ctx context.Context, q telego.CallbackQuery) {
	if !h.service.IsOperator(q.From.ID) {
		h.answer(ctx, tu.CallbackQuery(q.ID).WithText(common.ErrNotOperator.Error()))
		return
	}
	h.answer(ctx, tu.CallbackQuery(q.ID))
	if q.Message == nil {
		return
	}

	chatID := q.Message.GetChat().ID
	msgID := q.Message.GetMessageID()
	userID := q.From.ID
	cb := ParseCallback(q.Data)

	log.WithFields(log.Fields{
		"user_id": userID,
		"action":  cb.Action,
		"arg":     cb.Arg,
	}).Debug("Кнопка панели")

	switch cb.Action {
	case ActionSettings:
		h.service.ClearState(userID)
		text, kb := h.panel(ctx)
		h.edit(ctx, chatID, msgID, text, kb)

	case ActionLots:
		h.edit(ctx, chatID, msgID, lotsTitle, lotsKeyboard(h.catalog.Page(0)))

	case ActionPage:
		page, err := strconv.Atoi(cb.Arg)
		if err != nil {
			page = 0
		}
		h.edit(ctx, chatID, msgID, lotsTitle, lotsKeyboard(h.catalog.Page(page)))

	case ActionLot:
		lot, err := h.catalog.Lot(cb.Arg)
		if err != nil {
			h.edit(ctx, chatID, msgID, fmt.Sprintf("❌ Лот <b>%s</b> не найден.", common.EscapeHTML(cb.Arg)), backToLots("🔙 К лотам"))
			return
		}
		text, kb := lotView(lot)
		h.edit(ctx, chatID, msgID, text, kb)

	case ActionRename:
		h.service.SetState(userID, StateRenameLot, cb.Arg, nil)
		h.edit(ctx, chatID, msgID, fmt.Sprintf("✏️ Введи новое название для лота <b>%s</b>:", common.EscapeHTML(cb.Arg)), nil)

	case ActionGiftID:
		h.service.SetState(userID, StateChangeGiftID, cb.Arg, nil)
		h.edit(ctx, chatID, msgID, fmt.Sprintf("🔢 Введи новый <b>GIFT ID</b> для лота <b>%s</b>:\n(только число, без лишнего ✂️)", common.EscapeHTML(cb.Arg)), nil)

	case ActionGiftName:
		h.service.SetState(userID, StateChangeGiftName, cb.Arg, nil)
		h.edit(ctx, chatID, msgID, fmt.Sprintf("🏷 Придумай новое <b>GIFT NAME</b> для лота <b>%s</b>:\nКак назовём этот подарочек? 🎁", common.EscapeHTML(cb.Arg)), nil)

	case ActionDelete:
		h.deleteLot(ctx, chatID, msgID, cb.Arg)

	case ActionUpload:
		h.service.SetState(userID, StateAwaitingUpload, "", nil)
		h.edit(ctx, chatID, msgID, "📤 Пришли файл с лотами в формате <b>JSON</b> 🧾\nНазвание файла может быть любым.", backToSettings())

	case ActionRefunds:
		h.toggleRefunds(ctx, chatID, msgID)

	case ActionListings:
		h.toggleListings(ctx, chatID, msgID)

	case ActionAddLot:
		h.service.SetState(userID, StateAddLotID, "", nil)
		h.edit(ctx, chatID, msgID, "📦 Давай добавим новый лот!\n🔢 Введи <b>ID лота</b>, который хочешь добавить:", backToSettings())

	case ActionStatistics:
		summary, err := h.ledger.Aggregate(ctx, h.now())
		if err != nil {
			log.WithError(err).Error("Ошибка расчёта статистики")
			h.edit(ctx, chatID, msgID, fmt.Sprintf("❌ Не удалось посчитать статистику: <code>%s</code>", common.EscapeHTML(err.Error())), backToSettings())
			return
		}
		h.edit(ctx, chatID, msgID, statsView(summary), backToSettings())

	case ActionSessions:
		identities := h.pool.RefreshAll(ctx)
		current, _ := h.pool.Next()
		h.edit(ctx, chatID, msgID, sessionsView(identities, current), backToSettings())

	default:
		log.WithField("data", q.Data).Warn("Неизвестная кнопка панели")
	}
}

// --- Вход ---

func (h *Handler) login(ctx context.Context, chatID, userID int64, password string) {
	if err := h.service.Login(ctx, userID, password); err != nil {
		h.send(ctx, chatID, fmt.Sprintf("❌ %s", common.EscapeHTML(err.Error())), nil)
		return
	}
	h.send(ctx, chatID, "✅ Аутентификация успешна!", nil)
	h.HandleSettings(ctx, chatID)
}

// --- Новый лот (3 шага) ---

// handleAddLotID — Шаг 1: ID лота на маркетплейсе, название берём из формы лота.
func (h *Handler) handleAddLotID(ctx context.Context, chatID, userID int64, text string) {
	lotID, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		h.send(ctx, chatID, "🚫 Oшибочка! ID лота должен быть числом 🔢\nПопробуй ещё раз 👇", backToSettings())
		return
	}

	fields, err := h.lots.GetLotFields(ctx, lotID)
	if err != nil {
		h.service.ClearState(userID)
		log.WithError(err).WithField("lot_id", lotID).Error("Не удалось получить данные лота")
		h.send(ctx, chatID,
			fmt.Sprintf("❌ Упс! Не удалось получить данные лота 😔\nОшибка: <code>%s</code>", common.EscapeHTML(err.Error())),
			singleButton("🔙 Назад", Callback{Action: ActionSettings}))
		return
	}

	draft := &LotDraft{MarketLotID: lotID, Name: fields.Summary()}
	h.service.SetState(userID, StateAddGiftID, "", draft)
	h.send(ctx, chatID, "📦 Введи GIFT ID для добавления 🎁\n(только цифры, пожалуйста!)", nil)
}

// handleAddGiftID — Шаг 2: GIFT ID.
func (h *Handler) handleAddGiftID(ctx context.Context, chatID, userID int64, draft *LotDraft, text string) {
	giftID, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		h.send(ctx, chatID, "🚫 GIFT ID должен быть числом! 🔢\nПопробуй ещё раз — всё получится 💪", backToSettings())
		return
	}
	next := *draft
	next.GiftID = giftID
	h.service.SetState(userID, StateAddGiftName, "", &next)
	h.send(ctx, chatID, "🏷 Введи GIFT Name для добавления 🎁\nКак назовём этот подарок?", nil)
}

// handleAddGiftName — Шаг 3: GIFT NAME, лот сохраняется.
func (h *Handler) handleAddGiftName(ctx context.Context, chatID, userID int64, draft *LotDraft, text string) {
	if text == "" {
		h.send(ctx, chatID, "🏷 Название подарка не может быть пустым. Попробуй ещё раз:", nil)
		return
	}
	h.service.ClearState(userID)

	lot, err := h.catalog.Add(ctx, draft.Name, draft.GiftID, text)
	if err != nil {
		log.WithError(err).Error("Не удалось добавить лот")
		h.send(ctx, chatID, fmt.Sprintf("❌ Не удалось сохранить лот: <code>%s</code>", common.EscapeHTML(err.Error())), backToSettings())
		return
	}

	log.WithFields(log.Fields{
		"lot":           lot.Key,
		"market_lot_id": draft.MarketLotID,
		"gift_id":       lot.GiftID,
	}).Info("Лот добавлен")
	h.send(ctx, chatID,
		fmt.Sprintf("✅ Лот <b>%s</b> успешно добавлен! 🎉\nНазвание: <b>%s</b>", lot.Key, common.EscapeHTML(lot.Name)),
		singleButton("⚙️ К настройкам", Callback{Action: ActionSettings}))
}

// --- Редактирование лота ---

func (h *Handler) handleRename(ctx context.Context, chatID, userID int64, key, name string) {
	h.service.ClearState(userID)
	if err := h.catalog.Rename(ctx, key, name); err != nil {
		h.sendEditError(ctx, chatID, key, err)
		return
	}
	h.send(ctx, chatID,
		fmt.Sprintf("✅ Название лота <b>%s</b> успешно обновлено на <b>%s</b> 🏷", common.EscapeHTML(key), common.EscapeHTML(name)),
		backToLots("🔙 Вернуться к лотам"))
}

func (h *Handler) handleChangeGiftID(ctx context.Context, chatID, userID int64, key, text string) {
	giftID, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		h.send(ctx, chatID, "🚫 GIFT ID должен быть числом! 🔢\nПопробуй ещё раз — у тебя получится 💪", nil)
		return
	}
	h.service.ClearState(userID)
	if err := h.catalog.SetGiftID(ctx, key, giftID); err != nil {
		h.sendEditError(ctx, chatID, key, err)
		return
	}
	h.send(ctx, chatID,
		fmt.Sprintf("✅ GIFT ID для лота <b>%s</b> успешно обновлён на <b>%d</b> 🎯", common.EscapeHTML(key), giftID),
		backToLots("🔙 К лотам"))
}

func (h *Handler) handleChangeGiftName(ctx context.Context, chatID, userID int64, key, name string) {
	h.service.ClearState(userID)
	if err := h.catalog.SetGiftName(ctx, key, name); err != nil {
		h.sendEditError(ctx, chatID, key, err)
		return
	}
	h.send(ctx, chatID,
		fmt.Sprintf("✅ Название подарка для лота <b>%s</b> обновлено на <b>%s</b> ✨", common.EscapeHTML(key), common.EscapeHTML(name)),
		backToLots("🔙 К лотам"))
}

func (h *Handler) sendEditError(ctx context.Context, chatID int64, key string, err error) {
	if errors.Is(err, catalog.ErrLotNotFound) {
		h.send(ctx, chatID, fmt.Sprintf("❌ Лот <b>%s</b> не найден. Проверь ещё раз!", common.EscapeHTML(key)), backToLots("🔙 К лотам"))
		return
	}
	log.WithError(err).WithField("lot", key).Error("Ошибка редактирования лота")
	h.send(ctx, chatID, fmt.Sprintf("❌ Не удалось сохранить лот: <code>%s</code>", common.EscapeHTML(err.Error())), backToLots("🔙 К лотам"))
}

func (h *Handler) deleteLot(ctx context.Context, chatID int64, msgID int, key string) {
	err := h.catalog.Delete(ctx, key)
	switch {
	case errors.Is(err, catalog.ErrLotNotFound):
		h.edit(ctx, chatID, msgID, fmt.Sprintf("❌ Лот <b>%s</b> не найден. Возможно, он уже был удалён 🤷‍♂️", common.EscapeHTML(key)), backToLots("🔙 К лотам"))
	case err != nil:
		log.WithError(err).WithField("lot", key).Error("Ошибка удаления лота")
		h.edit(ctx, chatID, msgID, fmt.Sprintf("❌ Не удалось удалить лот: <code>%s</code>", common.EscapeHTML(err.Error())), backToLots("🔙 К лотам"))
	default:
		h.edit(ctx, chatID, msgID,
			fmt.Sprintf("🗑 Лот <b>%s</b> успешно удалён.\n🔄 Все лоты переиндексированы — порядок наведен! ✅", common.EscapeHTML(key)),
			lotsKeyboard(h.catalog.Page(0)))
	}
}

// --- Переключатели ---

func (h *Handler) toggleRefunds(ctx context.Context, chatID int64, msgID int) {
	enabled, err := h.catalog.ToggleAutoRefunds(ctx)
	if err != nil {
		log.WithError(err).Error("Не удалось переключить автовозвраты")
		h.edit(ctx, chatID, msgID, fmt.Sprintf("❌ Не удалось сохранить настройку: <code>%s</code>", common.EscapeHTML(err.Error())), backToSettings())
		return
	}
	state := "выключены"
	if enabled {
		state = "включены"
	}
	h.edit(ctx, chatID, msgID, "Автовозвраты успешно "+state, singleButton("🔙 Назад", Callback{Action: ActionSettings}))
}

func (h *Handler) toggleListings(ctx context.Context, chatID int64, msgID int) {
	active, err := h.listings.Toggle(ctx)
	if err != nil {
		log.WithError(err).Error("Не удалось переключить лоты на маркетплейсе")
		h.edit(ctx, chatID, msgID, fmt.Sprintf("❌ Не удалось переключить лоты: <code>%s</code>", common.EscapeHTML(err.Error())), backToSettings())
		return
	}
	if err := h.catalog.SetActiveLots(ctx, active); err != nil {
		log.WithError(err).Error("Не удалось сохранить флаг активности лотов")
	}
	state := "деактивированы"
	if active {
		state = "активированы"
	}
	h.edit(ctx, chatID, msgID, fmt.Sprintf("✅ Лоты успешно <b>%s</b>! 🎉", state), backToSettings())
}

// --- Утилиты ---

// panel собирает главный экран. Баланс берётся с сессии, с которой начнётся следующий выбор.
func (h *Handler) panel(ctx context.Context) (string, *telego.InlineKeyboardMarkup) {
	settings := h.catalog.Settings()
	var balance int64
	if name, ok := h.pool.Next(); ok {
		if id, err := h.pool.Probe(ctx, name); err == nil {
			balance = id.Balance
		}
	}
	return panelView(panelData{
		Lots:        len(settings.Lots),
		Balance:     balance,
		Active:      h.pool.ActiveCount(),
		Total:       h.pool.Size(),
		AutoRefunds: settings.AutoRefunds,
		ActiveLots:  settings.ActiveLots,
		Running:     h.gifts.Running(),
	})
}

func (h *Handler) download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := h.api.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("получение файла: %w", err)
	}
	resp, err := h.http.R().SetContext(ctx).Get(h.api.FileDownloadURL(file.FilePath))
	if err != nil {
		return nil, fmt.Errorf("скачивание файла: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("скачивание файла: статус %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, kb *telego.InlineKeyboardMarkup) {
	params := tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML)
	if kb != nil {
		params = params.WithReplyMarkup(kb)
	}
	if _, err := h.api.SendMessage(ctx, params); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

func (h *Handler) edit(ctx context.Context, chatID int64, msgID int, text string, kb *telego.InlineKeyboardMarkup) {
	_, err := h.api.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:      tu.ID(chatID),
		MessageID:   msgID,
		Text:        text,
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: kb,
	})
	if err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка редактирования сообщения")
	}
}

func (h *Handler) answer(ctx context.Context, params *telego.AnswerCallbackQueryParams) {
	if err := h.api.AnswerCallbackQuery(ctx, params); err != nil {
		log.WithError(err).Debug("Ошибка ответа на кнопку")
	}
}
