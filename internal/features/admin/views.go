// Package admin — views.go собирает тексты и клавиатуры панели.
package admin

import (
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"serotonyl.ru/autogifts/internal/common"
	"serotonyl.ru/autogifts/internal/features/catalog"
	"serotonyl.ru/autogifts/internal/features/ledger"
	"serotonyl.ru/autogifts/internal/features/pool"
)

// panelData — то, что показывает главный экран панели.
type panelData struct {
	Lots        int
	Balance     int64
	Active      int
	Total       int
	AutoRefunds bool
	ActiveLots  bool
	Running     bool
}

func button(text string, cb Callback) telego.InlineKeyboardButton {
	return tu.InlineKeyboardButton(text).WithCallbackData(cb.String())
}

func singleButton(text string, cb Callback) *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(tu.InlineKeyboardRow(button(text, cb)))
}

func backToSettings() *telego.InlineKeyboardMarkup {
	return singleButton("🔙 Вернуться в настройки", Callback{Action: ActionSettings})
}

func backToLots(text string) *telego.InlineKeyboardMarkup {
	return singleButton(text, Callback{Action: ActionLots})
}

func flag(on bool) string {
	if on {
		return "🟢"
	}
	return "🔴"
}

func panelView(d panelData) (string, *telego.InlineKeyboardMarkup) {
	running := "выключена"
	if d.Running {
		running = "включена"
	}
	text := fmt.Sprintf(
		"<b>⚙️ Auto Gifts — панель управления</b>\n\n"+
			"🚦 <b>Автовыдача:</b> %s\n"+
			"📦 <b>Всего лотов:</b> %d\n"+
			"🌟 <b>Баланс звёзд (активная сессия):</b> %s\n"+
			"📡 <b>Активных сессий:</b> %d/%d",
		running, d.Lots, common.FormatNumber(d.Balance), d.Active, d.Total,
	)

	kb := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			button("🛠️ Управление лотами", Callback{Action: ActionLots}),
			button("📥 Загрузить лоты", Callback{Action: ActionUpload}),
		),
		tu.InlineKeyboardRow(
			button(flag(d.AutoRefunds)+" Автовозвраты", Callback{Action: ActionRefunds}),
			button(flag(d.ActiveLots)+" Лоты активны", Callback{Action: ActionListings}),
		),
		tu.InlineKeyboardRow(
			button("➕ Новый лот", Callback{Action: ActionAddLot}),
			button("📊 Статистика", Callback{Action: ActionStatistics}),
		),
		tu.InlineKeyboardRow(
			button("📡 Статус сессий", Callback{Action: ActionSessions}),
		),
	)
	return text, kb
}

const lotsTitle = "📂 Выбери лот:"

func lotsKeyboard(page catalog.Page) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(page.Lots)+2)
	for _, lot := range page.Lots {
		text := fmt.Sprintf("%s [ID=%d, Name=%s]", lot.Name, lot.GiftID, lot.GiftName)
		rows = append(rows, tu.InlineKeyboardRow(button(text, Callback{Action: ActionLot, Arg: lot.Key})))
	}

	var nav []telego.InlineKeyboardButton
	if page.HasPrev {
		nav = append(nav, button("⬅️", Callback{Action: ActionPage, Arg: fmt.Sprint(page.Number - 1)}))
	}
	if page.HasNext {
		nav = append(nav, button("➡️", Callback{Action: ActionPage, Arg: fmt.Sprint(page.Number + 1)}))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}

	rows = append(rows, tu.InlineKeyboardRow(button("🔙 Назад", Callback{Action: ActionSettings})))
	return tu.InlineKeyboard(rows...)
}

func lotView(lot catalog.LotDefinition) (string, *telego.InlineKeyboardMarkup) {
	text := fmt.Sprintf(
		"<b>%s</b>\nНазвание: <code>%s</code>\nGIFT ID:  <code>%d</code>\nGIFT NAME: <code>%s</code>",
		lot.Key, common.EscapeHTML(lot.Name), lot.GiftID, common.EscapeHTML(lot.GiftName),
	)
	kb := tu.InlineKeyboard(
		tu.InlineKeyboardRow(button("✏️ Переименовать лот", Callback{Action: ActionRename, Arg: lot.Key})),
		tu.InlineKeyboardRow(button("🆔 Изменить GIFT ID", Callback{Action: ActionGiftID, Arg: lot.Key})),
		tu.InlineKeyboardRow(button("🏷 Изменить GIFT NAME", Callback{Action: ActionGiftName, Arg: lot.Key})),
		tu.InlineKeyboardRow(button("🗑 Удалить лот", Callback{Action: ActionDelete, Arg: lot.Key})),
		tu.InlineKeyboardRow(button("🔙 Назад к списку", Callback{Action: ActionLots})),
	)
	return text, kb
}

func statsWindow(b *strings.Builder, title string, w ledger.Window) {
	top := w.TopLot
	if top == "" {
		top = "Нет"
	}
	fmt.Fprintf(b, "%s\n", title)
	fmt.Fprintf(b, "• 🔥 Заказов: <b>%d</b>\n", w.Count)
	fmt.Fprintf(b, "• 💸 Сумма: %s\n", common.FormatRubles(w.Total.Round(2)))
	fmt.Fprintf(b, "• 💰 Прибыль: <b>%s</b>\n", common.FormatRubles(w.Profit.Round(2)))
	fmt.Fprintf(b, "• 🌟 Топ товар: <code>%s</code>\n", common.EscapeHTML(top))
}

func statsView(s ledger.Summary) string {
	if s.All.Count == 0 {
		return "📭 Статистика пуста!\nПока нет данных по заказам."
	}
	var b strings.Builder
	b.WriteString("<b>📊 Статистика заказов</b>\n\n")
	statsWindow(&b, "📅 <b>За 24 часа:</b>", s.Day)
	b.WriteString("\n")
	statsWindow(&b, "📆 <b>За неделю:</b>", s.Week)
	b.WriteString("\n")
	statsWindow(&b, "🗓 <b>За месяц:</b>", s.Month)
	b.WriteString("\n")
	statsWindow(&b, "📦 <b>За всё время:</b>", s.All)
	return strings.TrimSpace(b.String())
}

// sessionsView — статус сессий. current — сессия, с которой начнётся следующий выбор.
func sessionsView(identities []pool.Identity, current string) string {
	var b strings.Builder
	b.WriteString("<b>📡 Статус сессий</b>\n\n")
	if len(identities) == 0 {
		b.WriteString("Сессий нет.")
		return b.String()
	}
	for _, id := range identities {
		status := "🔴 Неактивна"
		if id.Active {
			status = "🟢 Активна"
		}
		marker := ""
		if id.Name == current {
			marker = " (Текущая)"
		}
		fmt.Fprintf(&b, "📌 <b>%s%s</b>\n", id.Name, marker)
		fmt.Fprintf(&b, "   %s\n", status)
		fmt.Fprintf(&b, "   🌟 Баланс: %s\n", common.FormatStars(id.Balance))
		fmt.Fprintf(&b, "   🎁 Подарков отправлено: %s\n", common.FormatNumber(id.GiftsSent))
		fmt.Fprintf(&b, "   💸 Общая стоимость: %s\n\n", common.FormatStars(id.TotalCost))
	}
	return strings.TrimSpace(b.String())
}
