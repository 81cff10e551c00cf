package fulfillment

import (
	"fmt"
	"time"

	"serotonyl.ru/autogifts/internal/common"
)

// Сообщения покупателю.
const (
	msgInvalidHandle = "🐒 Юзернейм не распознан!\nДолжен быть в формате @username.\nПопробуй ещё раз 👇"
	msgUnresolved    = "🐒 Юзернейм не распознан!\nВспоминаем: должен быть знак @ и ник.\nВот так правильно: @example\nПопробуй ещё раз 👇"
	msgNoSessions    = "❌ Нет доступных сессий для обработки заказа. Свяжитесь с продавцом."
	msgAskAgain      = "📍 Отправьте ещё раз ваш @username"
	msgCommentLong   = "❌ Комментарий слишком длинный (максимум 200 символов). Попробуйте снова или отправьте '+' для отправки."
	msgAutoRefund    = "❌ Баланса не хватило для оплаты, поэтому был осуществлён возврат средств. Приносим свои искренние извинения."
	msgManualRefund  = "❌ Баланса не хватило для оплаты, возврат средств требует ручного подтверждения. Напишите #help чтобы позвать продавца."
	msgSoldOut       = "❌ Этот подарок распродан! Напишите #help для связи с продавцом."
	msgNoCapacity    = "❌ Нет активных сессий для отправки подарков. Свяжитесь с продавцом."
)

// Сообщения операторам.
const (
	noticeLotsDeactivated = "✅ Звёзды закончились, лоты успешно деактивированы"
)

func orderAcceptedText(orderID string, quantity int64, giftName string) string {
	return fmt.Sprintf(
		"🎉 Заказ #%s принят!\n"+
			"%d %s (%s) готово к выдаче.\n\n"+
			"Отправьте свой Telegram юзернейм (например: @username), чтобы я знал, куда всё отправить 🍀\n",
		orderID, quantity, common.PluralizeGifts(quantity), giftName)
}

func summaryText(s *Session) string {
	if s.Comment == "" {
		return fmt.Sprintf(
			"🔎 Проверим заказ перед отправкой:\n\n"+
				"👤 Username: @%s\n"+
				"🏷️ Отображаемое имя: %s\n"+
				"🎉 Подарков: %d шт. по %d ⭐️ каждый\n"+
				"🎁 Тип подарка: %s\n"+
				"💬 Комментарии: *комментарии нет, подарок отправляется анонимно*\n\n"+
				"✅ Всё верно? ➡️ Отправьте +\n"+
				"✏️ Нужно изменить данные? Отправь -\n"+
				"💬 Если хотите отправить подарок с комментарием (до 200 символов) и не анонимно, напишите его.",
			s.Handle, s.DisplayName, s.Quantity, s.UnitPrice, s.GiftName)
	}
	return fmt.Sprintf(
		"🔎 Подарок уже готов к выдаче - осталось проверить и подтвердить:\n\n"+
			"👤 Username: @%s\n"+
			"🏷️ Отображаемое имя: %s\n"+
			"🎉 Подарков: %d шт. по %d ⭐️ каждый\n"+
			"🎁 Тип подарка: %s\n"+
			"💬 Комментарий: %s\n\n"+
			"✅ Всё правильно? ➡️ Отправьте +\n"+
			"✏️ Нужно изменить данные? Отправь - \n"+
			"💬 Если хотите изменить комментарии - просто напишите его еще раз",
		s.Handle, s.DisplayName, s.Quantity, s.UnitPrice, s.GiftName, s.Comment)
}

func successText(anonymous bool, orderURL string) string {
	mode := "открыто"
	if anonymous {
		mode = "в приватном режиме"
	}
	return fmt.Sprintf(
		"✅ Готово! Подарки успешно отправлены %s 🎉\n"+
			"💬 Не забудь подтвердить заказ и оставить отзыв — это важно!\n\n"+
			"🔗 Ссылка для подтверждения:\n%s",
		mode, orderURL)
}

func completedNotice(s *Session, orderURL, identity string, finished time.Time, loc *time.Location) string {
	comment := "Рандомный (анонимно)"
	if s.Comment != "" {
		comment = common.EscapeHTML(s.Comment)
	}
	return fmt.Sprintf(
		"🎉 Заказ <a href='%s'>%s</a> выполнен!\n\n"+
			"👤 <b>Username:</b> @%s\n"+
			"📝 <b>Ник в системе:</b> %s\n"+
			"🎁 <b>Подарков:</b> %d × %d ⭐️ (%s)\n"+
			"💬 <b>Комментарий:</b> %s\n"+
			"💸 <b>Оплачено:</b> %s\n"+
			"💰 <b>Чистый профит:</b> %s\n\n"+
			"⏳ <b>Добавлен в очередь:</b> <code>%s</code>\n"+
			"✅ <b>Завершён:</b> <code>%s</code>\n"+
			"📡 <b>Сессия:</b> %s",
		orderURL, common.EscapeHTML(s.OrderID),
		s.Handle,
		common.EscapeHTML(s.DisplayName),
		s.Quantity, s.UnitPrice, common.EscapeHTML(s.GiftName),
		comment,
		common.FormatRubles(s.Paid),
		common.FormatRubles(s.Profit),
		common.FormatClock(s.CreatedAt.In(loc)),
		common.FormatClock(finished.In(loc)),
		identity)
}

func priceUnknownText(orderID string) string {
	return fmt.Sprintf("❌ Ошибка при обработке заказа #%s: не удалось определить стоимость подарка. Свяжитесь с продавцом.", orderID)
}

func orderErrorText(orderID string, err error) string {
	return fmt.Sprintf("❌ Произошла ошибка при обработке заказа #%s. Свяжитесь с продавцом.\nПодробности: %v", orderID, err)
}

func manualRefundNotice(orderID, orderURL string) string {
	return fmt.Sprintf("⚠️ Требуется ручной возврат средств для заказа #%s\n🔗 Перейдите по ссылке, чтобы вернуть деньги: %s", orderID, orderURL)
}

func refundFailedNotice(orderID, orderURL string, err error) string {
	return fmt.Sprintf("⚠️ Автовозврат для заказа #%s не прошёл: %s\n🔗 Верните деньги вручную: %s",
		orderID, common.EscapeHTML(err.Error()), orderURL)
}

func idleExpiredText(orderID string) string {
	return fmt.Sprintf("⌛ Заказ #%s: время ожидания истекло. Напишите #help, чтобы продавец выдал подарки вручную.", orderID)
}

func idleExpiredNotice(orderID, orderURL string) string {
	return fmt.Sprintf("⌛ Заказ <a href='%s'>#%s</a> закрыт по бездействию покупателя, подарки не выданы.", orderURL, orderID)
}
