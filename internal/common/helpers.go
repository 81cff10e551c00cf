// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, работа с временем, очистка текста.
package common

import (
	"html"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// LedgerTimeLayout — формат даты в журнале заказов.
const LedgerTimeLayout = "2006-01-02 15:04:05"

// MaxCommentLength — максимальная длина комментария к подарку (в символах).
const MaxCommentLength = 200

// maxDisplayNameLength — максимальная длина отображаемого имени получателя.
const maxDisplayNameLength = 100

// pluralize выбирает форму слова по правилам русского языка.
//
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralize(n int64, one, few, many string) string {
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeStars возвращает правильную форму слова «звезда» для числа n.
//
//	PluralizeStars(1)  → "звезда"
//	PluralizeStars(3)  → "звезды"
//	PluralizeStars(11) → "звёзд"
func PluralizeStars(n int64) string {
	return pluralize(n, "звезда", "звезды", "звёзд")
}

// PluralizeGifts возвращает правильную форму слова «подарок».
func PluralizeGifts(n int64) string {
	return pluralize(n, "подарок", "подарка", "подарков")
}

// FormatClock форматирует время как "15:04:05" для сводки заказа.
func FormatClock(t time.Time) string {
	return t.Format("15:04:05")
}

// markupStripper удаляет символы, ломающие разметку Telegram.
var markupStripper = strings.NewReplacer("|", "", "[", "", "]", "", "<", "", ">", "")

// markupEscaper экранирует символы Markdown.
var markupEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`")

// SanitizeComment очищает комментарий покупателя перед отправкой подарка.
// Результат обрезается до 200 символов.
func SanitizeComment(text string) string {
	text = markupEscaper.Replace(markupStripper.Replace(text))
	return truncateRunes(text, MaxCommentLength)
}

// CleanDisplayName очищает отображаемое имя получателя.
// Пустое имя превращается в "не указано".
func CleanDisplayName(name string) string {
	if name == "" {
		return "не указано"
	}
	name = markupEscaper.Replace(markupStripper.Replace(name))
	return truncateRunes(strings.TrimSpace(name), maxDisplayNameLength)
}

// giftEmojis — набор эмодзи для подписи подарка без комментария.
var giftEmojis = []string{
	"🎉", "🎁", "🌟", "😊", "💖", "🎈", "🥳", "🚀", "🍀", "🌸", "🔥", "🍓", "🧁",
	"🎶", "🎯", "💎", "🍿", "🎨", "🧸", "💡", "🥂", "🌈", "🍾", "🎂", "🌼",
}

// DefaultGiftText возвращает подпись подарка, когда покупатель не оставил комментарий.
func DefaultGiftText() string {
	return "Ваш подарок! " + giftEmojis[rand.IntN(len(giftEmojis))]
}

// EscapeHTML экранирует пользовательский текст для сообщений с ParseMode HTML.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// RuneLen возвращает длину строки в символах.
func RuneLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
