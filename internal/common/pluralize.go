// Package common — pluralize.go содержит вспомогательные функции
// для вывода количеств и денежных сумм в сообщениях.
package common

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FormatStars создаёт строку вида "150 звёзд".
//
//	FormatStars(1)   → "1 звезда"
//	FormatStars(250) → "250 звёзд"
func FormatStars(amount int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(amount), PluralizeStars(amount))
}

// FormatRubles создаёт строку вида "1 250.5 ₽".
func FormatRubles(d decimal.Decimal) string {
	whole := d.Truncate(0)
	frac := d.Sub(whole).Abs()
	s := FormatNumber(whole.IntPart())
	if d.IsNegative() && whole.IsZero() {
		s = "-" + s
	}
	if !frac.IsZero() {
		s += frac.String()[1:]
	}
	return s + " ₽"
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	rest := n / 1000
	last := n % 1000
	return fmt.Sprintf("%s %03d", FormatNumber(rest), last)
}
