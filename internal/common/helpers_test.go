package common

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPluralizeStars(t *testing.T) {
	cases := map[int64]string{
		0:   "звёзд",
		1:   "звезда",
		2:   "звезды",
		5:   "звёзд",
		11:  "звёзд",
		21:  "звезда",
		112: "звёзд",
		-3:  "звезды",
	}
	for n, want := range cases {
		assert.Equal(t, want, PluralizeStars(n), "n=%d", n)
	}
}

func TestPluralizeGifts(t *testing.T) {
	assert.Equal(t, "подарок", PluralizeGifts(1))
	assert.Equal(t, "подарка", PluralizeGifts(2))
	assert.Equal(t, "подарков", PluralizeGifts(12))
}

func TestSanitizeComment(t *testing.T) {
	assert.Equal(t, `привет \*мир\* \_ok\_`, SanitizeComment("при|вет [*мир*] <_ok_>"))

	long := strings.Repeat("я", 250)
	assert.Equal(t, MaxCommentLength, RuneLen(SanitizeComment(long)))

	exact := strings.Repeat("a", MaxCommentLength)
	assert.Equal(t, exact, SanitizeComment(exact))
}

func TestCleanDisplayName(t *testing.T) {
	assert.Equal(t, "не указано", CleanDisplayName(""))
	assert.Equal(t, `Alice \_A\_`, CleanDisplayName("  <Alice _A_>  "))
	assert.Equal(t, 100, RuneLen(CleanDisplayName(strings.Repeat("б", 150))))
}

func TestDefaultGiftText(t *testing.T) {
	text := DefaultGiftText()
	assert.True(t, strings.HasPrefix(text, "Ваш подарок! "))
	assert.Contains(t, giftEmojis, strings.TrimPrefix(text, "Ваш подарок! "))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "2 350", FormatNumber(2350))
	assert.Equal(t, "1 000 001", FormatNumber(1000001))
	assert.Equal(t, "-12 000", FormatNumber(-12000))
}

func TestFormatRubles(t *testing.T) {
	assert.Equal(t, "1 250.5 ₽", FormatRubles(decimal.RequireFromString("1250.5")))
	assert.Equal(t, "100 ₽", FormatRubles(decimal.NewFromInt(100)))
	assert.Equal(t, "-0.3 ₽", FormatRubles(decimal.RequireFromString("-0.3")))
	assert.Equal(t, "150 звёзд", FormatStars(150))
}
