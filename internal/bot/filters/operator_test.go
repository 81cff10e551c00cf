package filters

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
)

type staticOperators map[int64]bool

func (s staticOperators) IsOperator(userID int64) bool { return s[userID] }

func TestOperatorFilter(t *testing.T) {
	f := NewOperatorFilter(staticOperators{1: true})

	private := func(userID int64) *telego.Message {
		return &telego.Message{
			From: &telego.User{ID: userID},
			Chat: telego.Chat{ID: userID, Type: telego.ChatTypePrivate},
		}
	}

	assert.True(t, f.CheckAccess(private(1)))
	assert.False(t, f.CheckAccess(private(2)))
	assert.True(t, f.CheckPrivate(private(2)))

	group := &telego.Message{
		From: &telego.User{ID: 1},
		Chat: telego.Chat{ID: -100500, Type: telego.ChatTypeSupergroup},
	}
	assert.False(t, f.CheckAccess(group))
	assert.False(t, f.CheckPrivate(&telego.Message{Chat: telego.Chat{ID: 1, Type: telego.ChatTypePrivate}}))
	assert.False(t, f.CheckPrivate(nil))
}
