package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()
	tests := []struct {
		text    string
		cmd     string
		args    []string
		command bool
	}{
		{"/start_gifts", "start_gifts", nil, true},
		{"/auto_gifts_settings@AutoGiftsBot", "auto_gifts_settings", nil, true},
		{"/login  my pass ", "login", []string{"my", "pass"}, true},
		{"!STOP_GIFTS", "stop_gifts", nil, true},
		{"/", "", nil, false},
		{"@durov", "", nil, false},
		{"12345", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, args, ok := p.ParseCommand(tt.text)
			assert.Equal(t, tt.command, ok)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.args, args)
		})
	}
}

type recordingSender struct {
	chats []int64
	texts []string
	fail  map[int64]bool
}

func (s *recordingSender) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	if s.fail[p.ChatID.ID] {
		return nil, errors.New("bot was blocked by the user")
	}
	s.chats = append(s.chats, p.ChatID.ID)
	s.texts = append(s.texts, p.Text)
	return &telego.Message{}, nil
}

func TestNotifyOperators(t *testing.T) {
	sender := &recordingSender{fail: map[int64]bool{2: true}}
	operators := []int64{1, 2, 3}
	n := NewOperatorNotifier(sender, func() []int64 { return operators })

	n.NotifyOperators(context.Background(), "<b>Сессия stars_1 отключена</b>")
	require.Equal(t, []int64{1, 3}, sender.chats)
	assert.Equal(t, "<b>Сессия stars_1 отключена</b>", sender.texts[0])

	// Новые операторы подхватываются без перезапуска
	operators = append(operators, 4)
	n.NotifyOperators(context.Background(), "ok")
	assert.Equal(t, []int64{1, 3, 1, 3, 4}, sender.chats)
}
