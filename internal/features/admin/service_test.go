package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/autogifts/internal/common"
)

type memDocs struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string][]byte)}
}

func (m *memDocs) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[name], nil
}

func (m *memDocs) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = data
	return nil
}

// hashPassword — тот же формат, что печатает scripts/generate_hash.go, но с лёгкими параметрами.
func hashPassword(t *testing.T, password string) string {
	t.Helper()
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)
	hash := argon2.IDKey([]byte(password), salt, 1, 64, 1, 32)
	return fmt.Sprintf("$argon2id$v=19$m=64,t=1,p=1$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(hash))
}

func TestVerifyArgon2id(t *testing.T) {
	hash := hashPassword(t, "secret")
	assert.True(t, verifyArgon2id("secret", hash))
	assert.False(t, verifyArgon2id("Secret", hash))
	assert.False(t, verifyArgon2id("secret", "not-a-hash"))
}

func TestLoginPersistsOperator(t *testing.T) {
	docs := newMemDocs()
	svc := NewService(NewRepository(docs), []int64{1}, hashPassword(t, "secret"))
	ctx := context.Background()

	assert.True(t, svc.IsOperator(1))
	assert.False(t, svc.IsOperator(42))

	require.NoError(t, svc.Login(ctx, 42, " secret "))
	assert.True(t, svc.IsOperator(42))
	assert.Equal(t, []int64{1, 42}, svc.Operators())
	assert.JSONEq(t, `[42]`, string(docs.docs[operatorsDocument]))

	// После перезапуска оператор остаётся
	restarted := NewService(NewRepository(docs), []int64{1}, "")
	require.NoError(t, restarted.Load(ctx))
	assert.True(t, restarted.IsOperator(42))
}

func TestLoginLockout(t *testing.T) {
	svc := NewService(NewRepository(newMemDocs()), nil, hashPassword(t, "secret"))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		assert.ErrorIs(t, svc.Login(ctx, 7, "wrong"), common.ErrWrongPassword)
	}
	assert.ErrorIs(t, svc.Login(ctx, 7, "secret"), common.ErrTooManyAttempts)
	assert.False(t, svc.IsOperator(7))

	// Другой пользователь не заблокирован
	require.NoError(t, svc.Login(ctx, 8, "secret"))

	now = now.Add(time.Hour + time.Minute)
	require.NoError(t, svc.Login(ctx, 7, "secret"))
	assert.True(t, svc.IsOperator(7))
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	svc := NewService(NewRepository(newMemDocs()), nil, "")
	assert.ErrorIs(t, svc.Login(context.Background(), 7, "anything"), common.ErrLoginDisabled)
}

func TestStateExpires(t *testing.T) {
	svc := NewService(NewRepository(newMemDocs()), nil, "")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.SetState(1, StateRenameLot, "lot_2", nil)
	state := svc.GetState(1)
	require.NotNil(t, state)
	assert.Equal(t, "lot_2", state.LotKey)

	now = now.Add(stateTTL + time.Second)
	assert.Nil(t, svc.GetState(1))

	svc.SetState(1, StateAddLotID, "", nil)
	svc.ClearState(1)
	assert.Nil(t, svc.GetState(1))
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data string
		want Callback
	}{
		{"settings", Callback{Action: ActionSettings}},
		{"lot:lot_3", Callback{Action: ActionLot, Arg: "lot_3"}},
		{"page:2", Callback{Action: ActionPage, Arg: "2"}},
		{"", Callback{}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got := ParseCallback(tt.data)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.data, got.String())
		})
	}
}
