package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/stars_a.session/balance", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"balance": 420})
	})
	mux.HandleFunc("GET /sessions/stars_a.session/gifts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "price": 15}, {"id": 2, "price": 50}})
	})
	mux.HandleFunc("GET /sessions/stars_a.session/peers/{handle}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("handle") == "ghost" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "USERNAME_NOT_OCCUPIED"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"kind": "private", "display_name": "Alice"})
	})
	mux.HandleFunc("POST /sessions/stars_a.session/gifts/send", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.GiftID {
		case 2:
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "STARGIFT_USAGE_LIMITED", "message": "sold out"})
		case 3:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "FLOOD_WAIT", "message": "wait 30"})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSessionClient(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, "tok", 5*time.Second).Session("stars_a.session")
	ctx := context.Background()

	balance, err := c.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(420), balance)

	gifts, err := c.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Gift{{ID: 1, Price: 15}, {ID: 2, Price: 50}}, gifts)

	peer, err := c.ResolveHandle(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, peer.AcceptsGifts())
	assert.Equal(t, "Alice", peer.DisplayName)

	_, err = c.ResolveHandle(ctx, "ghost")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestSendGiftErrors(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, "tok", 5*time.Second).Session("stars_a.session")
	ctx := context.Background()

	require.NoError(t, c.SendGift(ctx, SendRequest{ChatID: "alice", GiftID: 1}))

	err := c.SendGift(ctx, SendRequest{ChatID: "alice", GiftID: 2})
	assert.ErrorIs(t, err, ErrSoldOut)

	err = c.SendGift(ctx, SendRequest{ChatID: "alice", GiftID: 3})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSoldOut))
	assert.Contains(t, err.Error(), "FLOOD_WAIT")
}

func TestPeerAcceptsGifts(t *testing.T) {
	assert.True(t, Peer{Kind: PeerChannel}.AcceptsGifts())
	assert.False(t, Peer{Kind: PeerGroup}.AcceptsGifts())
	assert.False(t, Peer{Kind: PeerSupergroup}.AcceptsGifts())
	assert.False(t, Peer{Kind: PeerBot}.AcceptsGifts())
}

func TestDiscoverSessions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"stars_b.session", "stars_a.session", "other.session", "stars_c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "stars_d.session"), 0o700))

	refs, err := DiscoverSessions(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"stars_a.session", "stars_b.session"}, refs)
}
