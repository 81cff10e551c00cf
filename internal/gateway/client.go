package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Client — удалённые возможности одной сессии Telegram-аккаунта.
type Client interface {
	Balance(ctx context.Context) (int64, error)
	Catalog(ctx context.Context) ([]Gift, error)
	ResolveHandle(ctx context.Context, handle string) (Peer, error)
	SendGift(ctx context.Context, req SendRequest) error
}

// Gateway держит один HTTP-клиент на все сессии.
type Gateway struct {
	http *resty.Client
}

// New создаёт клиента шлюза. Таймаут ограничивает каждый удалённый вызов.
func New(baseURL, token string, timeout time.Duration) *Gateway {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &Gateway{http: rc}
}

// Session возвращает клиента для сессии с указанным файлом/ссылкой.
func (g *Gateway) Session(credentialRef string) Client {
	return &sessionClient{http: g.http, ref: credentialRef}
}

type sessionClient struct {
	http *resty.Client
	ref  string
}

func (c *sessionClient) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetPathParam("ref", c.ref).
		SetError(&APIError{})
}

func (c *sessionClient) Balance(ctx context.Context) (int64, error) {
	var out balanceResponse
	resp, err := c.request(ctx).SetResult(&out).Get("/sessions/{ref}/balance")
	if err := check(resp, err); err != nil {
		return 0, fmt.Errorf("баланс %s: %w", c.ref, err)
	}
	return out.Balance, nil
}

func (c *sessionClient) Catalog(ctx context.Context) ([]Gift, error) {
	var out []Gift
	resp, err := c.request(ctx).SetResult(&out).Get("/sessions/{ref}/gifts")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("каталог %s: %w", c.ref, err)
	}
	return out, nil
}

func (c *sessionClient) ResolveHandle(ctx context.Context, handle string) (Peer, error) {
	var out Peer
	resp, err := c.request(ctx).
		SetPathParam("handle", handle).
		SetResult(&out).
		Get("/sessions/{ref}/peers/{handle}")
	if err := check(resp, err); err != nil {
		return Peer{}, fmt.Errorf("поиск @%s: %w", handle, err)
	}
	return out, nil
}

func (c *sessionClient) SendGift(ctx context.Context, req SendRequest) error {
	resp, err := c.request(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(req).
		Post("/sessions/{ref}/gifts/send")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("отправка подарка %d: %w", req.GiftID, err)
	}
	return nil
}

// check превращает ответ шлюза в ошибку.
// Распроданный подарок всегда даёт ErrSoldOut.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	apiErr, _ := resp.Error().(*APIError)
	if apiErr == nil {
		apiErr = &APIError{}
	}
	apiErr.Status = resp.StatusCode()
	if apiErr.Code == codeSoldOut || resp.StatusCode() == http.StatusGone {
		return fmt.Errorf("%w: %s", ErrSoldOut, apiErr.Error())
	}
	return apiErr
}

// DiscoverSessions ищет файлы stars_*.session в каталоге сессий.
func DiscoverSessions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("каталог сессий %s: %w", dir, err)
	}
	var refs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "stars_") || filepath.Ext(name) != ".session" {
			continue
		}
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs, nil
}
