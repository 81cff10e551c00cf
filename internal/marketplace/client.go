package marketplace

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client — HTTP-клиент площадки.
type Client struct {
	http     *resty.Client
	orderURL string
	selfID   int64
}

// New создаёт клиента. orderURL — шаблон ссылки на заказ с одним %s.
func New(baseURL, token string, selfID int64, orderURL string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetError(&APIError{})
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &Client{http: rc, orderURL: orderURL, selfID: selfID}
}

// SelfID — идентификатор аккаунта продавца на площадке.
func (c *Client) SelfID() int64 { return c.selfID }

// OrderURL возвращает ссылку на страницу заказа.
func (c *Client) OrderURL(orderID string) string {
	return fmt.Sprintf(c.orderURL, orderID)
}

// SendMessage пишет в чат с покупателем.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("chat", chatID).
		SetBody(map[string]string{"text": text}).
		Post("/chats/{chat}/messages")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("сообщение в чат %s: %w", chatID, err)
	}
	return nil
}

// Refund возвращает деньги за заказ.
func (c *Client) Refund(ctx context.Context, orderID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("order", orderID).
		Post("/orders/{order}/refund")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("возврат заказа %s: %w", orderID, err)
	}
	return nil
}

// GetLotFields читает форму лота.
func (c *Client) GetLotFields(ctx context.Context, lotID int64) (LotFields, error) {
	var out LotFields
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("lot", strconv.FormatInt(lotID, 10)).
		SetResult(&out).
		Get("/lots/{lot}/fields")
	if err := check(resp, err); err != nil {
		return LotFields{}, fmt.Errorf("поля лота %d: %w", lotID, err)
	}
	out.LotID = lotID
	return out, nil
}

// SaveLotFields сохраняет форму лота.
func (c *Client) SaveLotFields(ctx context.Context, fields LotFields) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("lot", strconv.FormatInt(fields.LotID, 10)).
		SetBody(fields).
		Post("/lots/{lot}/fields")
	if err := check(resp, err); err != nil {
		return fmt.Errorf("сохранение лота %d: %w", fields.LotID, err)
	}
	return nil
}

// ListCategoryLots возвращает лоты продавца в категории.
func (c *Client) ListCategoryLots(ctx context.Context, categoryID int64) ([]Listing, error) {
	var out []Listing
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("category", strconv.FormatInt(categoryID, 10)).
		SetResult(&out).
		Get("/categories/{category}/lots")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("лоты категории %d: %w", categoryID, err)
	}
	return out, nil
}

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
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}
