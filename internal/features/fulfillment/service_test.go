package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/autogifts/internal/features/catalog"
	"serotonyl.ru/autogifts/internal/features/delivery"
	"serotonyl.ru/autogifts/internal/features/ledger"
	"serotonyl.ru/autogifts/internal/features/pool"
	"serotonyl.ru/autogifts/internal/gateway"
	"serotonyl.ru/autogifts/internal/marketplace"
)

const (
	buyerID     = int64(7)
	buyerChat   = "chat-7"
	sellerID    = int64(999)
	roseGiftID  = int64(5170145012310081615)
	description = "🔮Роза, 1 шт. | ПОДАРОК НА АККАУНТ ПО USERNAME"
)

// --- фейки ---

type memDocs struct {
	mu   sync.Mutex
	docs map[string][]byte
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

type fakeClient struct {
	mu      sync.Mutex
	balance int64
	gifts   []gateway.Gift
	peers   map[string]gateway.Peer
	sendErr error
	sent    []gateway.SendRequest
}

func (f *fakeClient) Balance(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeClient) Catalog(context.Context) ([]gateway.Gift, error) {
	return f.gifts, nil
}

func (f *fakeClient) ResolveHandle(_ context.Context, handle string) (gateway.Peer, error) {
	p, ok := f.peers[handle]
	if !ok {
		return gateway.Peer{}, errors.New("USERNAME_NOT_OCCUPIED")
	}
	return p, nil
}

func (f *fakeClient) SendGift(_ context.Context, req gateway.SendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, req)
	return nil
}

type fakeCatalog struct {
	autoRefunds bool
	activeLots  *bool
}

func (c *fakeCatalog) Resolve(desc string) (catalog.LotDefinition, bool) {
	if strings.Contains(desc, "🔮Роза") && strings.Contains(desc, "ПОДАРОК НА АККАУНТ") {
		return catalog.LotDefinition{Key: "lot_1", Name: "🔮Роза |", GiftID: roseGiftID, GiftName: "Роза 🌹"}, true
	}
	return catalog.LotDefinition{}, false
}

func (c *fakeCatalog) AutoRefunds() bool { return c.autoRefunds }

func (c *fakeCatalog) SetActiveLots(_ context.Context, active bool) error {
	c.activeLots = &active
	return nil
}

type fakeListings struct {
	active bool
	calls  int
}

func (l *fakeListings) IsActive(context.Context) (bool, error) { return l.active, nil }

func (l *fakeListings) SetActive(_ context.Context, active bool) (int, error) {
	l.calls++
	l.active = active
	return 3, nil
}

type chatMessage struct {
	chat, text string
}

type fakeMarket struct {
	mu       sync.Mutex
	messages []chatMessage
	refunds  []string
}

func (m *fakeMarket) SendMessage(_ context.Context, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, chatMessage{chatID, text})
	return nil
}

func (m *fakeMarket) Refund(_ context.Context, orderID string) error {
	m.refunds = append(m.refunds, orderID)
	return nil
}

func (m *fakeMarket) OrderURL(orderID string) string {
	return fmt.Sprintf("https://funpay.com/orders/%s/", orderID)
}

func (m *fakeMarket) SelfID() int64 { return sellerID }

func (m *fakeMarket) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return ""
	}
	return m.messages[len(m.messages)-1].text
}

func (m *fakeMarket) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) NotifyOperators(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func (n *recordingNotifier) contains(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range n.texts {
		if strings.Contains(t, sub) {
			return true
		}
	}
	return false
}

// --- стенд ---

type harness struct {
	svc      *Service
	client   *fakeClient
	catalog  *fakeCatalog
	listings *fakeListings
	market   *fakeMarket
	notifier *recordingNotifier
	ledger   *ledger.Service
}

func newHarness(t *testing.T, balance int64) *harness {
	t.Helper()
	client := &fakeClient{
		balance: balance,
		gifts:   []gateway.Gift{{ID: 1, Price: 15}, {ID: roseGiftID, Price: 50}},
		peers: map[string]gateway.Peer{
			"alice":   {Kind: gateway.PeerPrivate, DisplayName: "Alice"},
			"news":    {Kind: gateway.PeerChannel, DisplayName: "News"},
			"chatter": {Kind: gateway.PeerGroup, DisplayName: "Group"},
		},
	}
	notifier := &recordingNotifier{}
	docs := &memDocs{docs: map[string][]byte{}}
	identities := pool.NewService([]string{"a.session"}, func(string) gateway.Client { return client }, pool.NewRepository(docs), notifier)
	journal := ledger.NewService(ledger.NewDocumentRepository(docs))

	h := &harness{
		client:   client,
		catalog:  &fakeCatalog{},
		listings: &fakeListings{active: true},
		market:   &fakeMarket{},
		notifier: notifier,
		ledger:   journal,
	}
	h.svc = NewService(Deps{
		Catalog:   h.catalog,
		Pool:      identities,
		Deliverer: delivery.NewExecutor(identities, 0),
		Ledger:    journal,
		Listings:  h.listings,
		Market:    h.market,
		Notifier:  notifier,
	}, Options{
		Pricing: ledger.Pricing{
			StarRate:      decimal.RequireFromString("1.16"),
			FeeMultiplier: decimal.RequireFromString("1.06"),
		},
		IdleTimeout: time.Hour,
		Location:    time.UTC,
		Running:     true,
	})
	return h
}

func (h *harness) order(t *testing.T, id string, amount int64, price string) {
	t.Helper()
	require.NoError(t, h.svc.HandleOrder(context.Background(), marketplace.Order{
		ID:          id,
		Description: description,
		Price:       decimal.RequireFromString(price),
		Amount:      amount,
		BuyerID:     buyerID,
		ChatID:      buyerChat,
	}))
}

func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, h.svc.HandleMessage(context.Background(), marketplace.Message{
		AuthorID: buyerID,
		ChatID:   buyerChat,
		Text:     text,
	}))
}

func (h *harness) session(t *testing.T) (Session, bool) {
	t.Helper()
	for _, s := range h.svc.Snapshot() {
		if s.BuyerID == buyerID {
			return s, true
		}
	}
	return Session{}, false
}

// --- тесты ---

func TestEndToEndDelivery(t *testing.T) {
	h := newHarness(t, 1000)

	h.order(t, "100", 2, "200")
	sess, ok := h.session(t)
	require.True(t, ok)
	assert.Equal(t, StepAwaitUsername, sess.Step)
	assert.Equal(t, int64(50), sess.UnitPrice)
	assert.Contains(t, h.market.last(), "🎉 Заказ #100 принят!")
	assert.Contains(t, h.market.last(), "2 подарка (Роза 🌹)")

	records, err := h.ledger.Aggregate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, records.All.Count)
	assert.Equal(t, "77", records.All.Profit.String())

	h.say(t, "@alice")
	sess, ok = h.session(t)
	require.True(t, ok)
	assert.Equal(t, StepAwaitConfirm, sess.Step)
	assert.Equal(t, "stars_1", sess.Identity)
	assert.Contains(t, h.market.last(), "👤 Username: @alice")
	assert.Contains(t, h.market.last(), "🏷️ Отображаемое имя: Alice")
	assert.Contains(t, h.market.last(), "🎉 Подарков: 2 шт. по 50 ⭐️ каждый")

	h.say(t, "+")
	_, ok = h.session(t)
	assert.False(t, ok)
	require.Len(t, h.client.sent, 2)
	assert.Equal(t, "alice", h.client.sent[0].ChatID)
	assert.True(t, h.client.sent[0].IsPrivate)
	assert.Contains(t, h.market.last(), "в приватном режиме")
	assert.Contains(t, h.market.last(), "https://funpay.com/orders/100/")
	assert.True(t, h.notifier.contains("🎉 Заказ <a href='https://funpay.com/orders/100/'>100</a> выполнен!"))
	assert.True(t, h.notifier.contains("📡 <b>Сессия:</b> stars_1"))

	records, err = h.ledger.Aggregate(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, records.All.Count)
}

func TestInsufficientBalanceManualRefund(t *testing.T) {
	h := newHarness(t, 10)

	h.order(t, "200", 2, "200")
	h.say(t, "@alice")
	h.say(t, "+")

	_, ok := h.session(t)
	assert.False(t, ok)
	assert.Empty(t, h.client.sent)
	assert.Empty(t, h.market.refunds)
	assert.True(t, strings.HasPrefix(h.market.messages[len(h.market.messages)-1].text, "❌ Баланса не хватило для оплаты, возврат средств требует ручного подтверждения."))
	assert.True(t, h.notifier.contains("⚠️ Требуется ручной возврат средств для заказа #200"))
	assert.True(t, h.notifier.contains("https://funpay.com/orders/200/"))

	assert.Equal(t, 1, h.listings.calls)
	assert.False(t, h.listings.active)
	require.NotNil(t, h.catalog.activeLots)
	assert.False(t, *h.catalog.activeLots)
	assert.True(t, h.notifier.contains(noticeLotsDeactivated))
}

func TestInsufficientBalanceAutoRefund(t *testing.T) {
	h := newHarness(t, 10)
	h.catalog.autoRefunds = true
	h.listings.active = false

	h.order(t, "201", 2, "200")
	h.say(t, "@alice")
	h.say(t, "+")

	assert.Equal(t, []string{"201"}, h.market.refunds)
	assert.Equal(t, msgAutoRefund, h.market.last())
	assert.Equal(t, 0, h.listings.calls)
	assert.False(t, h.notifier.contains(noticeLotsDeactivated))
}

func TestCommentLengthBoundary(t *testing.T) {
	h := newHarness(t, 1000)
	h.order(t, "300", 1, "100")
	h.say(t, "@alice")

	h.say(t, strings.Repeat("я", 201))
	sess, _ := h.session(t)
	assert.Equal(t, msgCommentLong, h.market.last())
	assert.Empty(t, sess.Comment)
	assert.True(t, sess.Anonymous)
	assert.Equal(t, StepAwaitConfirm, sess.Step)

	comment := strings.Repeat("я", 200)
	h.say(t, comment)
	sess, _ = h.session(t)
	assert.Equal(t, comment, sess.Comment)
	assert.False(t, sess.Anonymous)
	assert.Equal(t, StepAwaitConfirm, sess.Step)
	assert.Contains(t, h.market.last(), "💬 Комментарий: "+comment)

	h.say(t, "+")
	require.Len(t, h.client.sent, 1)
	assert.Equal(t, comment, h.client.sent[0].Text)
	assert.False(t, h.client.sent[0].IsPrivate)
	assert.Contains(t, h.market.last(), "открыто")
}

func TestCommentIsSanitized(t *testing.T) {
	h := newHarness(t, 1000)
	h.order(t, "301", 1, "100")
	h.say(t, "@alice")
	h.say(t, "<b>С праздником_</b>")

	sess, _ := h.session(t)
	assert.Equal(t, `bС праздником\_/b`, sess.Comment)
}

func TestMinusRestartsUsername(t *testing.T) {
	h := newHarness(t, 1000)
	h.order(t, "400", 1, "100")
	h.say(t, "@alice")
	h.say(t, "привет")
	h.say(t, "-")

	sess, _ := h.session(t)
	assert.Equal(t, StepAwaitUsername, sess.Step)
	assert.Empty(t, sess.Comment)
	assert.True(t, sess.Anonymous)
	assert.Equal(t, msgAskAgain, h.market.last())
}

func TestInvalidAndUnresolvedHandles(t *testing.T) {
	h := newHarness(t, 1000)
	h.order(t, "500", 1, "100")

	h.say(t, "alice")
	assert.Equal(t, msgInvalidHandle, h.market.last())

	h.say(t, "@ali ce")
	assert.Equal(t, msgInvalidHandle, h.market.last())

	h.say(t, "@chatter")
	assert.Equal(t, msgUnresolved, h.market.last())

	h.say(t, "@ghost")
	assert.Equal(t, msgUnresolved, h.market.last())

	sess, _ := h.session(t)
	assert.Equal(t, StepAwaitUsername, sess.Step)

	h.say(t, "  @news  ")
	sess, _ = h.session(t)
	assert.Equal(t, StepAwaitConfirm, sess.Step)
	assert.Equal(t, "news", sess.Handle)
}

func TestIgnoredMessages(t *testing.T) {
	h := newHarness(t, 1000)
	h.order(t, "600", 1, "100")
	before := h.market.count()

	require.NoError(t, h.svc.HandleMessage(context.Background(), marketplace.Message{AuthorID: sellerID, ChatID: buyerChat, Text: "@alice"}))
	require.NoError(t, h.svc.HandleMessage(context.Background(), marketplace.Message{AuthorID: 12345, ChatID: "other", Text: "@alice"}))
	assert.Equal(t, before, h.market.count())

	sess, _ := h.session(t)
	assert.Equal(t, StepAwaitUsername, sess.Step)
}

func TestSoldOutDestroysSession(t *testing.T) {
	h := newHarness(t, 1000)
	h.client.sendErr = fmt.Errorf("%w: STARGIFT_USAGE_LIMITED", gateway.ErrSoldOut)

	h.order(t, "700", 1, "100")
	h.say(t, "@alice")
	h.say(t, "+")

	_, ok := h.session(t)
	assert.False(t, ok)
	assert.Equal(t, msgSoldOut, h.market.last())
	assert.True(t, h.notifier.contains("❌ Подарок распродан для заказа #700"))
}

func TestNoSessionsOnUsernameAlertsOperators(t *testing.T) {
	h := newHarness(t, 500)
	h.order(t, "100", 1, "100")

	h.client.mu.Lock()
	h.client.balance = 0
	h.client.mu.Unlock()

	// Первое сообщение отключает сессию, второе приходит, когда активных сессий уже нет
	h.say(t, "@alice")
	h.notifier.mu.Lock()
	h.notifier.texts = nil
	h.notifier.mu.Unlock()
	h.say(t, "@alice")

	assert.Equal(t, msgNoSessions, h.market.last())
	assert.True(t, h.notifier.contains("⚠️ Нет активных сессий для обработки заказа #100"))
	sess, ok := h.session(t)
	require.True(t, ok)
	assert.Equal(t, StepAwaitUsername, sess.Step)
}

func TestSendErrorRevertsToUsername(t *testing.T) {
	h := newHarness(t, 1000)
	h.client.sendErr = errors.New("FLOOD_WAIT_30")

	h.order(t, "800", 1, "100")
	h.say(t, "@alice")
	h.say(t, "+")

	sess, ok := h.session(t)
	require.True(t, ok)
	assert.Equal(t, StepAwaitUsername, sess.Step)
	assert.Equal(t, msgAskAgain, h.market.last())
	assert.True(t, h.notifier.contains("❌ Ошибка при обработке заказа #800 с сессией stars_1 (отправлено 0 из 1)"))

	var found bool
	for _, m := range h.market.messages {
		if strings.HasPrefix(m.text, "❌ Произошла ошибка при обработке заказа #800") {
			found = true
		}
	}
	assert.True(t, found)
}

type noCapacityDeliverer struct{}

func (noCapacityDeliverer) Deliver(context.Context, delivery.Request) (delivery.Result, error) {
	return delivery.Result{}, fmt.Errorf("выдача: %w", pool.ErrNoCapacity)
}

func TestDeliveryWithoutCapacity(t *testing.T) {
	h := newHarness(t, 1000)
	h.svc.deps.Deliverer = noCapacityDeliverer{}

	h.order(t, "900", 1, "100")
	h.say(t, "@alice")
	h.say(t, "+")

	sess, ok := h.session(t)
	require.True(t, ok)
	assert.Equal(t, StepAwaitUsername, sess.Step)
	assert.True(t, h.notifier.contains("⚠️ Нет активных сессий для обработки заказа #900"))
}

func TestOrderSkippedWhenStoppedOrUnknown(t *testing.T) {
	h := newHarness(t, 1000)

	require.NoError(t, h.svc.HandleOrder(context.Background(), marketplace.Order{
		ID: "1", Description: "Аккаунт Steam", Amount: 1, BuyerID: buyerID, ChatID: buyerChat,
	}))
	_, ok := h.session(t)
	assert.False(t, ok)

	assert.True(t, h.svc.Stop())
	assert.False(t, h.svc.Stop())
	h.order(t, "2", 1, "100")
	_, ok = h.session(t)
	assert.False(t, ok)
	assert.Equal(t, 0, h.market.count())

	assert.True(t, h.svc.Start())
	assert.False(t, h.svc.Start())
	assert.True(t, h.svc.Running())
}

func TestOrderWithUnlistedGift(t *testing.T) {
	h := newHarness(t, 1000)
	h.client.gifts = []gateway.Gift{{ID: 1, Price: 15}}

	err := h.svc.HandleOrder(context.Background(), marketplace.Order{
		ID: "1000", Description: description, Price: decimal.NewFromInt(100), Amount: 1, BuyerID: buyerID, ChatID: buyerChat,
	})
	require.ErrorIs(t, err, ErrGiftNotListed)

	_, ok := h.session(t)
	assert.False(t, ok)
	assert.Equal(t, priceUnknownText("1000"), h.market.last())
	assert.True(t, h.notifier.contains(fmt.Sprintf("gift_id %d", roseGiftID)))
}

func TestNewOrderReplacesSession(t *testing.T) {
	h := newHarness(t, 1000)
	h.order(t, "1", 1, "100")
	h.say(t, "@alice")
	h.order(t, "2", 3, "300")

	sessions := h.svc.Snapshot()
	require.Len(t, sessions, 1)
	assert.Equal(t, "2", sessions[0].OrderID)
	assert.Equal(t, StepAwaitUsername, sessions[0].Step)
	assert.Equal(t, int64(3), sessions[0].Quantity)
}

func TestSweepClosesIdleSessions(t *testing.T) {
	h := newHarness(t, 1000)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	h.svc.now = func() time.Time { return start }
	h.order(t, "1100", 1, "100")

	assert.Equal(t, 0, h.svc.Sweep(context.Background(), start.Add(30*time.Minute)))
	_, ok := h.session(t)
	assert.True(t, ok)

	assert.Equal(t, 1, h.svc.Sweep(context.Background(), start.Add(2*time.Hour)))
	_, ok = h.session(t)
	assert.False(t, ok)
	assert.Contains(t, h.market.last(), "Заказ #1100")
	assert.True(t, h.notifier.contains("https://funpay.com/orders/1100/"))
}

func TestSweepDisabled(t *testing.T) {
	h := newHarness(t, 1000)
	h.svc.opts.IdleTimeout = 0
	h.order(t, "1200", 1, "100")
	assert.Equal(t, 0, h.svc.Sweep(context.Background(), time.Now().Add(1000*time.Hour)))
}
