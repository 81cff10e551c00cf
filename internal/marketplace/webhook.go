package marketplace

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// SecretHeader — заголовок с общим секретом площадки.
const SecretHeader = "X-Events-Secret"

// EventHandler обрабатывает события площадки.
type EventHandler interface {
	HandleOrder(ctx context.Context, o Order) error
	HandleMessage(ctx context.Context, m Message) error
}

type event struct {
	order   *Order
	message *Message
}

// Webhook принимает события по HTTP и передаёт их одному обработчику по очереди.
type Webhook struct {
	secret  string
	queue   chan event
	handler EventHandler
}

// NewWebhook создаёт приёмник с очередью на size событий.
func NewWebhook(secret string, size int, handler EventHandler) *Webhook {
	return &Webhook{
		secret:  secret,
		queue:   make(chan event, size),
		handler: handler,
	}
}

// Routes возвращает HTTP-маршруты приёмника.
func (w *Webhook) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	r.Route("/events", func(r chi.Router) {
		r.Use(w.authenticate)
		r.Post("/order", w.handleOrder)
		r.Post("/message", w.handleMessage)
	})
	return r
}

// Run обрабатывает события из очереди до отмены ctx.
// Это единственный обработчик: события не обрабатываются параллельно.
func (w *Webhook) Run(ctx context.Context) {
	log.Info("Обработчик событий площадки запущен")
	for {
		select {
		case <-ctx.Done():
			log.Info("Обработчик событий площадки остановлен")
			return
		case ev := <-w.queue:
			w.dispatch(ctx, ev)
		}
	}
}

func (w *Webhook) dispatch(ctx context.Context, ev event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Паника при обработке события")
		}
	}()

	switch {
	case ev.order != nil:
		if err := w.handler.HandleOrder(ctx, *ev.order); err != nil {
			log.WithField("order_id", ev.order.ID).WithError(err).Error("Ошибка обработки заказа")
		}
	case ev.message != nil:
		if err := w.handler.HandleMessage(ctx, *ev.message); err != nil {
			log.WithField("chat_id", ev.message.ChatID).WithError(err).Error("Ошибка обработки сообщения")
		}
	}
}

func (w *Webhook) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if w.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(w.secret)) != 1 {
			http.Error(rw, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (w *Webhook) handleOrder(rw http.ResponseWriter, r *http.Request) {
	var o Order
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil || o.ID == "" || o.Amount < 1 {
		http.Error(rw, "invalid order", http.StatusBadRequest)
		return
	}
	w.enqueue(rw, event{order: &o})
}

func (w *Webhook) handleMessage(rw http.ResponseWriter, r *http.Request) {
	var m Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(rw, "invalid message", http.StatusBadRequest)
		return
	}
	w.enqueue(rw, event{message: &m})
}

func (w *Webhook) enqueue(rw http.ResponseWriter, ev event) {
	select {
	case w.queue <- ev:
		rw.WriteHeader(http.StatusAccepted)
	default:
		log.Warn("Очередь событий переполнена")
		http.Error(rw, "queue is full", http.StatusServiceUnavailable)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP-запрос")
	})
}
