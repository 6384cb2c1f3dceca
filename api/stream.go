package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"onboarding-board/board"
)

const keepAliveInterval = 30 * time.Second

// streamEvent is either a notice or, when notice is nil, a board change.
type streamEvent struct {
	notice *board.Notice
}

// StreamBroker fans controller notices and board changes out to the user's
// open SSE connections. It implements board.Notifier.
type StreamBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan streamEvent]struct{}
}

func NewStreamBroker() *StreamBroker {
	return &StreamBroker{subs: make(map[string]map[chan streamEvent]struct{})}
}

func (b *StreamBroker) subscribe(userID string) chan streamEvent {
	ch := make(chan streamEvent, 8)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan streamEvent]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *StreamBroker) unsubscribe(userID string, ch chan streamEvent) {
	b.mu.Lock()
	if subs, ok := b.subs[userID]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(b.subs, userID)
		}
	}
	b.mu.Unlock()
}

func (b *StreamBroker) send(userID string, ev streamEvent) {
	b.mu.Lock()
	for ch := range b.subs[userID] {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *StreamBroker) Notify(owner string, n board.Notice) {
	b.send(owner, streamEvent{notice: &n})
}

func (b *StreamBroker) BoardChanged(owner string) {
	b.send(owner, streamEvent{})
}

// Connections returns the number of open streams of a user.
func (b *StreamBroker) Connections(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

func streamBoard(sessions Sessions, auth Authenticator, broker *StreamBroker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := authHeader(c.Request().Header.Get(echo.HeaderAuthorization), c.QueryParam("token"))
		userID, err := auth.UserIDFromAuthHeader(header)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		ctl, err := sessions.Get(ctx, userID)
		if err != nil && ctl == nil {
			return c.String(http.StatusBadGateway, "failed to load tasks")
		}

		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)

		ch := broker.subscribe(userID)
		defer broker.unsubscribe(userID, ch)

		entry := logger.WithField("user", userID)
		entry.WithField("connections", broker.Connections(userID)).Debug("stream opened")
		if err := writeFrame(c, "board", newBoardResponse(ctl)); err != nil {
			entry.WithError(err).Debug("stream closed")
			return nil
		}
		flusher.Flush()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-ch:
				if ev.notice != nil {
					err = writeFrame(c, "notice", ev.notice)
				} else {
					// the session may have been ended and recreated since the
					// stream opened
					cur, gerr := sessions.Get(ctx, userID)
					if cur == nil {
						entry.WithError(gerr).Warn("board lookup failed")
						continue
					}
					err = writeFrame(c, "board", newBoardResponse(cur))
				}
				if err != nil {
					entry.WithError(err).Debug("stream closed")
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeFrame(c echo.Context, event string, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	w := c.Response()
	if _, err := w.Write([]byte("event: " + event + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
