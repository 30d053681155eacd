package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carmen/internal/domain/registers/cost"
	"carmen/pkg/logger"
)

// DefaultNotifyChannel carries cost.PostingEvent payloads.
const DefaultNotifyChannel = "cost_movement_posted"

// NotifyListener forwards PostgreSQL NOTIFY events about posted movements to
// posting listeners, so movements written by other processes invalidate this
// process's cache.
type NotifyListener struct {
	pool    *pgxpool.Pool
	channel string

	listeners   []cost.PostingListener
	listenersMu sync.RWMutex

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewNotifyListener creates a listener on channel (DefaultNotifyChannel when empty).
func NewNotifyListener(pool *pgxpool.Pool, channel string) *NotifyListener {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return &NotifyListener{pool: pool, channel: channel}
}

// Subscribe registers l for every received event.
func (n *NotifyListener) Subscribe(l cost.PostingListener) {
	n.listenersMu.Lock()
	n.listeners = append(n.listeners, l)
	n.listenersMu.Unlock()
}

// Start begins listening in the background.
func (n *NotifyListener) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	n.lifecycleMu.Lock()
	defer n.lifecycleMu.Unlock()
	if n.started {
		return nil
	}
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.started = true

	n.wg.Add(1)
	go n.listenLoop()
	logger.Info(n.ctx, "notify listener started", "channel", n.channel)
	return nil
}

// Stop cancels the listener and waits for it to exit.
func (n *NotifyListener) Stop() {
	n.lifecycleMu.Lock()
	if !n.started {
		n.lifecycleMu.Unlock()
		return
	}
	cancel := n.cancel
	n.started = false
	n.cancel = nil
	n.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.wg.Wait()
	logger.Info(context.Background(), "notify listener stopped", "channel", n.channel)
}

func (n *NotifyListener) listenLoop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		// LISTEN needs a dedicated connection.
		conn, err := n.pool.Acquire(n.ctx)
		if err != nil {
			logger.Error(n.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		_, err = conn.Exec(n.ctx, "LISTEN "+pgx.Identifier{n.channel}.Sanitize())
		if err != nil {
			logger.Error(n.ctx, "failed to LISTEN", "channel", n.channel, "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		n.waitForNotifications(conn)
		conn.Release()
	}
}

func (n *NotifyListener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			if ctx.Err() != nil {
				// Timeout, keep waiting on the same connection.
				continue
			}
			logger.Warn(n.ctx, "notification wait failed, reconnecting", "error", err)
			return
		}

		n.handle(n.ctx, notification.Payload)
	}
}

// handle decodes a payload and fans it out. Listener panics are contained.
func (n *NotifyListener) handle(ctx context.Context, payload string) {
	var ev cost.PostingEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.ItemID == "" {
		logger.Warn(ctx, "ignoring malformed posting notification", "payload", payload, "error", err)
		return
	}
	mv := ev.Movement()

	n.listenersMu.RLock()
	defer n.listenersMu.RUnlock()
	for _, l := range n.listeners {
		func(l cost.PostingListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "posting listener panic recovered", "panic", r)
				}
			}()
			l.OnMovementPosted(ctx, mv)
		}(l)
	}
}
