package postgres

import (
	"context"
	"encoding/json"

	"carmen/internal/core/entity"
	"carmen/internal/domain/registers/cost"
	"carmen/pkg/logger"
)

var _ cost.PostingListener = (*Notifier)(nil)

// Notifier publishes committed movements with pg_notify so other processes
// sharing the database can drop stale cache entries.
type Notifier struct {
	txManager *TxManager
	channel   string
}

// NewNotifier creates a notifier on channel.
func NewNotifier(txManager *TxManager, channel string) *Notifier {
	return &Notifier{txManager: txManager, channel: channel}
}

// OnMovementPosted implements cost.PostingListener. Failures are logged;
// cache TTLs bound the staleness of a lost notification.
func (n *Notifier) OnMovementPosted(ctx context.Context, m entity.CostMovement) {
	payload, err := json.Marshal(cost.NewPostingEvent(m))
	if err != nil {
		logger.Error(ctx, "encode posting event", "error", err)
		return
	}
	_, err = n.txManager.GetQuerier(ctx).Exec(ctx, "SELECT pg_notify($1, $2)", n.channel, string(payload))
	if err != nil {
		logger.Warn(ctx, "pg_notify failed",
			"channel", n.channel,
			"item_id", m.ItemID,
			"error", err,
		)
	}
}
