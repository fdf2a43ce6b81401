package alert

import (
	"context"

	"github.com/Alias1177/Guardian/models"
)

// AlertStore persists routed alerts
type AlertStore interface {
	InsertAlert(ctx context.Context, alert models.AlertEvent) error
}

// PostgresChannel writes alerts to an audit table
type PostgresChannel struct {
	store AlertStore
}

func NewPostgresChannel(store AlertStore) *PostgresChannel {
	return &PostgresChannel{store: store}
}

func (p *PostgresChannel) Name() string { return ChannelPostgres }

func (p *PostgresChannel) Send(ctx context.Context, alert models.AlertEvent) error {
	return p.store.InsertAlert(ctx, alert)
}
