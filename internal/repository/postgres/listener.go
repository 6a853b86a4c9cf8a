package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"biocloud/internal/domain/models"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
)

const (
	listenInitialBackoff = time.Second
	listenMaxBackoff     = 30 * time.Second
)

// ChangePublisher receives one event per topic.
type ChangePublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// notifyPayload is the JSON built by the row change trigger.
type notifyPayload struct {
	Table      string          `json:"table"`
	Type       string          `json:"type"`
	CommitTime time.Time       `json:"commit_time"`
	New        json.RawMessage `json:"new"`
	Old        json.RawMessage `json:"old"`
}

// ChangeListener relays trigger notifications onto the realtime feed. It
// holds a dedicated connection because LISTEN is per session.
type ChangeListener struct {
	databaseURL string
	tables      *TableNames
	publisher   ChangePublisher
	logger      *slog.Logger
}

// NewChangeListener creates a listener for the tables' change channel
func NewChangeListener(databaseURL string, tables *TableNames, publisher ChangePublisher, logger *slog.Logger) *ChangeListener {
	return &ChangeListener{
		databaseURL: databaseURL,
		tables:      tables,
		publisher:   publisher,
		logger:      logger,
	}
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff.
// Notifications committed while disconnected are lost; subscribers recover
// on their next re-fetch.
func (l *ChangeListener) Run(ctx context.Context) error {
	backoff := listenInitialBackoff
	for {
		started := time.Now()
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(started) > listenMaxBackoff {
			backoff = listenInitialBackoff
		}
		l.logger.Warn("change listener disconnected",
			"error", err,
			"retry_in", backoff,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, listenMaxBackoff)
	}
}

func (l *ChangeListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	channel := pgx.Identifier{l.tables.ChangeChannel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}
	l.logger.Info("change listener started", "channel", l.tables.ChangeChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		events, err := l.Decode(notification.Payload)
		if err != nil {
			l.logger.Warn("dropping malformed change notification", "error", err)
			continue
		}

		for _, event := range events {
			if err := l.publisher.Publish(ctx, event); err != nil {
				l.logger.Error("publish change event",
					"error", err,
					"topic", event.Topic,
					"type", event.Type,
				)
			}
		}
	}
}

// Decode turns a trigger payload into one event per topic. All copies share
// an event ID.
func (l *ChangeListener) Decode(payload string) ([]models.ChangeEvent, error) {
	var p notifyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	base := models.ChangeEvent{
		ID:         ulid.Make().String(),
		Table:      l.tables.Logical(p.Table),
		Type:       models.ChangeType(p.Type),
		New:        nullToEmpty(p.New),
		Old:        nullToEmpty(p.Old),
		CommitTime: p.CommitTime,
	}

	switch base.Type {
	case models.ChangeInsert, models.ChangeUpdate, models.ChangeDelete:
	default:
		return nil, fmt.Errorf("unknown change type %q", p.Type)
	}

	topics := base.Topics()
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topic for %s %s", base.Table, base.Type)
	}

	events := make([]models.ChangeEvent, 0, len(topics))
	for _, topic := range topics {
		event := base
		event.Topic = topic
		events = append(events, event)
	}
	return events, nil
}

// nullToEmpty maps a JSON null row image to an absent one.
func nullToEmpty(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return nil
	}
	return raw
}
