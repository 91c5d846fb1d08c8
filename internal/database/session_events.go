package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
)

// WalletSessionEvent is one lifecycle notification kept for auditing.
type WalletSessionEvent struct {
	ID        int64     `gorm:"primaryKey"`
	EventType string    `gorm:"type:varchar(64);index"`
	Topic     string    `gorm:"type:varchar(255);index"`
	Account   string    `gorm:"type:varchar(255)"`
	Method    string    `gorm:"type:varchar(128)"`
	Detail    JSONBMap  `gorm:"type:jsonb"`
	EventTime time.Time `gorm:"type:timestamptz"`
}

func fromNotification(n session.Notification) *WalletSessionEvent {
	ev := &WalletSessionEvent{
		EventType: string(n.Type),
		Topic:     n.Topic,
		Account:   n.Account,
		Method:    n.Method,
		EventTime: n.At,
	}
	if n.Error != "" {
		ev.Detail = JSONBMap{"error": n.Error}
	}
	if ev.EventTime.IsZero() {
		ev.EventTime = time.Now()
	}
	return ev
}

// EventLog stores notifications in postgres.
type EventLog struct {
	db *gorm.DB
}

func NewEventLog(db *gorm.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Notify(ctx context.Context, n session.Notification) error {
	err := l.db.WithContext(ctx).Create(fromNotification(n)).Error
	return errors.WrapAndReport(err, "save wallet session event")
}

// Recent returns the latest events, newest first.
func (l *EventLog) Recent(ctx context.Context, limit int) ([]*WalletSessionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var events []*WalletSessionEvent
	err := l.db.WithContext(ctx).Order("event_time desc").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, errors.WrapAndReport(err, "query wallet session events")
	}
	return events, nil
}
