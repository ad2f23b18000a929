// Package analytics records product analytics events and conversion pixels.
package analytics

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Event names emitted by the form flow.
const (
	EventMovedStep     = "Static - Moved step in form"
	EventFormSubmitted = "Static - Form submitted"
	EventConversion    = "Conversion pixel"
)

// Event is one analytics event.
type Event struct {
	UserID     string         `json:"user_id,omitempty"`
	DeviceID   string         `json:"device_id,omitempty"`
	Type       string         `json:"event_type"`
	Properties map[string]any `json:"event_properties,omitempty"`
	Time       time.Time      `json:"-"`
}

// Tracker delivers analytics events.
type Tracker interface {
	Track(ctx context.Context, ev Event) error
}

// LogTracker writes events to the global zap logger.
type LogTracker struct{}

// Track logs the event at info level.
func (LogTracker) Track(_ context.Context, ev Event) error {
	zap.L().Info("analytics: event",
		zap.String("event_type", ev.Type),
		zap.String("user_id", ev.UserID),
		zap.Any("properties", ev.Properties),
	)
	return nil
}

// Multi fans an event out to every tracker and joins their errors.
type Multi []Tracker

// Track sends ev to each tracker in order.
func (m Multi) Track(ctx context.Context, ev Event) error {
	var errs []error
	for _, t := range m {
		if err := t.Track(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

// Track does nothing.
func (Discard) Track(context.Context, Event) error { return nil }

// BestEffort tracks ev and logs, rather than returns, any failure.
func BestEffort(ctx context.Context, t Tracker, ev Event) {
	if t == nil {
		return
	}
	if err := t.Track(ctx, ev); err != nil {
		zap.L().Warn("analytics: track failed", zap.String("event_type", ev.Type), zap.Error(err))
	}
}
