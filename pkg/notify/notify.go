// Package notify delivers short operational messages, such as "new account needs a role",
// to administrators. Delivery is best effort and duplicate messages inside the suppression
// window are dropped.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/cura/pkg/auth"
)

// DefaultSuppressionWindow matches how long an identical message is held back
const DefaultSuppressionWindow = 60 * time.Second

// Message is a single notification
type Message struct {
	Text     string        `json:"message"`
	Audience auth.Audience `json:"recipient_type"`
	SentAt   time.Time     `json:"sent_at"`
}

// Sink delivers a message somewhere
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Config configures a Dispatcher
type Config struct {
	SuppressionWindow time.Duration
	// MaxTracked bounds how many distinct recent messages are remembered
	MaxTracked int
}

// Dispatcher fans a notification out to every sink. It implements auth.Notifier.
type Dispatcher struct {
	sinks  []Sink
	recent *lru.LRU[string, time.Time]
	log    *logrus.Logger
}

// NewDispatcher creates a dispatcher over sinks
func NewDispatcher(cfg Config, log *logrus.Logger, sinks ...Sink) *Dispatcher {
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = DefaultSuppressionWindow
	}
	if cfg.MaxTracked <= 0 {
		cfg.MaxTracked = 256
	}
	if log == nil {
		log = logrus.New()
	}
	return &Dispatcher{
		sinks:  sinks,
		recent: lru.NewLRU[string, time.Time](cfg.MaxTracked, nil, cfg.SuppressionWindow),
		log:    log,
	}
}

func dedupeKey(msg string, audience auth.Audience) string {
	return string(audience) + ":" + msg
}

// Notify implements auth.Notifier. A message identical to one sent within the suppression
// window is dropped without error. When every sink fails the message is forgotten so a
// later retry is not suppressed.
func (d *Dispatcher) Notify(ctx context.Context, message string, audience auth.Audience) error {
	key := dedupeKey(message, audience)
	if sentAt, ok := d.recent.Get(key); ok {
		d.log.WithFields(logrus.Fields{
			"audience": audience,
			"sent_at":  sentAt,
		}).Debug("Suppressing duplicate notification")
		return nil
	}
	now := time.Now().UTC()
	d.recent.Add(key, now)

	if len(d.sinks) == 0 {
		return nil
	}

	msg := Message{Text: message, Audience: audience, SentAt: now}
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, msg); err != nil {
			d.log.WithError(err).WithField("sink", sink.Name()).Warn("Notification delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}

	if len(errs) == len(d.sinks) {
		d.recent.Remove(key)
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the process log. Used when no webhook is configured.
type LogSink struct {
	log *logrus.Logger
}

// NewLogSink creates a log-backed sink
func NewLogSink(log *logrus.Logger) *LogSink {
	if log == nil {
		log = logrus.New()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, msg Message) error {
	s.log.WithField("audience", msg.Audience).Info("Notification: " + msg.Text)
	return nil
}
