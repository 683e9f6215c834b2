// Package natsbus publishes feedback events to NATS so downstream consumers
// can subscribe per department.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/resilience"
	"github.com/linnemanlabs/harken/internal/triage"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "harken.feedback"

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Notifier publishes each event on <subject>.<department-slug>.
type Notifier struct {
	pub     Publisher
	subject string
}

// New returns a Notifier publishing under subject.
func New(pub Publisher, subject string) *Notifier {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{pub: pub, subject: subject}
}

// Connect dials url with reconnect handling that logs through logger.
func Connect(url string, logger log.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = log.Nop()
	}
	ctx := context.Background()
	conn, err := nats.Connect(
		url,
		nats.Name("harken"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(ctx, "nats disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(ctx, "nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

// Name implements feedback.Notifier.
func (n *Notifier) Name() string { return "nats" }

// Message is the JSON body published for each event.
type Message struct {
	Event          feedback.EventKind `json:"event"`
	ID             string             `json:"id"`
	Sentiment      triage.Sentiment   `json:"sentiment"`
	Category       triage.Category    `json:"category"`
	Priority       triage.Priority    `json:"priority"`
	Department     string             `json:"department"`
	Status         triage.Status      `json:"status"`
	SentimentScore int                `json:"sentiment_score"`
	Urgent         bool               `json:"urgent"`
	Channel        string             `json:"channel"`
	RulesVersion   string             `json:"rules_version"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewMessage builds the wire message for ev. Contact details and the message
// text stay out of the bus.
func NewMessage(ev feedback.Event) Message {
	r := ev.Record
	return Message{
		Event:          ev.Kind,
		ID:             r.ID,
		Sentiment:      r.Sentiment,
		Category:       r.Category,
		Priority:       r.Priority,
		Department:     r.Department,
		Status:         r.Status,
		SentimentScore: r.SentimentScore,
		Urgent:         r.Urgent,
		Channel:        r.Channel,
		RulesVersion:   r.RulesVersion,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

// Notify publishes ev and flushes so delivery errors surface here.
func (n *Notifier) Notify(ctx context.Context, ev feedback.Event) error {
	data, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("nats: marshal event: %w", err))
	}
	subject := n.Subject(ev.Record.Department)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	if err := n.pub.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	return nil
}

// Subject returns the subject events for department are published on.
func (n *Notifier) Subject(department string) string {
	return n.subject + "." + Slug(department)
}

// Slug lower-cases s and collapses every run of characters outside [a-z0-9]
// into a single dash, so the result is one valid subject token.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "unrouted"
	}
	return out
}
