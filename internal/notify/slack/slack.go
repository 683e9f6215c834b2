// Package slack sends feedback notifications to Slack via incoming webhooks.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	slackapi "github.com/slack-go/slack"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/resilience"
	"github.com/linnemanlabs/harken/internal/triage"
)

const (
	maxExcerptLen = 2000
	maxHeaderLen  = 150
	httpTimeout   = 10 * time.Second
)

// Notifier posts feedback events to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Name implements feedback.Notifier.
func (n *Notifier) Name() string { return "slack" }

// Notify posts ev to the configured webhook. Client errors other than rate
// limiting are returned as permanent.
func (n *Notifier) Notify(ctx context.Context, ev feedback.Event) error {
	if n.webhookURL == "" {
		return nil
	}

	err := slackapi.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, buildMessage(ev))
	if err == nil {
		return nil
	}

	var sce slackapi.StatusCodeError
	if errors.As(err, &sce) && !sce.Retryable() {
		return resilience.Permanent(fmt.Errorf("slack: webhook returned %d: %w", sce.Code, err))
	}
	return fmt.Errorf("slack: post webhook: %w", err)
}

func buildMessage(ev feedback.Event) *slackapi.WebhookMessage {
	r := ev.Record
	return &slackapi.WebhookMessage{
		Text: fallbackText(ev),
		Blocks: &slackapi.Blocks{BlockSet: []slackapi.Block{
			headerBlock(ev),
			slackapi.NewDividerBlock(),
			fieldsBlock(&r),
			messageBlock(&r),
			slackapi.NewDividerBlock(),
			contextBlock(&r),
		}},
	}
}

func fallbackText(ev feedback.Event) string {
	return fmt.Sprintf("%s feedback for %s (%s)", ev.Record.Priority, ev.Record.Department, ev.Kind)
}

func headerBlock(ev feedback.Event) *slackapi.HeaderBlock {
	title := "New feedback"
	if ev.Kind == feedback.EventEscalated {
		title = "Escalated feedback"
	}
	text := fmt.Sprintf("%s %s: %s", priorityEmoji(ev.Record.Priority), title, ev.Record.Department)
	return slackapi.NewHeaderBlock(
		slackapi.NewTextBlockObject(slackapi.PlainTextType, truncate(text, maxHeaderLen), true, false),
	)
}

func fieldsBlock(r *feedback.Record) *slackapi.SectionBlock {
	field := func(label, value string) *slackapi.TextBlockObject {
		return slackapi.NewTextBlockObject(slackapi.MarkdownType, fmt.Sprintf("*%s:* %s", label, value), false, false)
	}
	fields := []*slackapi.TextBlockObject{
		field("Priority", string(r.Priority)),
		field("Sentiment", string(r.Sentiment)),
		field("Category", string(r.Category)),
		field("Status", string(r.Status)),
		field("Channel", r.Channel),
	}
	if r.StudentID != "" {
		fields = append(fields, field("Student", r.StudentID))
	}
	return slackapi.NewSectionBlock(nil, fields, nil)
}

func messageBlock(r *feedback.Record) *slackapi.SectionBlock {
	text := truncate(r.Message, maxExcerptLen)
	if text == "" {
		text = "_No message._"
	}
	return slackapi.NewSectionBlock(
		slackapi.NewTextBlockObject(slackapi.MarkdownType, "*Message*\n\n"+quote(text), false, false),
		nil, nil,
	)
}

func contextBlock(r *feedback.Record) *slackapi.ContextBlock {
	text := fmt.Sprintf("harken • feedback %s • %s • from %s",
		r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"), r.ParentName)
	return slackapi.NewContextBlock("",
		slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, true),
	)
}

func priorityEmoji(p triage.Priority) string {
	switch p {
	case triage.PriorityUrgent:
		return "\U0001f534" // red circle
	case triage.PriorityHigh:
		return "\U0001f7e0" // orange circle
	case triage.PriorityMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// quote renders s as a Slack block quote.
func quote(s string) string {
	return "> " + strings.ReplaceAll(s, "\n", "\n> ")
}

// truncate shortens s to at most limit runes.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
