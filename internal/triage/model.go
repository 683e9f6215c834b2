package triage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned by Engine.Triage when the submission has no
// message text to classify.
var ErrInvalidInput = errors.New("triage: invalid input")

// Sentiment is the polarity of a message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ParseSentiment converts a case-insensitive name into a Sentiment.
func ParseSentiment(s string) (Sentiment, error) {
	v := Sentiment(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return v, nil
	}
	return "", fmt.Errorf("unknown sentiment %q", s)
}

// Category is a topical bucket used for routing.
type Category string

const (
	CategoryAccommodation Category = "accommodation"
	CategoryHealth        Category = "health"
	CategoryWellbeing     Category = "wellbeing"
	CategoryFinance       Category = "finance"
	CategoryAcademics     Category = "academics"
	CategoryTransport     Category = "transport"
	CategoryTechnology    Category = "technology"
	CategoryGeneral       Category = "general"
)

// Categories lists every category in tie-break order.
var Categories = []Category{
	CategoryAccommodation,
	CategoryHealth,
	CategoryWellbeing,
	CategoryFinance,
	CategoryAcademics,
	CategoryTransport,
	CategoryTechnology,
	CategoryGeneral,
}

// ParseCategory converts a case-insensitive name into a Category.
func ParseCategory(s string) (Category, error) {
	v := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Categories {
		if c == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Priority is the urgency ranking of a feedback item.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities; unknown values rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	default:
		return 0
	}
}

// ParsePriority converts a case-insensitive name into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p.Rank() == 0 {
		return "", fmt.Errorf("unknown priority %q (want low, medium, high or urgent)", s)
	}
	return p, nil
}

// Status is the workflow state of a feedback record.
type Status string

const (
	StatusNew       Status = "new"
	StatusInReview  Status = "in_review"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// ParseStatus converts a case-insensitive name into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusNew, StatusInReview, StatusResolved, StatusEscalated:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// DefaultChannel is used when a submission arrives without a channel.
const DefaultChannel = "web"

// Submission is the raw feedback handed to the engine.
type Submission struct {
	ParentName  string `json:"parent_name"`
	ParentEmail string `json:"parent_email"`
	StudentID   string `json:"student_id,omitempty"`
	Channel     string `json:"channel"`
	Message     string `json:"message"`
}

// Normalized returns a copy with surrounding whitespace trimmed and the
// channel defaulted and lower-cased.
func (s Submission) Normalized() Submission {
	out := Submission{
		ParentName:  strings.TrimSpace(s.ParentName),
		ParentEmail: strings.TrimSpace(s.ParentEmail),
		StudentID:   strings.TrimSpace(s.StudentID),
		Channel:     strings.ToLower(strings.TrimSpace(s.Channel)),
		Message:     strings.TrimSpace(s.Message),
	}
	if out.Channel == "" {
		out.Channel = DefaultChannel
	}
	return out
}

// Classification is the engine's verdict for one message.
type Classification struct {
	Sentiment      Sentiment `json:"sentiment"`
	Category       Category  `json:"category"`
	Priority       Priority  `json:"priority"`
	Department     string    `json:"department"`
	Status         Status    `json:"status"`
	SentimentScore int       `json:"sentiment_score"`
	Urgent         bool      `json:"urgent"`
	RulesVersion   string    `json:"rules_version"`
}
