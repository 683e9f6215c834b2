package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	slackapi "github.com/slack-go/slack"

	"github.com/linnemanlabs/harken/internal/feedback"
	"github.com/linnemanlabs/harken/internal/resilience"
	"github.com/linnemanlabs/harken/internal/triage"
)

func testEvent(kind feedback.EventKind) feedback.Event {
	return feedback.Event{
		Kind: kind,
		Record: feedback.Record{
			ID: "01JN123",
			Submission: triage.Submission{
				ParentName:  "Asha Rao",
				ParentEmail: "asha@example.com",
				StudentID:   "S-1042",
				Channel:     "web",
				Message:     "The hostel mess food made my child sick, this is urgent!",
			},
			Classification: triage.Classification{
				Sentiment:  triage.SentimentNegative,
				Category:   triage.CategoryAccommodation,
				Priority:   triage.PriorityUrgent,
				Department: "Hostel",
				Status:     triage.StatusNew,
			},
			CreatedAt: time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC),
		},
	}
}

func TestNotify_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	if err := n.Notify(context.Background(), testEvent(feedback.EventTriaged)); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}
	// header, divider, fields, message, divider, context
	if len(blocks) != 6 {
		t.Errorf("blocks count = %d, want 6", len(blocks))
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Hostel") {
		t.Errorf("header text = %q, want to contain the department", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Error("header should contain red circle for urgent priority")
	}

	fields := blocks[2].(map[string]any)["fields"].([]any)
	if len(fields) != 6 {
		t.Errorf("fields = %d, want 6 with student ID", len(fields))
	}

	if text, _ := got["text"].(string); !strings.Contains(text, "urgent") {
		t.Errorf("fallback text = %q, want priority mentioned", text)
	}
}

func TestNotify_EscalatedHeader(t *testing.T) {
	t.Parallel()

	msg := buildMessage(testEvent(feedback.EventEscalated))
	header, ok := msg.Blocks.BlockSet[0].(*slackapi.HeaderBlock)
	if !ok {
		t.Fatalf("first block = %T, want *HeaderBlock", msg.Blocks.BlockSet[0])
	}
	if !strings.Contains(header.Text.Text, "Escalated feedback") {
		t.Errorf("header text = %q, want escalation title", header.Text.Text)
	}
}

func TestNotify_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Notify(context.Background(), feedback.Event{}); err != nil {
		t.Fatalf("Notify with empty URL should be no-op, got: %v", err)
	}
}

func TestNotify_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"gone", http.StatusGone, true},
		{"server error", http.StatusBadGateway, false},
		{"rate limited", http.StatusTooManyRequests, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := New(srv.URL).Notify(context.Background(), testEvent(feedback.EventTriaged))
			if err == nil {
				t.Fatal("expected error")
			}
			var perm *resilience.PermanentError
			if got := errors.As(err, &perm); got != tt.wantPermanent {
				t.Errorf("permanent = %v, want %v (err: %v)", got, tt.wantPermanent, err)
			}
		})
	}
}

func TestBuildMessage_TruncatesLongMessage(t *testing.T) {
	t.Parallel()

	ev := testEvent(feedback.EventTriaged)
	ev.Record.Message = strings.Repeat("ü", 4000)

	data, err := json.Marshal(buildMessage(ev))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	section := got["blocks"].([]any)[3].(map[string]any)
	text := section["text"].(map[string]any)["text"].(string)
	body := strings.TrimPrefix(text, "*Message*\n\n> ")
	if n := utf8.RuneCountInString(body); n != maxExcerptLen {
		t.Errorf("excerpt runes = %d, want %d", n, maxExcerptLen)
	}
	if !strings.HasSuffix(text, "...") {
		t.Error("expected truncated message to end with ...")
	}
}

func TestPriorityEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		priority triage.Priority
		want     string
	}{
		{triage.PriorityUrgent, "\U0001f534"},
		{triage.PriorityHigh, "\U0001f7e0"},
		{triage.PriorityMedium, "\U0001f7e1"},
		{triage.PriorityLow, "\U0001f7e2"},
		{"", "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			t.Parallel()
			if got := priorityEmoji(tt.priority); got != tt.want {
				t.Errorf("priorityEmoji(%q) = %q, want %q", tt.priority, got, tt.want)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	if got, want := quote("line one\nline two"), "> line one\n> line two"; got != want {
		t.Errorf("quote = %q, want %q", got, want)
	}
}

func FuzzSlackBuild(f *testing.F) {
	f.Add("Hostel", "The bus was late", "S-1")
	f.Add("", "", "")
	f.Add("<@U123> mention", "*bold* _italic_ ~strike~", "id\x00")
	f.Add(strings.Repeat("A", 500), strings.Repeat("x", 10000), strings.Repeat("9", 100))
	f.Add("Finance", "```code block``` and <http://example.com|link>", "")

	f.Fuzz(func(t *testing.T, dept, message, studentID string) {
		ev := testEvent(feedback.EventEscalated)
		ev.Record.Department = dept
		ev.Record.Message = message
		ev.Record.StudentID = studentID

		// Must not panic
		msg := buildMessage(ev)

		data, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("buildMessage produced non-marshalable output: %v", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("round-trip failed: %v", err)
		}
	})
}
