package intake

import (
	"errors"
	"strings"
	"testing"
	"time"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
)

var testClock = func() time.Time {
	return time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
}

func TestNormalizeBasicEmail(t *testing.T) {
	n := NewNormalizerWithClock(testClock)

	email, err := n.Normalize(RawEmail{
		From:    "Jane Carter <jane@acme.example>",
		To:      FlexStrings{"support@brightlane.example"},
		Cc:      FlexStrings{"Bob <bob@acme.example>"},
		Subject: "Quote request",
		Text:    "Hi, could you send me pricing for the premium plan?",
		Date:    "Mon, 10 Mar 2025 08:15:00 +0000",
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if email.From.Email != "jane@acme.example" {
		t.Errorf("from email = %q, want jane@acme.example", email.From.Email)
	}
	if email.From.Name != "Jane Carter" {
		t.Errorf("from name = %q, want Jane Carter", email.From.Name)
	}
	if len(email.To) != 1 || email.To[0].Email != "support@brightlane.example" {
		t.Errorf("to = %+v, want one entry for support@brightlane.example", email.To)
	}
	if len(email.Cc) != 1 || email.Cc[0].Name != "Bob" {
		t.Errorf("cc = %+v, want one entry named Bob", email.Cc)
	}
	if email.Headers.Subject != "Quote request" {
		t.Errorf("subject = %q", email.Headers.Subject)
	}
	if email.Headers.Date.Hour() != 8 || email.Headers.Date.Minute() != 15 {
		t.Errorf("date = %v, want 08:15", email.Headers.Date)
	}
	if email.Body.NormalizedText != "Hi, could you send me pricing for the premium plan?" {
		t.Errorf("normalized text = %q", email.Body.NormalizedText)
	}
	if !email.ReceivedAt.Equal(testClock()) {
		t.Errorf("receivedAt = %v, want clock time", email.ReceivedAt)
	}
}

func TestNormalizeMissingFrom(t *testing.T) {
	n := NewNormalizerWithClock(testClock)

	cases := []RawEmail{
		{To: FlexStrings{"a@b.example"}, Text: "hello"},
		{From: "not an address", To: FlexStrings{"a@b.example"}, Text: "hello"},
	}
	for _, raw := range cases {
		if _, err := n.Normalize(raw); !errors.Is(err, cierrors.ErrNormalization) {
			t.Errorf("Normalize(%+v) error = %v, want ErrNormalization", raw.From, err)
		}
	}
}

func TestNormalizeMissingRecipients(t *testing.T) {
	n := NewNormalizerWithClock(testClock)

	_, err := n.Normalize(RawEmail{
		From: "jane@acme.example",
		Text: "hello",
	})
	if !errors.Is(err, cierrors.ErrNormalization) {
		t.Fatalf("error = %v, want ErrNormalization", err)
	}
}

func TestNormalizeDefaultSubject(t *testing.T) {
	n := NewNormalizerWithClock(testClock)

	email, err := n.Normalize(RawEmail{
		From: "jane@acme.example",
		To:   FlexStrings{"support@brightlane.example"},
		Text: "hello",
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if email.Headers.Subject != "(No Subject)" {
		t.Errorf("subject = %q, want (No Subject)", email.Headers.Subject)
	}
}

func TestNormalizeUnparseableDateFallsBack(t *testing.T) {
	n := NewNormalizerWithClock(testClock)

	email, err := n.Normalize(RawEmail{
		From: "jane@acme.example",
		To:   FlexStrings{"support@brightlane.example"},
		Text: "hello",
		Date: "sometime last tuesday",
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if !email.Headers.Date.Equal(testClock()) {
		t.Errorf("date = %v, want clock fallback", email.Headers.Date)
	}
}

func TestNormalizePrefersHTML(t *testing.T) {
	n := NewNormalizerWithClock(testClock)

	email, err := n.Normalize(RawEmail{
		From: "jane@acme.example",
		To:   FlexStrings{"support@brightlane.example"},
		Text: "plain fallback",
		HTML: "<html><body><p>First paragraph.</p><p>Second paragraph.</p></body></html>",
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := "First paragraph.\nSecond paragraph."
	if email.Body.NormalizedText != want {
		t.Errorf("normalized text = %q, want %q", email.Body.NormalizedText, want)
	}
	if email.Body.RawText != "plain fallback" {
		t.Errorf("raw text = %q, should be preserved", email.Body.RawText)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "paragraph breaks preserved",
			in:   "<p>one</p><p>two</p>",
			want: "one\ntwo",
		},
		{
			name: "script and style dropped",
			in:   "<style>p{color:red}</style><script>alert(1)</script><div>visible</div>",
			want: "visible",
		},
		{
			name: "line breaks",
			in:   "line one<br>line two<br/>line three",
			want: "line one\nline two\nline three",
		},
		{
			name: "nested inline tags flattened",
			in:   "<div>Hello <b>bold</b> and <a href=\"x\">link</a> text</div>",
			want: "Hello bold and link text",
		},
		{
			name: "malformed markup recovers text",
			in:   "<div>unclosed <span>still here",
			want: "unclosed still here",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRemoveQuotedReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "angle bracket quote",
			in:   "New reply here.\n\n> quoted line one\n> quoted line two",
			want: "New reply here.",
		},
		{
			name: "on wrote intro",
			in:   "Thanks, see below.\nOn Mon, Mar 10, 2025 at 8:00 AM Jane Carter <jane@acme.example> wrote:\nold content",
			want: "Thanks, see below.",
		},
		{
			name: "outlook original message",
			in:   "My answer.\n-----Original Message-----\nFrom: someone",
			want: "My answer.",
		},
		{
			name: "forwarded banner",
			in:   "FYI\n---------- Forwarded message ---------\nFrom: x",
			want: "FYI",
		},
		{
			name: "everything after first boundary discarded",
			in:   "top\n> quote\nnot actually new content\nmore text",
			want: "top",
		},
		{
			name: "no boundary unchanged",
			in:   "just a clean message\nwith two lines",
			want: "just a clean message\nwith two lines",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemoveQuotedReply(tt.in); got != tt.want {
				t.Errorf("RemoveQuotedReply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoveSignature(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "dash dash delimiter",
			in:   "Message body.\n-- \nJane Carter\nAcme Corp",
			want: "Message body.",
		},
		{
			name: "underscore rule",
			in:   "Message body.\n____\nJane Carter",
			want: "Message body.",
		},
		{
			name: "sent from my",
			in:   "Quick note.\nSent from my iPhone",
			want: "Quick note.",
		},
		{
			name: "get outlook",
			in:   "Quick note.\nGet Outlook for iOS",
			want: "Quick note.",
		},
		{
			name: "earliest delimiter wins",
			in:   "Body.\n-- \nJane\nSent from my iPhone",
			want: "Body.",
		},
		{
			name: "no signature unchanged",
			in:   "Nothing to remove here.",
			want: "Nothing to remove here.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemoveSignature(tt.in); got != tt.want {
				t.Errorf("RemoveSignature = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotentOnCleanText(t *testing.T) {
	n := NewNormalizerWithClock(testClock)
	clean := "A clean message.\nWith a second line."

	first, err := n.Normalize(RawEmail{
		From: "jane@acme.example",
		To:   FlexStrings{"support@brightlane.example"},
		Text: clean,
	})
	if err != nil {
		t.Fatalf("first Normalize failed: %v", err)
	}
	second, err := n.Normalize(RawEmail{
		From: "jane@acme.example",
		To:   FlexStrings{"support@brightlane.example"},
		Text: first.Body.NormalizedText,
	})
	if err != nil {
		t.Fatalf("second Normalize failed: %v", err)
	}
	if first.Body.NormalizedText != clean {
		t.Errorf("clean text altered: %q", first.Body.NormalizedText)
	}
	if second.Body.NormalizedText != first.Body.NormalizedText {
		t.Errorf("not idempotent: %q vs %q", second.Body.NormalizedText, first.Body.NormalizedText)
	}
}

func TestNormalizeFullPipeline(t *testing.T) {
	n := NewNormalizerWithClock(testClock)

	html := strings.Join([]string{
		"<html><body>",
		"<p>Hi team,</p>",
		"<p>Can we schedule a demo next week?</p>",
		"<p>On Mon, Mar 3, 2025 at 2:00 PM Support wrote:</p>",
		"<p>previous thread content</p>",
		"</body></html>",
	}, "")

	email, err := n.Normalize(RawEmail{
		From: "jane@acme.example",
		To:   FlexStrings{"support@brightlane.example"},
		HTML: html,
	})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := "Hi team,\nCan we schedule a demo next week?"
	if email.Body.NormalizedText != want {
		t.Errorf("normalized text = %q, want %q", email.Body.NormalizedText, want)
	}
}
