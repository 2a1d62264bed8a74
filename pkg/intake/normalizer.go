package intake

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
)

// Normalizer converts a raw provider payload into a NormalizedEmail: markup
// stripped, quoted replies and trailing signatures removed, addresses parsed
// into name/address pairs.
//
// Only structurally unparseable input (missing sender or recipients) fails;
// every cleaning heuristic degrades gracefully and falls back to the least
// processed text when it finds no boundary.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer using the wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewNormalizerWithClock creates a Normalizer with an injected clock, for
// deterministic date fallbacks in tests.
func NewNormalizerWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize converts raw into its canonical form.
func (n *Normalizer) Normalize(raw RawEmail) (*NormalizedEmail, error) {
	from := parseAddress(raw.From)
	if from.Email == "" {
		return nil, fmt.Errorf("%w: missing or invalid 'from' address", cierrors.ErrNormalization)
	}

	to := parseAddressList(raw.To)
	if len(to) == 0 {
		return nil, fmt.Errorf("%w: missing or invalid 'to' addresses", cierrors.ErrNormalization)
	}
	cc := parseAddressList(raw.Cc)

	subject := raw.Subject
	if subject == "" {
		subject = "(No Subject)"
	}

	headers := Headers{
		Subject:    subject,
		Date:       n.parseDate(raw.Date),
		MessageID:  raw.MessageID,
		ThreadID:   raw.ThreadID,
		InReplyTo:  raw.InReplyTo,
		References: raw.References,
	}

	body := Body{
		RawHTML:        raw.HTML,
		RawText:        raw.Text,
		NormalizedText: n.cleanBody(raw.HTML, raw.Text),
	}

	return &NormalizedEmail{
		From:       from,
		To:         to,
		Cc:         cc,
		Headers:    headers,
		Body:       body,
		ReceivedAt: n.now(),
	}, nil
}

// cleanBody produces the normalized text, preferring HTML over plain text.
func (n *Normalizer) cleanBody(htmlBody, textBody string) string {
	var text string
	switch {
	case htmlBody != "":
		text = StripHTML(htmlBody)
	case textBody != "":
		text = textBody
	default:
		return ""
	}

	text = RemoveQuotedReply(text)
	text = RemoveSignature(text)
	return strings.TrimSpace(text)
}

// parseDate parses the payload date, falling back to the current time.
func (n *Normalizer) parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return n.now()
	}

	if t, err := mail.ParseDate(s); err == nil {
		return t
	}

	formats := []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}

	return n.now()
}

// parseAddress parses "Display Name <addr@host>" or a bare address. Returns a
// zero Address when nothing address-like is found.
func parseAddress(raw string) Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}
	}

	if addr, err := mail.ParseAddress(raw); err == nil {
		return Address{Email: addr.Address, Name: addr.Name}
	}

	// Fall back to angle-bracket extraction for headers net/mail rejects.
	if start := strings.Index(raw, "<"); start != -1 {
		if end := strings.Index(raw, ">"); end > start {
			name := strings.Trim(strings.TrimSpace(raw[:start]), "\"")
			return Address{Email: raw[start+1 : end], Name: name}
		}
	}

	if strings.Contains(raw, "@") {
		return Address{Email: raw}
	}
	return Address{}
}

// parseAddressList parses each entry, dropping those with no address.
func parseAddressList(raws []string) []Address {
	var out []Address
	for _, raw := range raws {
		if addr := parseAddress(raw); addr.Email != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Tags whose content never belongs in the normalized body.
var skippedTags = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
	"title":  true,
}

// Tags that terminate a line of text.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "table": true, "ul": true, "ol": true,
}

// StripHTML removes all markup from an HTML body, preserving paragraph
// breaks as newlines. Malformed markup degrades to whatever text the
// tokenizer can recover; it never fails.
func StripHTML(src string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseLines(b.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedTags[tag] {
				skipDepth++
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if skippedTags[tag] && skipDepth > 0 {
				skipDepth--
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if blockTags[string(name)] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// collapseLines trims every line and drops empty ones, keeping one newline
// per paragraph break.
func collapseLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

var quoteIntroPattern = regexp.MustCompile(`^On .+ wrote:\s*$`)

// quoteBoundary reports whether line begins a quoted-reply block.
func quoteBoundary(line string) bool {
	stripped := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(stripped, ">"):
		return true
	case quoteIntroPattern.MatchString(stripped):
		return true
	case strings.Contains(stripped, "-----Original Message-----"):
		return true
	case strings.HasPrefix(stripped, "---------- Forwarded message"):
		return true
	case strings.HasPrefix(stripped, "Begin forwarded message:"):
		return true
	}
	return false
}

// RemoveQuotedReply truncates text at the first detected quote boundary,
// discarding the boundary line and everything after it. Text with no
// boundary is returned unchanged.
func RemoveQuotedReply(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if quoteBoundary(line) {
			return strings.TrimRight(strings.Join(lines[:i], "\n"), " \t\n")
		}
	}
	return text
}

// Signature boundary patterns, matched anywhere after the first line.
var signaturePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\n--\s*\n`),
	regexp.MustCompile(`\n_{3,}\s*\n`),
	regexp.MustCompile(`(?i)\nSent from my `),
	regexp.MustCompile(`(?i)\nGet Outlook for `),
}

// RemoveSignature cuts the trailing signature block at the earliest detected
// delimiter. Text with no plausible boundary is returned unchanged.
func RemoveSignature(text string) string {
	cut := -1
	for _, pattern := range signaturePatterns {
		if loc := pattern.FindStringIndex(text); loc != nil {
			if cut == -1 || loc[0] < cut {
				cut = loc[0]
			}
		}
	}
	if cut == -1 {
		return text
	}
	return strings.TrimRight(text[:cut], " \t\n")
}
