// Package webhook parses inbound-email webhook payloads from hosted email
// providers into raw intake payloads.
package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
	"github.com/brightlane/crm-intake/pkg/intake"
)

// Provider identifies the webhook payload format.
type Provider string

const (
	ProviderSendGrid Provider = "sendgrid"
	ProviderMailgun  Provider = "mailgun"
	ProviderGeneric  Provider = "generic"
)

// maxPayloadSize bounds how much of a webhook body is read.
const maxPayloadSize = 10 << 20

// Parse extracts a raw email from a provider webhook request. Unknown
// providers fall back to the generic JSON format.
func Parse(provider Provider, r *http.Request) (intake.RawEmail, error) {
	switch provider {
	case ProviderSendGrid:
		return ParseSendGrid(r)
	case ProviderMailgun:
		return ParseMailgun(r)
	default:
		return ParseGeneric(r)
	}
}

// ParseSendGrid parses a SendGrid Inbound Parse POST. SendGrid sends a
// multipart form with from/to/subject/text/html fields.
func ParseSendGrid(r *http.Request) (intake.RawEmail, error) {
	if err := parseForm(r); err != nil {
		return intake.RawEmail{}, err
	}

	raw := intake.RawEmail{
		From:    r.FormValue("from"),
		To:      splitRecipients(r.FormValue("to")),
		Cc:      splitRecipients(r.FormValue("cc")),
		Subject: r.FormValue("subject"),
		Text:    r.FormValue("text"),
		HTML:    r.FormValue("html"),
	}
	return validated(raw)
}

// ParseMailgun parses a Mailgun routes POST. Mailgun's stripped-text field
// already has quotes and signatures removed, so it is preferred over
// body-plain when present.
func ParseMailgun(r *http.Request) (intake.RawEmail, error) {
	if err := parseForm(r); err != nil {
		return intake.RawEmail{}, err
	}

	text := r.FormValue("stripped-text")
	if text == "" {
		text = r.FormValue("body-plain")
	}
	html := r.FormValue("stripped-html")
	if html == "" {
		html = r.FormValue("body-html")
	}

	raw := intake.RawEmail{
		From:      r.FormValue("sender"),
		To:        splitRecipients(r.FormValue("recipient")),
		Subject:   r.FormValue("subject"),
		Text:      text,
		HTML:      html,
		MessageID: r.FormValue("Message-Id"),
		InReplyTo: r.FormValue("In-Reply-To"),
	}
	if raw.From == "" {
		raw.From = r.FormValue("from")
	}
	return validated(raw)
}

// ParseGeneric parses a JSON webhook body matching the RawEmail shape.
// The to and cc fields accept either a string or an array of strings.
func ParseGeneric(r *http.Request) (intake.RawEmail, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadSize))
	if err != nil {
		return intake.RawEmail{}, fmt.Errorf("%w: failed to read payload: %v", cierrors.ErrValidation, err)
	}

	var raw intake.RawEmail
	if err := json.Unmarshal(body, &raw); err != nil {
		return intake.RawEmail{}, fmt.Errorf("%w: malformed JSON payload: %v", cierrors.ErrValidation, err)
	}
	return validated(raw)
}

func parseForm(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxPayloadSize); err != nil {
			return fmt.Errorf("%w: malformed multipart payload: %v", cierrors.ErrValidation, err)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: malformed form payload: %v", cierrors.ErrValidation, err)
	}
	return nil
}

// splitRecipients splits a comma-separated recipient header.
func splitRecipients(s string) intake.FlexStrings {
	if s == "" {
		return nil
	}
	var out intake.FlexStrings
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// validated rejects payloads with no sender or recipients before they enter
// the pipeline.
func validated(raw intake.RawEmail) (intake.RawEmail, error) {
	if strings.TrimSpace(raw.From) == "" {
		return intake.RawEmail{}, fmt.Errorf("%w: payload has no sender", cierrors.ErrValidation)
	}
	if len(raw.To) == 0 {
		return intake.RawEmail{}, fmt.Errorf("%w: payload has no recipients", cierrors.ErrValidation)
	}
	return raw, nil
}
