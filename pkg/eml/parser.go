// Package eml parses RFC 5322 email files into raw intake payloads. It
// handles multipart MIME, quoted-printable and base64 transfer encodings,
// and the legacy charsets that still show up in office mailboxes.
package eml

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"github.com/brightlane/crm-intake/pkg/intake"
)

// maxBodySize caps how much body text is kept from one message.
const maxBodySize = 1 << 20

// ParseResult is a parsed email plus any non-fatal problems hit on the way.
type ParseResult struct {
	Email    intake.RawEmail
	Warnings []string
}

// ParseFile parses an email from a .eml file.
func ParseFile(path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an email from raw RFC 5322 bytes.
func Parse(data []byte) (*ParseResult, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}

	result := &ParseResult{}
	raw := &result.Email

	raw.From = headerAddress(msg.Header, "From")
	raw.To = headerAddressList(msg.Header, "To")
	raw.Cc = headerAddressList(msg.Header, "Cc")
	raw.Subject = decodeRFC2047(msg.Header.Get("Subject"))
	raw.Date = msg.Header.Get("Date")
	raw.MessageID = cleanMessageID(msg.Header.Get("Message-Id"))
	raw.InReplyTo = cleanMessageID(msg.Header.Get("In-Reply-To"))
	if refs := msg.Header.Get("References"); refs != "" {
		for _, ref := range strings.Fields(refs) {
			if id := cleanMessageID(ref); id != "" {
				raw.References = append(raw.References, id)
			}
		}
	}

	if err := parseBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body, raw, result); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("body parsing warning: %v", err))
	}

	return result, nil
}

// headerAddress returns the first address of a header as "Name <email>".
func headerAddress(h mail.Header, key string) string {
	if addrs, err := h.AddressList(key); err == nil && len(addrs) > 0 {
		return addrs[0].String()
	}
	return strings.TrimSpace(h.Get(key))
}

// headerAddressList returns every address of a header as formatted strings.
func headerAddressList(h mail.Header, key string) []string {
	if addrs, err := h.AddressList(key); err == nil {
		out := make([]string, 0, len(addrs))
		for _, addr := range addrs {
			out = append(out, addr.String())
		}
		return out
	}
	raw := h.Get(key)
	if raw == "" {
		return nil
	}
	return splitAddresses(raw)
}

// splitAddresses splits a raw address header on commas, respecting quoted
// strings and angle brackets.
func splitAddresses(raw string) []string {
	var result []string
	var current strings.Builder
	inQuotes := false
	depth := 0

	for _, r := range raw {
		switch r {
		case '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case '<':
			depth++
			current.WriteRune(r)
		case '>':
			depth--
			current.WriteRune(r)
		case ',':
			if !inQuotes && depth == 0 {
				if s := strings.TrimSpace(current.String()); s != "" {
					result = append(result, s)
				}
				current.Reset()
			} else {
				current.WriteRune(r)
			}
		default:
			current.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		result = append(result, s)
	}
	return result
}

func cleanMessageID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "<") {
		id = "<" + id
	}
	if !strings.HasSuffix(id, ">") {
		id = id + ">"
	}
	return id
}

func decodeRFC2047(s string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// parseBody extracts text and HTML bodies, recursing into multipart
// containers. Attachments are skipped.
func parseBody(contentType, transferEncoding string, body io.Reader, raw *intake.RawEmail, result *ParseResult) error {
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		content, _ := io.ReadAll(body)
		raw.Text = truncate(string(content))
		return nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return parseMultipart(body, params["boundary"], raw, result)
	}

	content, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	content = decodePart(content, transferEncoding, params["charset"], result)

	storeBody(mediaType, string(content), raw)
	return nil
}

func parseMultipart(body io.Reader, boundary string, raw *intake.RawEmail, result *ParseResult) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read part: %w", err)
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if err := parseMultipart(part, params["boundary"], raw, result); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("nested multipart warning: %v", err))
			}
			continue
		}

		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		isAttachment := disposition == "attachment" ||
			(dispParams["filename"] != "" && !strings.HasPrefix(mediaType, "text/"))
		if isAttachment {
			continue
		}
		if !strings.HasPrefix(mediaType, "text/") {
			continue
		}

		content, err := io.ReadAll(part)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("failed to read part: %v", err))
			continue
		}
		content = decodePart(content, part.Header.Get("Content-Transfer-Encoding"), params["charset"], result)

		storeBody(mediaType, string(content), raw)
	}

	return nil
}

// storeBody keeps the first body seen for each content type.
func storeBody(mediaType, content string, raw *intake.RawEmail) {
	content = truncate(content)
	if strings.HasPrefix(mediaType, "text/html") {
		if raw.HTML == "" {
			raw.HTML = content
		}
	} else if raw.Text == "" {
		raw.Text = content
	}
}

func truncate(s string) string {
	if len(s) > maxBodySize {
		return s[:maxBodySize]
	}
	return s
}

// decodePart applies transfer-encoding and charset decoding, degrading to
// the raw bytes with a warning when either fails.
func decodePart(content []byte, transferEncoding, charset string, result *ParseResult) []byte {
	decoded, err := decodeTransferEncoding(content, strings.ToLower(strings.TrimSpace(transferEncoding)))
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("transfer encoding warning: %v", err))
		decoded = content
	}

	if charset != "" && !strings.EqualFold(charset, "utf-8") && !strings.EqualFold(charset, "us-ascii") {
		converted, err := decodeCharset(decoded, charset)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("charset warning: %v", err))
		} else {
			decoded = converted
		}
	}
	return decoded
}

func decodeTransferEncoding(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "base64":
		cleaned := bytes.ReplaceAll(data, []byte("\r\n"), nil)
		cleaned = bytes.ReplaceAll(cleaned, []byte("\n"), nil)
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(cleaned)))
		n, err := base64.StdEncoding.Decode(decoded, cleaned)
		if err != nil {
			return data, fmt.Errorf("base64 decode failed: %w", err)
		}
		return decoded[:n], nil

	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data, fmt.Errorf("quoted-printable decode failed: %w", err)
		}
		return decoded, nil

	default:
		return data, nil
	}
}

func decodeCharset(data []byte, charset string) ([]byte, error) {
	var decoder transform.Transformer
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "iso-8859-1", "latin1", "iso_8859-1":
		decoder = charmap.ISO8859_1.NewDecoder()
	case "iso-8859-2", "latin2":
		decoder = charmap.ISO8859_2.NewDecoder()
	case "iso-8859-15", "latin9":
		decoder = charmap.ISO8859_15.NewDecoder()
	case "windows-1252", "cp1252":
		decoder = charmap.Windows1252.NewDecoder()
	case "windows-1251", "cp1251":
		decoder = charmap.Windows1251.NewDecoder()
	case "koi8-r":
		decoder = charmap.KOI8R.NewDecoder()
	case "gb2312", "gbk", "gb18030":
		decoder = simplifiedchinese.GBK.NewDecoder()
	case "big5":
		decoder = traditionalchinese.Big5.NewDecoder()
	case "euc-jp":
		decoder = japanese.EUCJP.NewDecoder()
	case "iso-2022-jp":
		decoder = japanese.ISO2022JP.NewDecoder()
	case "shift_jis", "shift-jis", "sjis":
		decoder = japanese.ShiftJIS.NewDecoder()
	case "euc-kr":
		decoder = korean.EUCKR.NewDecoder()
	default:
		return data, fmt.Errorf("unknown charset: %s", charset)
	}

	result, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return data, fmt.Errorf("charset decoding failed: %w", err)
	}
	return result, nil
}
