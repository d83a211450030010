package email

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/brandon/mail-client/pkg/types"
)

const (
	// NoSubject is shown for messages whose subject is empty after decoding
	NoSubject = "(no subject)"
	// BodyUnavailable is shown when no part of the message can be decoded
	BodyUnavailable = "(Could not decode message body.)"
)

var headerDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// charsetReader resolves RFC 2047 charsets, reading unknown ones as lossy UTF-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	r, err := charset.Reader(label, input)
	if err != nil {
		return transform.NewReader(input, unicode.UTF8.NewDecoder()), nil
	}
	return r, nil
}

// toUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func toUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

// DecodeHeaderText decodes RFC 2047 encoded words in a header value.
// On any failure the raw value is returned unchanged.
func DecodeHeaderText(raw string) string {
	decoded, err := headerDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return toUTF8([]byte(decoded))
}

func isLeaf(p *enmime.Part) bool {
	return p.FirstChild == nil && !strings.HasPrefix(strings.ToLower(p.ContentType), "multipart/")
}

// ExtractPlainTextBody picks the first text/plain leaf of the part tree,
// falling back to the first leaf of any type.
func ExtractPlainTextBody(root *enmime.Part) string {
	if root == nil {
		return BodyUnavailable
	}

	part := root.DepthMatchFirst(func(p *enmime.Part) bool {
		return isLeaf(p) && strings.EqualFold(p.ContentType, "text/plain")
	})
	if part == nil {
		part = root.DepthMatchFirst(isLeaf)
	}
	if part == nil {
		return BodyUnavailable
	}
	return toUTF8(part.Content)
}

// ParseMessage builds a Message from raw RFC 822 bytes.
func ParseMessage(serverID uint32, raw []byte) (types.Message, error) {
	if len(raw) == 0 {
		return types.Message{}, fmt.Errorf("message %d has an empty body", serverID)
	}

	root, err := enmime.ReadParts(bytes.NewReader(raw))
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to parse message %d: %w", serverID, err)
	}

	subject := strings.TrimSpace(DecodeHeaderText(root.Header.Get("Subject")))
	if subject == "" {
		subject = NoSubject
	}

	return types.Message{
		ServerID: serverID,
		Subject:  subject,
		From:     DecodeHeaderText(root.Header.Get("From")),
		To:       DecodeHeaderText(root.Header.Get("To")),
		Body:     ExtractPlainTextBody(root),
	}, nil
}

// ParseRecipients splits a comma separated recipient list, dropping empty entries.
func ParseRecipients(input string) ([]string, error) {
	var recipients []string
	for _, r := range strings.Split(input, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return nil, &ValidationError{Field: "recipients", Message: "at least one recipient is required"}
	}
	return recipients, nil
}

// Encode serializes an outgoing message as a single-part UTF-8 text message.
func Encode(msg *types.OutgoingMessage) []byte {
	return encodeMessage(msg, time.Now(), newMessageID(msg.From))
}

func newMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func encodeMessage(msg *types.OutgoingMessage, date time.Time, messageID string) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, "From", msg.From)
	writeHeader(&buf, "To", strings.Join(msg.To, ", "))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", headerValue(msg.Subject)))
	writeHeader(&buf, "Date", date.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", "text/plain; charset=utf-8")

	body := normalizeNewlines(msg.Body)
	if isASCII(body) {
		writeHeader(&buf, "Content-Transfer-Encoding", "7bit")
		buf.WriteString("\r\n")
		buf.WriteString(body)
		return buf.Bytes()
	}

	writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
	buf.WriteString("\r\n")
	qp := quotedprintable.NewWriter(&buf)
	qp.Write([]byte(body)) //nolint:errcheck
	qp.Close()             //nolint:errcheck
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(headerValue(value))
	buf.WriteString("\r\n")
}

// headerValue keeps user input from terminating the header line.
func headerValue(s string) string {
	return strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
