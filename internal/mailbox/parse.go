package mailbox

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"mailtriage/internal/domain"
)

const maxBodyBytes = 1 << 20

// threadIndexRootLen is the header block of an Outlook Thread-Index: a
// timestamp and conversation GUID. Each reply appends five more bytes.
const threadIndexRootLen = 22

var wordDecoder = mime.WordDecoder{}

// Parse reads one message. Missing headers leave the matching fields blank.
func Parse(r io.Reader, storeID, entryID string) (domain.Message, error) {
	m, err := mail.ReadMessage(r)
	if err != nil {
		return domain.Message{}, err
	}
	h := m.Header

	msg := domain.Message{
		Subject:   decodeHeader(h.Get("Subject")),
		Sender:    firstAddress(h.Get("From")),
		To:        addresses(h.Get("To")),
		MessageID: domain.NormalizeMessageID(h.Get("Message-ID")),
		InReplyTo: firstMessageID(h.Get("In-Reply-To")),
		StoreID:   storeID,
		EntryID:   entryID,
	}
	msg.ConversationID = conversationID(h, msg)

	body, err := readBody(h.Get("Content-Type"), h.Get("Content-Transfer-Encoding"), m.Body)
	if err != nil {
		return domain.Message{}, err
	}
	msg.Body = body
	return msg, nil
}

// conversationID prefers the root block of the Outlook Thread-Index header,
// then the root of the References chain, then the parent, then the message
// itself.
func conversationID(h mail.Header, msg domain.Message) string {
	if root := threadIndexRoot(h.Get("Thread-Index")); root != "" {
		return root
	}
	if refs := messageIDs(h.Get("References")); len(refs) > 0 {
		return refs[0]
	}
	if msg.InReplyTo != "" {
		return msg.InReplyTo
	}
	return msg.MessageID
}

// threadIndexRoot returns the shared root of a Thread-Index value, or ""
// when the header is missing or malformed.
func threadIndexRoot(v string) string {
	v = strings.Join(strings.Fields(v), "")
	if v == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil || len(raw) < threadIndexRootLen {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw[:threadIndexRootLen])
}

func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

func firstAddress(v string) string {
	if list := addresses(v); len(list) > 0 {
		return list[0]
	}
	return ""
}

func addresses(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parser := mail.AddressParser{WordDecoder: &wordDecoder}
	list, err := parser.ParseList(v)
	if err != nil {
		var out []string
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
			if p := strings.ToLower(strings.Trim(strings.TrimSpace(part), "<>")); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, strings.ToLower(a.Address))
	}
	return out
}

// messageIDs extracts every <id> token in order.
func messageIDs(v string) []string {
	var out []string
	for {
		start := strings.Index(v, "<")
		if start < 0 {
			break
		}
		end := strings.Index(v[start:], ">")
		if end < 0 {
			break
		}
		if id := domain.NormalizeMessageID(v[start : start+end+1]); id != "" {
			out = append(out, id)
		}
		v = v[start+end+1:]
	}
	return out
}

func firstMessageID(v string) string {
	if ids := messageIDs(v); len(ids) > 0 {
		return ids[0]
	}
	return domain.NormalizeMessageID(v)
}

// readBody returns the text of a message or its first text/plain part,
// falling back to the first text part of any kind.
func readBody(contentType, encoding string, r io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		return readMultipart(params["boundary"], r)
	}
	data, err := io.ReadAll(io.LimitReader(decodeTransfer(encoding, r), maxBodyBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readMultipart(boundary string, r io.Reader) (string, error) {
	mr := multipart.NewReader(r, boundary)
	var fallback string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return fallback, nil
		}
		if err != nil {
			return fallback, err
		}
		ct := part.Header.Get("Content-Type")
		mediaType, _, _ := mime.ParseMediaType(ct)
		if mediaType == "" {
			mediaType = "text/plain"
		}
		if !strings.HasPrefix(mediaType, "text/") && !strings.HasPrefix(mediaType, "multipart/") {
			continue
		}
		text, err := readBody(ct, part.Header.Get("Content-Transfer-Encoding"), part)
		if err != nil {
			return fallback, err
		}
		if mediaType == "text/plain" || (strings.HasPrefix(mediaType, "multipart/") && text != "") {
			return text, nil
		}
		if fallback == "" {
			fallback = text
		}
	}
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}
