package message

import (
	"fmt"
	"io"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/sievecore/sievecore/match"
)

// Static is an in-memory Message built once from a raw RFC 5322 blob. It
// exists to exercise the interpreter and match engine in tests without a
// live mail store.
//
// When EnvelopeFrom/EnvelopeTo are not given explicitly, Static falls back
// to parsing the "From"/"To" headers as envelope data, so raw,
// envelope-less messages can still exercise address and envelope tests.
type Static struct {
	raw        string
	header     textproto.MIMEHeader
	body       string
	size       int64
	envFrom    *match.Address
	envTo      *match.Address
	bodyParts  []BodyPart
}

// NewStatic parses raw (a full RFC 5322 message: headers, blank line,
// body) into a Static message double.
func NewStatic(raw string) (*Static, error) {
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("message: parsing raw message: %w", err)
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("message: reading body: %w", err)
	}
	return &Static{
		raw:    raw,
		header: textproto.MIMEHeader(msg.Header),
		body:   string(body),
		size:   int64(len(raw)),
	}, nil
}

// WithEnvelope overrides the envelope sender/recipient that would otherwise
// be derived from headers.
func (s *Static) WithEnvelope(from, to match.Address) *Static {
	s.envFrom = &from
	s.envTo = &to
	return s
}

// WithBodyParts attaches pre-decoded MIME parts for BodyParts to return.
func (s *Static) WithBodyParts(parts []BodyPart) *Static {
	s.bodyParts = parts
	return s
}

func (s *Static) RawHeaders() string {
	idx := strings.Index(s.raw, "\r\n\r\n")
	if idx < 0 {
		idx = strings.Index(s.raw, "\n\n")
	}
	if idx < 0 {
		return s.raw
	}
	return s.raw[:idx]
}

func (s *Static) Header(name string) []string {
	return s.header.Values(name)
}

func parseAddress(raw string) (match.Address, error) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return match.Address{}, fmt.Errorf("message: parsing address %q: %w", raw, err)
	}
	mailbox, domain := addr.Address, ""
	if at := strings.LastIndexByte(addr.Address, '@'); at >= 0 {
		mailbox, domain = addr.Address[:at], addr.Address[at+1:]
	}
	return match.Address{Name: addr.Name, Mailbox: mailbox, Domain: domain}, nil
}

func (s *Static) Addresses(name string) ([]match.Address, error) {
	values := s.header.Values(name)
	if len(values) == 0 {
		return nil, nil
	}
	addrs, err := mail.ParseAddressList(strings.Join(values, ", "))
	if err != nil {
		return nil, fmt.Errorf("message: parsing address list for %q: %w", name, err)
	}
	out := make([]match.Address, 0, len(addrs))
	for _, a := range addrs {
		mailbox, domain := a.Address, ""
		if at := strings.LastIndexByte(a.Address, '@'); at >= 0 {
			mailbox, domain = a.Address[:at], a.Address[at+1:]
		}
		out = append(out, match.Address{Name: a.Name, Mailbox: mailbox, Domain: domain})
	}
	return out, nil
}

func (s *Static) EnvelopeFrom() (match.Address, error) {
	if s.envFrom != nil {
		return *s.envFrom, nil
	}
	values := s.header.Values("From")
	if len(values) == 0 {
		return match.Address{}, fmt.Errorf("message: no envelope sender and no From header to fall back to")
	}
	return parseAddress(values[0])
}

func (s *Static) EnvelopeTo() (match.Address, error) {
	if s.envTo != nil {
		return *s.envTo, nil
	}
	values := s.header.Values("To")
	if len(values) == 0 {
		return match.Address{}, fmt.Errorf("message: no envelope recipient and no To header to fall back to")
	}
	return parseAddress(values[0])
}

func (s *Static) Size() int64 {
	return s.size
}

func (s *Static) BodyParts() ([]BodyPart, error) {
	if s.bodyParts != nil {
		return s.bodyParts, nil
	}
	return []BodyPart{{ContentType: "text/plain", Content: s.body}}, nil
}
