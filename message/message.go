// Package message defines the Message access collaborator
// the interpreter queries while evaluating tests, plus an in-memory test
// double (Static) that implements it over net/mail and net/textproto.
//
// The real mail-store glue — opening a live message from disk or from an
// LMTP session — is an explicit Non-goal; nothing in this
// package talks to storage. Static exists only so the validator/interpreter
// and match engine can be exercised end-to-end in tests.
package message

import "github.com/sievecore/sievecore/match"

// BodyPart is one decoded MIME part of a message.
type BodyPart struct {
	ContentType string
	Content     string
}

// Message is the interface the interpreter and match engine consult. Every
// method the interpreter calls may block on storage I/O in a real
// implementation; Static answers
// immediately from memory.
type Message interface {
	// RawHeaders returns the unparsed header blob exactly as received.
	RawHeaders() string

	// Header returns every value of the named header, in the order they
	// appeared (RFC 5228 requires header tests to consider all instances).
	Header(name string) []string

	// Addresses parses the named header's value as an RFC 5322 address
	// list (e.g. "To", "From", "Cc").
	Addresses(name string) ([]match.Address, error)

	// EnvelopeFrom and EnvelopeTo return the SMTP envelope sender and
	// (first) recipient. A collaborator with no live envelope (a raw,
	// file-backed message) may fall back to header-derived addresses —
	// see Static's header fallback in static.go.
	EnvelopeFrom() (match.Address, error)
	EnvelopeTo() (match.Address, error)

	// Size returns the message's physical size in bytes, as consumed by
	// the "size" test.
	Size() int64

	// BodyParts returns the message's decoded MIME parts.
	BodyParts() ([]BodyPart, error)
}
