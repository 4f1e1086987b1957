// Package delivery defines the Delivery target collaborator
// Result.Execute (result/result.go) drives during Phase A/B execution, plus
// an in-memory test double (Recorder) that implements it.
package delivery

import "github.com/sievecore/sievecore/sieveerr"

// Target is the interface the delivery-producing side of the interpreter's
// output talks to. A real implementation stores to a Maildir/mdbox, speaks
// LMTP for forwards, and so on; this repository only defines the interface
// and a recording test double.
type Target interface {
	// StoreToFolder delivers a copy of the message into the named folder,
	// with the given IMAP flags attached.
	StoreToFolder(folder string, flags []string) error

	// ForwardTo relays the message via SMTP to address.
	ForwardTo(address string) error

	// Discard acknowledges the message without storing or forwarding it.
	Discard() error

	// RejectWithText bounces the message back to its sender with reason
	// as the (DSN or MDN) explanation text.
	RejectWithText(reason string) error

	// SendReply sends an autoresponder reply (the vacation extension) to
	// address with the given subject and body text. An empty address
	// means "reply to the envelope sender".
	SendReply(address, subject, body string) error

	// TempFailure signals a retryable failure partway through execution.
	TempFailure(err error) error

	// Postmaster returns the address DSN/MDN generation should attribute
	// bounce messages to.
	Postmaster() string
}

// Recorder is an in-memory Target double: every call appends to a log
// instead of touching real storage or SMTP, so tests can assert on what the
// interpreter would have done.
type Recorder struct {
	Stores    []StoreCall
	Forwards  []string
	Discards  int
	Rejects   []string
	Replies   []ReplyCall
	TempFails []error
	PostAddr  string
}

// StoreCall records one StoreToFolder invocation.
type StoreCall struct {
	Folder string
	Flags  []string
}

// ReplyCall records one SendReply invocation.
type ReplyCall struct {
	Address string
	Subject string
	Body    string
}

// NewRecorder constructs an empty Recorder whose postmaster address is
// postmaster.
func NewRecorder(postmaster string) *Recorder {
	return &Recorder{PostAddr: postmaster}
}

func (r *Recorder) StoreToFolder(folder string, flags []string) error {
	r.Stores = append(r.Stores, StoreCall{Folder: folder, Flags: flags})
	return nil
}

func (r *Recorder) ForwardTo(address string) error {
	r.Forwards = append(r.Forwards, address)
	return nil
}

func (r *Recorder) Discard() error {
	r.Discards++
	return nil
}

func (r *Recorder) RejectWithText(reason string) error {
	r.Rejects = append(r.Rejects, reason)
	return nil
}

func (r *Recorder) SendReply(address, subject, body string) error {
	r.Replies = append(r.Replies, ReplyCall{Address: address, Subject: subject, Body: body})
	return nil
}

func (r *Recorder) TempFailure(err error) error {
	r.TempFails = append(r.TempFails, err)
	return &sieveerr.TempFailureError{Message: "delivery reported a temporary failure", Cause: err}
}

func (r *Recorder) Postmaster() string {
	return r.PostAddr
}
