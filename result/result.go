package result

import (
	"fmt"

	"github.com/sievecore/sievecore/delivery"
	"github.com/sievecore/sievecore/sieveerr"
)

// Result is the ordered, deduplicating action bag the interpreter fills in
// while running a script. Zero value is not usable; build
// one with New.
type Result struct {
	actions map[string]int // equivalentKey -> index into order, for dedup
	order   []Action

	pendingFlags []string // current imap4flags state

	redirectCount int
	maxRedirects  int
	maxActions    int
}

// New builds an empty Result. maxRedirects caps the number of distinct
// redirect targets a single script run may accumulate, maxActions the
// total number of distinct actions; zero means unlimited for either.
func New(maxRedirects, maxActions int) *Result {
	return &Result{
		actions:      make(map[string]int),
		maxRedirects: maxRedirects,
		maxActions:   maxActions,
	}
}

func (r *Result) add(a Action) error {
	key := a.equivalentKey()
	if idx, ok := r.actions[key]; ok {
		// Re-adding a store action folds new flags into the existing one
		// instead of appending a duplicate.
		r.order[idx].Flags = mergeFlags(r.order[idx].Flags, a.Flags)
		return nil
	}
	if r.maxActions > 0 && len(r.order) >= r.maxActions {
		return &sieveerr.ResourceError{Limit: "action", Message: fmt.Sprintf("script attempted more than %d actions", r.maxActions)}
	}
	r.actions[key] = len(r.order)
	r.order = append(r.order, a)
	return nil
}

func mergeFlags(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, f := range out {
		seen[f] = true
	}
	for _, f := range add {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// AddKeep records a keep action, attaching any flags accumulated via
// ApplyFlags plus the explicit ones passed here.
func (r *Result) AddKeep(flags []string) error {
	return r.add(Action{Kind: ActionKeep, Flags: mergeFlags(r.pendingFlags, flags)})
}

// AddFileinto records a fileinto action.
func (r *Result) AddFileinto(folder string, flags []string) error {
	return r.add(Action{Kind: ActionFileinto, Folder: folder, Flags: mergeFlags(r.pendingFlags, flags)})
}

// AddRedirect records a redirect action, enforcing the resource cap.
func (r *Result) AddRedirect(address string) error {
	if _, ok := r.actions["redirect:"+address]; !ok {
		if r.maxRedirects > 0 && r.redirectCount >= r.maxRedirects {
			return &sieveerr.ResourceError{Limit: "redirect", Message: fmt.Sprintf("script attempted more than %d redirects", r.maxRedirects)}
		}
		r.redirectCount++
	}
	return r.add(Action{Kind: ActionRedirect, Address: address})
}

// AddDiscard records a discard action.
func (r *Result) AddDiscard() error {
	return r.add(Action{Kind: ActionDiscard})
}

// AddReject records a reject action.
func (r *Result) AddReject(reason string) error {
	return r.add(Action{Kind: ActionReject, Reason: reason})
}

// AddVacation records a vacation action.
func (r *Result) AddVacation(args VacationArgs) error {
	return r.add(Action{Kind: ActionVacation, Vacation: args})
}

// ApplyFlags implements the imap4flags extension's setflag/addflag/removeflag
// commands: op is "set", "add" or "remove", mutating the flag state later
// AddKeep/AddFileinto calls pick up.
func (r *Result) ApplyFlags(op string, flags []string) {
	switch op {
	case "set":
		r.pendingFlags = append([]string(nil), flags...)
	case "add":
		r.pendingFlags = mergeFlags(r.pendingFlags, flags)
	case "remove":
		kept := r.pendingFlags[:0:0]
		remove := make(map[string]bool, len(flags))
		for _, f := range flags {
			remove[f] = true
		}
		for _, f := range r.pendingFlags {
			if !remove[f] {
				kept = append(kept, f)
			}
		}
		r.pendingFlags = kept
	}
}

// PendingFlags returns a copy of the imap4flags internal variable's
// current value, for the "hasflag" test to consult.
func (r *Result) PendingFlags() []string {
	return append([]string(nil), r.pendingFlags...)
}

// Actions returns the accumulated action list in the order the actions
// were first added. Conflicts are resolved only once Resolve has run
// (Execute calls it); Execute plays actions back grouped by kind.
func (r *Result) Actions() []Action {
	return r.order
}

// Resolve applies the conflict-resolution rule: any action that stores or
// forwards the message (fileinto, keep, redirect) cancels a discard, since
// an explicit discard only takes effect when it is the sole disposition
// (RFC 5228 §2.10.2).
func (r *Result) Resolve() {
	hasStore := false
	for _, a := range r.order {
		if a.Kind == ActionFileinto || a.Kind == ActionKeep || a.Kind == ActionRedirect {
			hasStore = true
			break
		}
	}
	if !hasStore {
		return
	}
	filtered := r.order[:0:0]
	for _, a := range r.order {
		if a.Kind == ActionDiscard {
			continue
		}
		filtered = append(filtered, a)
	}
	r.order = filtered
	r.actions = make(map[string]int, len(r.order))
	for i, a := range r.order {
		r.actions[a.equivalentKey()] = i
	}
}

// HasDiscard reports whether the accumulated action set already contains
// a discard — multiscript.Controller consults this (together with a
// script's "stop") to decide whether to skip the remaining scripts in a
// chain.
func (r *Result) HasDiscard() bool {
	for _, a := range r.order {
		if a.Kind == ActionDiscard {
			return true
		}
	}
	return false
}

// HasDeliveryAction reports whether the accumulated action set already
// stores or forwards the message (fileinto, keep, redirect) — the
// condition that suppresses running a discard script at the end of a
// multiscript chain.
func (r *Result) HasDeliveryAction() bool {
	for _, a := range r.order {
		switch a.Kind {
		case ActionFileinto, ActionKeep, ActionRedirect:
			return true
		}
	}
	return false
}

// hasDisposition reports whether the resolved action set already stores,
// forwards, discards or rejects the message — i.e. whether Phase B's
// implicit keep should be suppressed.
func (r *Result) hasDisposition() bool {
	for _, a := range r.order {
		switch a.Kind {
		case ActionFileinto, ActionKeep, ActionRedirect, ActionDiscard, ActionReject:
			return true
		}
	}
	return false
}

// ExecutionReport summarizes what Execute actually did, for callers (mainly
// multiscript.Controller) that need to decide on fallback behaviour.
type ExecutionReport struct {
	Executed             []Action
	ImplicitKeepPerformed bool
}

// Execute runs the two delivery phases: first every accumulated action is
// played back against target in storage/forward/terminal order, then an
// implicit keep is performed iff that produced no disposition at all. A failure partway through Phase A (other than a
// TempFailureError, which is returned immediately so the caller can retry
// later) is reported by returning the error after recording what succeeded.
func (r *Result) Execute(target delivery.Target) (*ExecutionReport, error) {
	r.Resolve()

	report := &ExecutionReport{}

	order := []ActionKind{ActionFileinto, ActionKeep, ActionRedirect, ActionDiscard, ActionReject, ActionVacation}
	for _, kind := range order {
		for _, a := range r.order {
			if a.Kind != kind {
				continue
			}
			if err := executeOne(target, a); err != nil {
				return report, err
			}
			report.Executed = append(report.Executed, a)
		}
	}

	if !r.hasDisposition() {
		if err := target.StoreToFolder(InboxFolder, nil); err != nil {
			return report, err
		}
		report.ImplicitKeepPerformed = true
	}

	return report, nil
}

func executeOne(target delivery.Target, a Action) error {
	switch a.Kind {
	case ActionFileinto:
		return target.StoreToFolder(a.Folder, a.Flags)
	case ActionKeep:
		return target.StoreToFolder(InboxFolder, a.Flags)
	case ActionRedirect:
		return target.ForwardTo(a.Address)
	case ActionDiscard:
		return target.Discard()
	case ActionReject:
		return target.RejectWithText(a.Reason)
	case ActionVacation:
		// Vacation's dup suppression and :days throttling are
		// interpreter-side bookkeeping; by the time an Action reaches here
		// it is a plain "send this autoreply".
		return target.SendReply(vacationReplyAddress(a.Vacation), a.Vacation.Subject, a.Vacation.Reason)
	default:
		return nil
	}
}

func vacationReplyAddress(v VacationArgs) string {
	if len(v.Addresses) > 0 {
		return v.Addresses[0]
	}
	return ""
}
