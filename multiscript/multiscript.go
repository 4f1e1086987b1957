// Package multiscript runs several independently compiled scripts against
// one message, sharing a single result.Result, stopping early on an
// explicit "stop" or "discard", and optionally running a discard script at
// the end.
package multiscript

import (
	"errors"

	"github.com/sievecore/sievecore/compiler"
	"github.com/sievecore/sievecore/delivery"
	"github.com/sievecore/sievecore/interpreter"
	"github.com/sievecore/sievecore/message"
	"github.com/sievecore/sievecore/result"
	"github.com/sievecore/sievecore/sieveerr"
)

// Script names one compiled binary taking part in a chain, for diagnostics.
type Script struct {
	Name     string
	Bytecode *compiler.Bytecode
}

// Controller drives a chain of scripts against one message, accumulating
// their effect into a shared result.Result.
type Controller struct {
	vm     *interpreter.VM
	active bool
	ran    int
}

// New builds a Controller that runs scripts with vm.
func New(vm *interpreter.VM) *Controller {
	return &Controller{vm: vm, active: true}
}

// Active reports whether the chain would still run another script — false
// once some script has invoked "stop" or produced a "discard" action.
func (c *Controller) Active() bool {
	return c.active
}

// Run executes scripts in order against msg, appending their actions to
// res, until one invokes "stop" or the accumulated result already contains
// a discard, or the list is exhausted. It stops (without error) if called
// again after the chain has already gone inactive.
func (c *Controller) Run(scripts []Script, msg message.Message, res *result.Result) error {
	for _, s := range scripts {
		if !c.active {
			return nil
		}
		stopped, err := c.vm.Run(s.Bytecode, msg, res)
		c.ran++
		if err != nil {
			return err
		}
		if stopped || res.HasDiscard() {
			c.active = false
		}
	}
	return nil
}

// WillDiscard reports whether a discard script should run: call it after
// Run has finished the chain (by "stop", "discard", or running out of
// scripts) — true iff nothing has yet stored or forwarded the message.
func (c *Controller) WillDiscard(res *result.Result) bool {
	return !res.HasDeliveryAction()
}

// RunDiscard executes discardScript iff WillDiscard(res). Passing a nil
// discardScript is a no-op (no discard script was configured for this
// instance).
func (c *Controller) RunDiscard(discardScript *compiler.Bytecode, msg message.Message, res *result.Result) error {
	if discardScript == nil || !c.WillDiscard(res) {
		return nil
	}
	_, err := c.vm.Run(discardScript, msg, res)
	c.ran++
	return err
}

// Finish executes the chain's accumulated Result against target. A
// TempFailureError raised partway through Phase A is swallowed — falling
// back to an implicit keep, so the message is not lost — once at least one
// script in this chain has already run; it is returned as-is only when
// nothing has run yet, so the caller can retry the whole chain from
// scratch.
func (c *Controller) Finish(res *result.Result, target delivery.Target) (*result.ExecutionReport, error) {
	report, err := res.Execute(target)
	if err == nil {
		return report, nil
	}

	var tempErr *sieveerr.TempFailureError
	if !errors.As(err, &tempErr) || c.ran == 0 {
		return report, err
	}

	if keepErr := target.StoreToFolder(result.InboxFolder, nil); keepErr != nil {
		return report, &sieveerr.KeepFailedError{Message: "fallback implicit keep failed after a temporary failure", Cause: keepErr}
	}
	report.ImplicitKeepPerformed = true
	return report, nil
}
