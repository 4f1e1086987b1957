package extension

import (
	"fmt"

	"github.com/sievecore/sievecore/ast"
)

// RegisterBuiltins populates registry with the preloaded comparator/
// match-type/address-part trio (registered first so they hold the lowest
// ids) followed by the "@core" hidden extension carrying every command and
// test RFC 5228 grants without a require, then the optional extensions this
// repository implements. allowDeprecatedImapflags gates the legacy
// "imapflags" extension behind an explicit flag rather than the
// sieve_extensions knob.
func RegisterBuiltins(r *Registry, allowDeprecatedImapflags bool) error {
	if err := registerComparator(r); err != nil {
		return err
	}
	if err := registerMatchType(r); err != nil {
		return err
	}
	if err := registerAddressPart(r); err != nil {
		return err
	}
	if err := registerCore(r); err != nil {
		return err
	}
	if err := registerFileinto(r); err != nil {
		return err
	}
	if err := registerEnvelope(r); err != nil {
		return err
	}
	if err := registerReject(r); err != nil {
		return err
	}
	if err := registerVacation(r); err != nil {
		return err
	}
	if err := registerImap4Flags(r); err != nil {
		return err
	}
	if err := registerRelational(r); err != nil {
		return err
	}
	if err := registerVariables(r); err != nil {
		return err
	}
	if err := registerEreject(r); err != nil {
		return err
	}
	if allowDeprecatedImapflags {
		if err := registerImapflags(r); err != nil {
			return err
		}
	}
	return nil
}

func validComparatorName(name string) bool {
	switch name {
	case "i;octet", "i;ascii-casemap", "i;ascii-numeric":
		return true
	}
	return false
}

func registerComparator(r *Registry) error {
	tags := map[string]TagSpec{
		":comparator": {
			Name: "comparator", TakesArgument: true, ArgumentKind: ArgKindString,
			Validate: func(tag *ast.TagArg) error {
				s, ok := tag.Parameter.(*ast.StringArg)
				if !ok {
					return fmt.Errorf(":comparator requires a string argument")
				}
				if !validComparatorName(s.Value) {
					return fmt.Errorf("unknown comparator %q", s.Value)
				}
				return nil
			},
		},
	}
	_, err := r.Register("comparator", true, nil, nil, tags)
	return err
}

func registerMatchType(r *Registry) error {
	leaf := func(name string) TagSpec {
		return TagSpec{Name: name, Validate: func(*ast.TagArg) error { return nil }}
	}
	tags := map[string]TagSpec{
		":is":       leaf("is"),
		":contains": leaf("contains"),
		":matches":  leaf("matches"),
		":regex":    leaf("regex"),
	}
	_, err := r.Register("match-type", true, nil, nil, tags)
	return err
}

func registerAddressPart(r *Registry) error {
	leaf := func(name string) TagSpec {
		return TagSpec{Name: name, Validate: func(*ast.TagArg) error { return nil }}
	}
	tags := map[string]TagSpec{
		":all":       leaf("all"),
		":localpart": leaf("localpart"),
		":domain":    leaf("domain"),
	}
	_, err := r.Register("address-part", true, nil, nil, tags)
	return err
}

// registerCore registers the control construct and the handful of
// commands/tests RFC 5228 grants every script without a require: if/elsif/
// else, require, stop, keep, discard, redirect, and the header/address/
// size/allof/anyof/not tests. Its name is hidden (leading "@") so it never
// appears in the capability string.
func registerCore(r *Registry) error {
	sizeTag := []string{":over", ":under"}
	addrTags := []string{":all", ":localpart", ":domain", ":comparator", ":is", ":contains", ":matches", ":regex"}

	commands := map[string]CommandSpec{
		"if": {
			Name: "if", MinPositional: 0, MaxPositional: 0, AllowsBlock: true, IsControl: true,
		},
		"require": {
			Name: "require", MinPositional: 1, MaxPositional: 1,
			PositionalKinds: []ArgKind{ArgKindStringList},
		},
		"stop": {Name: "stop", MinPositional: 0, MaxPositional: 0},
		"keep": {Name: "keep", MinPositional: 0, MaxPositional: 0, AllowedTags: []string{":flags"}},
		"discard": {Name: "discard", MinPositional: 0, MaxPositional: 0},
		"redirect": {
			Name: "redirect", MinPositional: 1, MaxPositional: 1,
			PositionalKinds: []ArgKind{ArgKindString},
		},
	}

	tests := map[string]TestSpec{
		"header": {
			Name: "header", MinPositional: 2, MaxPositional: 2,
			PositionalKinds: []ArgKind{ArgKindStringList, ArgKindStringList},
			AllowedTags:     []string{":comparator", ":is", ":contains", ":matches", ":regex"},
		},
		"address": {
			Name: "address", MinPositional: 2, MaxPositional: 2,
			PositionalKinds: []ArgKind{ArgKindStringList, ArgKindStringList},
			AllowedTags:     addrTags,
		},
		"size": {
			Name: "size", MinPositional: 1, MaxPositional: 1,
			PositionalKinds: []ArgKind{ArgKindNumber},
			AllowedTags:     sizeTag,
		},
		"true":  {Name: "true", MinPositional: 0, MaxPositional: 0},
		"false": {Name: "false", MinPositional: 0, MaxPositional: 0},
		"exists": {
			Name: "exists", MinPositional: 1, MaxPositional: 1,
			PositionalKinds: []ArgKind{ArgKindStringList},
		},
		"allof": {Name: "allof", IsCombinator: true, MinSubTests: 1, MaxSubTests: -1},
		"anyof": {Name: "anyof", IsCombinator: true, MinSubTests: 1, MaxSubTests: -1},
		"not":   {Name: "not", IsCombinator: true, MinSubTests: 1, MaxSubTests: 1},
	}

	_, err := r.Register("@core", true, commands, tests, nil)
	return err
}

func registerFileinto(r *Registry) error {
	commands := map[string]CommandSpec{
		"fileinto": {
			Name: "fileinto", MinPositional: 1, MaxPositional: 1,
			PositionalKinds: []ArgKind{ArgKindString},
			AllowedTags:     []string{":flags", ":copy"},
		},
	}
	_, err := r.Register("fileinto", false, commands, nil, nil)
	return err
}

func registerEnvelope(r *Registry) error {
	tests := map[string]TestSpec{
		"envelope": {
			Name: "envelope", MinPositional: 2, MaxPositional: 2,
			PositionalKinds: []ArgKind{ArgKindStringList, ArgKindStringList},
			AllowedTags: []string{
				":all", ":localpart", ":domain", ":comparator", ":is", ":contains", ":matches", ":regex",
			},
		},
	}
	_, err := r.Register("envelope", false, nil, tests, nil)
	return err
}

func registerReject(r *Registry) error {
	commands := map[string]CommandSpec{
		"reject": {
			Name: "reject", MinPositional: 1, MaxPositional: 1,
			PositionalKinds: []ArgKind{ArgKindString},
		},
	}
	_, err := r.Register("reject", false, commands, nil, nil)
	return err
}

func registerVacation(r *Registry) error {
	commands := map[string]CommandSpec{
		"vacation": {
			Name: "vacation", MinPositional: 1, MaxPositional: 1,
			PositionalKinds: []ArgKind{ArgKindString},
			AllowedTags:     []string{":days", ":subject", ":from", ":addresses", ":mime", ":handle"},
		},
	}
	_, err := r.Register("vacation", false, commands, nil, nil)
	return err
}

func registerImap4Flags(r *Registry) error {
	flagTags := []string{":flags"}
	commands := map[string]CommandSpec{
		"setflag":     {Name: "setflag", MinPositional: 1, MaxPositional: 1, PositionalKinds: []ArgKind{ArgKindStringList}},
		"addflag":     {Name: "addflag", MinPositional: 1, MaxPositional: 1, PositionalKinds: []ArgKind{ArgKindStringList}},
		"removeflag":  {Name: "removeflag", MinPositional: 1, MaxPositional: 1, PositionalKinds: []ArgKind{ArgKindStringList}},
	}
	tests := map[string]TestSpec{
		"hasflag": {Name: "hasflag", MinPositional: 1, MaxPositional: 1, PositionalKinds: []ArgKind{ArgKindStringList}, AllowedTags: flagTags},
	}
	_, err := r.Register("imap4flags", false, commands, tests, nil)
	return err
}

// registerImapflags registers the deprecated, pre-RFC5232 "imapflags"
// extension purely as a recognizable, requirable name, for scripts written
// against the old draft. It contributes no distinct commands of its own
// here — enabling it only satisfies a script's "require \"imapflags\";" so
// that name resolves instead of failing validation.
func registerImapflags(r *Registry) error {
	_, err := r.Register("imapflags", false, nil, nil, nil)
	return err
}

func registerRelational(r *Registry) error {
	validOp := func(op string) bool {
		switch op {
		case "gt", "ge", "lt", "le", "eq", "ne":
			return true
		}
		return false
	}
	opValidate := func(tag *ast.TagArg) error {
		s, ok := tag.Parameter.(*ast.StringArg)
		if !ok {
			return fmt.Errorf("%s requires a string operator argument", tag.Name)
		}
		if !validOp(s.Value) {
			return fmt.Errorf("unknown relational operator %q", s.Value)
		}
		return nil
	}
	tags := map[string]TagSpec{
		":count": {Name: "count", TakesArgument: true, ArgumentKind: ArgKindString, Validate: opValidate},
		":value": {Name: "value", TakesArgument: true, ArgumentKind: ArgKindString, Validate: opValidate},
	}
	_, err := r.Register("relational", false, nil, nil, tags)
	return err
}

func registerVariables(r *Registry) error {
	commands := map[string]CommandSpec{
		"set": {
			Name: "set", MinPositional: 2, MaxPositional: 2,
			PositionalKinds: []ArgKind{ArgKindString, ArgKindString},
			AllowedTags:     []string{":lower", ":upper", ":lowerfirst", ":upperfirst", ":quotewildcard", ":length"},
		},
	}
	_, err := r.Register("variables", false, commands, nil, nil)
	return err
}

func registerEreject(r *Registry) error {
	commands := map[string]CommandSpec{
		"ereject": {
			Name: "ereject", MinPositional: 1, MaxPositional: 1,
			PositionalKinds: []ArgKind{ArgKindString},
		},
	}
	_, err := r.Register("ereject", false, commands, nil, nil)
	return err
}
