package ast

// Test is a boolean condition: "header :contains \"Subject\" \"sale\"",
// "address :localpart :is \"to\" \"alice\"", "size :over 1K", or one of the
// three test-combinators "allof"/"anyof"/"not". Like Command, the test
// vocabulary is open, so Test is one name-dispatched node
// shape rather than a Go type per test.
//
// "allof"/"anyof" carry their operand tests in SubTests (one or more);
// "not" carries exactly one. A plain leaf test (header, address, size, ...)
// leaves SubTests nil.
type Test struct {
	ID  NodeID
	Loc Location

	Name string

	Positional []Argument
	Tagged     []*TagArg
	SubTests   []*Test

	Handler any
}

func (t *Test) Location() Location { return t.Loc }
func (t *Test) NodeID() NodeID     { return t.ID }

// IsCombinator reports whether this test is allof/anyof/not rather than a
// leaf test — i.e. whether code generation should recurse into SubTests
// instead of invoking a single test handler.
func (t *Test) IsCombinator() bool {
	return len(t.SubTests) > 0
}
