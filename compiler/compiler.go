// Package compiler turns one validated ast.Script into Bytecode: a flat,
// stack-machine instruction stream plus a constants pool (code.go), built
// with an emit/patchJump backpatching pass that lowers Sieve's N-ary
// allof/anyof and if/elsif/else chains into short-circuited jump chains.
//
// Compile assumes the script already passed validator.Validate: argument
// counts, kinds, and tag legality are not re-checked here. An AST shape
// this package cannot make sense of is an InternalError, not a user-facing
// diagnostic.
package compiler

import (
	"github.com/sievecore/sievecore/ast"
	"github.com/sievecore/sievecore/extension"
	"github.com/sievecore/sievecore/validator"
)

// Compiler walks one ast.Script and emits one Bytecode. Like ast.Builder
// and validator.Validator, one Compiler belongs to exactly one compile
type Compiler struct {
	deps      *extension.Dependencies
	sideTable map[ast.NodeID]any

	instructions Instructions
	constants    []any
}

// New constructs a Compiler that resolves extension-dependency indices
// through deps and consults sideTable (validator.Validator.SideTable) for
// per-node bookkeeping recorded during validation, such as the size
// test's over/under discriminator.
func New(deps *extension.Dependencies, sideTable map[ast.NodeID]any) *Compiler {
	return &Compiler{deps: deps, sideTable: sideTable}
}

// Compile generates Bytecode for script.
func (c *Compiler) Compile(script *ast.Script) (*Bytecode, error) {
	for _, cmd := range script.Commands {
		if err := c.compileCommand(cmd); err != nil {
			return nil, err
		}
	}
	return &Bytecode{
		Instructions:  c.instructions,
		ConstantsPool: c.constants,
		Dependencies:  c.deps.Names(),
	}, nil
}

func (c *Compiler) emit(op Opcode, operands ...int) int {
	pos := len(c.instructions)
	c.instructions = append(c.instructions, MakeInstruction(op, operands...)...)
	return pos
}

// emitPlaceholderJump emits op with a zero target operand and returns the
// instruction's start position, to be patched once the real target is
// known.
func (c *Compiler) emitPlaceholderJump(op Opcode) int {
	return c.emit(op, 0)
}

// patchJump overwrites the target operand of the jump instruction starting
// at jumpPos with target; the three jump opcodes share a one-operand,
// byte-1 layout, so one routine patches them all.
func (c *Compiler) patchJump(jumpPos int, target int) {
	newInstr := MakeInstruction(Opcode(c.instructions[jumpPos]), target)
	copy(c.instructions[jumpPos:], newInstr)
}

func (c *Compiler) addConstant(value any) int {
	c.constants = append(c.constants, value)
	return len(c.constants) - 1
}

func (c *Compiler) pushConst(value any) {
	c.emit(OP_CONST, c.addConstant(value))
}

func (c *Compiler) compileCommand(cmd *ast.Command) error {
	switch cmd.Name {
	case "require":
		return nil
	case "if":
		return c.compileIf(cmd)
	case "stop":
		c.emit(OP_STOP)
		return nil
	case "keep":
		c.pushConst(tagFlagsArg(cmd.Tagged))
		c.emit(OP_ACTION_KEEP)
		return nil
	case "discard":
		c.emit(OP_ACTION_DISCARD)
		return nil
	case "redirect":
		addr, err := positionalString(cmd.Positional, 0, "redirect")
		if err != nil {
			return err
		}
		c.pushConst(addr)
		c.emit(OP_ACTION_REDIRECT)
		return nil
	case "fileinto":
		return c.compileFileinto(cmd)
	case "reject":
		return c.compileReasonAction(cmd, OP_EXT_ACTION_REJECT, "reject")
	case "ereject":
		return c.compileReasonAction(cmd, OP_EXT_ACTION_EREJECT, "ereject")
	case "vacation":
		return c.compileVacation(cmd)
	case "setflag":
		return c.compileFlagsCommand(cmd, FlagsSet)
	case "addflag":
		return c.compileFlagsCommand(cmd, FlagsAdd)
	case "removeflag":
		return c.compileFlagsCommand(cmd, FlagsRemove)
	case "set":
		return c.compileSet(cmd)
	default:
		return internalf("unknown command %q reached the compiler", cmd.Name)
	}
}

// compileIf lowers an if/elsif/else chain clause by clause: each clause's
// test guards a JMP_IF_FALSE past its block, and every executed block ends with
// an unconditional JMP collected into endJumps and patched to the first
// instruction after the whole chain.
func (c *Compiler) compileIf(cmd *ast.Command) error {
	var endJumps []int
	for _, clause := range cmd.Clauses {
		if err := c.compileTest(clause.Test); err != nil {
			return err
		}
		falseJump := c.emitPlaceholderJump(OP_JMP_IF_FALSE)
		for _, inner := range clause.Block {
			if err := c.compileCommand(inner); err != nil {
				return err
			}
		}
		endJumps = append(endJumps, c.emitPlaceholderJump(OP_JMP))
		c.patchJump(falseJump, len(c.instructions))
	}
	for _, inner := range cmd.ElseBlock {
		if err := c.compileCommand(inner); err != nil {
			return err
		}
	}
	end := len(c.instructions)
	for _, j := range endJumps {
		c.patchJump(j, end)
	}
	return nil
}

func (c *Compiler) compileFileinto(cmd *ast.Command) error {
	extIdx, err := c.depIndex("fileinto")
	if err != nil {
		return err
	}
	folder, err := positionalString(cmd.Positional, 0, "fileinto")
	if err != nil {
		return err
	}
	c.pushConst(tagFlagsArg(cmd.Tagged))
	c.pushConst(folder)
	c.emit(OP_EXT_ACTION_FILEINTO, extIdx)
	return nil
}

func (c *Compiler) compileReasonAction(cmd *ast.Command, op Opcode, ext string) error {
	extIdx, err := c.depIndex(ext)
	if err != nil {
		return err
	}
	reason, err := positionalString(cmd.Positional, 0, cmd.Name)
	if err != nil {
		return err
	}
	c.pushConst(reason)
	c.emit(op, extIdx)
	return nil
}

func (c *Compiler) compileVacation(cmd *ast.Command) error {
	extIdx, err := c.depIndex("vacation")
	if err != nil {
		return err
	}
	reason, err := positionalString(cmd.Positional, 0, "vacation")
	if err != nil {
		return err
	}
	lit := VacationLiteral{Reason: reason, Days: 7}
	for _, tag := range cmd.Tagged {
		switch tag.Name {
		case ":days":
			if n, ok := tag.Parameter.(*ast.NumberArg); ok {
				lit.Days = n.Value
			}
		case ":subject":
			if s, ok := tag.Parameter.(*ast.StringArg); ok {
				lit.Subject = s.Value
			}
		case ":from":
			if s, ok := tag.Parameter.(*ast.StringArg); ok {
				lit.From = s.Value
			}
		case ":addresses":
			lit.Addresses = stringListValues(tag.Parameter)
		case ":mime":
			lit.MIME = true
		case ":handle":
			if s, ok := tag.Parameter.(*ast.StringArg); ok {
				lit.Handle = s.Value
			}
		}
	}
	c.pushConst(lit)
	c.emit(OP_EXT_ACTION_VACATION, extIdx)
	return nil
}

func (c *Compiler) compileFlagsCommand(cmd *ast.Command, mode byte) error {
	extIdx, err := c.depIndex("imap4flags")
	if err != nil {
		return err
	}
	if len(cmd.Positional) < 1 {
		return internalf("%s: missing flags argument", cmd.Name)
	}
	c.pushConst(stringListValues(cmd.Positional[0]))
	c.emit(OP_EXT_FLAGS, extIdx, int(mode))
	return nil
}

func (c *Compiler) compileSet(cmd *ast.Command) error {
	extIdx, err := c.depIndex("variables")
	if err != nil {
		return err
	}
	name, err := positionalString(cmd.Positional, 0, "set")
	if err != nil {
		return err
	}
	value, err := positionalString(cmd.Positional, 1, "set")
	if err != nil {
		return err
	}
	var mods byte
	for _, tag := range cmd.Tagged {
		switch tag.Name {
		case ":lower":
			mods |= VarModLower
		case ":upper":
			mods |= VarModUpper
		case ":lowerfirst":
			mods |= VarModLowerFirst
		case ":upperfirst":
			mods |= VarModUpperFirst
		case ":quotewildcard":
			mods |= VarModQuoteWildcard
		case ":length":
			mods |= VarModLength
		}
	}
	c.pushConst(name)
	c.pushConst(value)
	c.emit(OP_EXT_SET_VARIABLE, extIdx, int(mods))
	return nil
}

// compileTest emits instructions that leave the VM's test-flag register
// set to t's result.
func (c *Compiler) compileTest(t *ast.Test) error {
	switch t.Name {
	case "allof":
		return c.compileCombinator(t, OP_JMP_IF_FALSE)
	case "anyof":
		return c.compileCombinator(t, OP_JMP_IF_TRUE)
	case "not":
		if len(t.SubTests) != 1 {
			return internalf("not: expected exactly one sub-test")
		}
		if err := c.compileTest(t.SubTests[0]); err != nil {
			return err
		}
		c.emit(OP_NOT)
		return nil
	case "true":
		c.emit(OP_TRUE)
		return nil
	case "false":
		c.emit(OP_FALSE)
		return nil
	case "exists":
		if len(t.Positional) < 1 {
			return internalf("exists: missing header-names argument")
		}
		c.pushConst(stringListValues(t.Positional[0]))
		c.emit(OP_TEST_EXISTS)
		return nil
	case "header":
		return c.compileHeaderLikeTest(t, OP_TEST_HEADER, -1)
	case "address":
		return c.compileHeaderLikeTest(t, OP_TEST_ADDRESS, -1)
	case "envelope":
		extIdx, err := c.depIndex("envelope")
		if err != nil {
			return err
		}
		return c.compileHeaderLikeTest(t, OP_EXT_TEST_ENVELOPE, extIdx)
	case "size":
		return c.compileSizeTest(t)
	case "hasflag":
		extIdx, err := c.depIndex("imap4flags")
		if err != nil {
			return err
		}
		if len(t.Positional) < 1 {
			return internalf("hasflag: missing flags argument")
		}
		c.pushConst(stringListValues(t.Positional[0]))
		c.emit(OP_EXT_TEST_HASFLAG, extIdx)
		return nil
	default:
		return internalf("unknown test %q reached the compiler", t.Name)
	}
}

// compileCombinator lowers allof/anyof: evaluate each sub-test in
// order, short-circuiting on shortCircuitOn (JMP_IF_FALSE for allof,
// JMP_IF_TRUE for anyof) for every sub-test but the last. The flag
// register is left holding the last-evaluated sub-test's result on the
// fall-through path, which is exactly the combined result either way.
func (c *Compiler) compileCombinator(t *ast.Test, shortCircuitOn Opcode) error {
	var jumps []int
	for i, sub := range t.SubTests {
		if err := c.compileTest(sub); err != nil {
			return err
		}
		if i < len(t.SubTests)-1 {
			jumps = append(jumps, c.emitPlaceholderJump(shortCircuitOn))
		}
	}
	end := len(c.instructions)
	for _, j := range jumps {
		c.patchJump(j, end)
	}
	return nil
}

// compileHeaderLikeTest compiles header/address/envelope, which share the
// same (names, keys, address-part, comparator, match-type, relational-op)
// shape. extIdx is -1 for the two core tests (header/address); op's first
// operand is only the extIdx when extIdx >= 0.
func (c *Compiler) compileHeaderLikeTest(t *ast.Test, op Opcode, extIdx int) error {
	if len(t.Positional) < 2 {
		return internalf("%s: expected two positional arguments", t.Name)
	}
	names := stringListValues(t.Positional[0])
	keys := stringListValues(t.Positional[1])

	addressPart := AddressPartAll
	comparator := ComparatorASCIICasemap
	matchType := MatchTypeIs
	relOp := RelOpNone
	for _, tag := range t.Tagged {
		switch tag.Name {
		case ":all":
			addressPart = AddressPartAll
		case ":localpart":
			addressPart = AddressPartLocalpart
		case ":domain":
			addressPart = AddressPartDomain
		case ":comparator":
			if s, ok := tag.Parameter.(*ast.StringArg); ok {
				comparator = comparatorID(s.Value)
			}
		case ":is":
			matchType = MatchTypeIs
		case ":contains":
			matchType = MatchTypeContains
		case ":matches":
			matchType = MatchTypeMatches
		case ":regex":
			matchType = MatchTypeRegex
		case ":count":
			matchType = MatchTypeCount
			if s, ok := tag.Parameter.(*ast.StringArg); ok {
				relOp = relOpID(s.Value)
			}
		case ":value":
			matchType = MatchTypeValue
			if s, ok := tag.Parameter.(*ast.StringArg); ok {
				relOp = relOpID(s.Value)
			}
		}
	}

	c.pushConst(names)
	c.pushConst(keys)
	if extIdx >= 0 {
		c.emit(op, extIdx, int(addressPart), int(comparator), int(matchType), int(relOp))
		return nil
	}
	if t.Name == "address" {
		c.emit(op, int(addressPart), int(comparator), int(matchType), int(relOp))
		return nil
	}
	c.emit(op, int(comparator), int(matchType), int(relOp))
	return nil
}

func (c *Compiler) compileSizeTest(t *ast.Test) error {
	if len(t.Positional) < 1 {
		return internalf("size: missing number argument")
	}
	n, ok := t.Positional[0].(*ast.NumberArg)
	if !ok {
		return internalf("size: argument is not a number")
	}
	overUnder := 0
	if disc, ok := c.sideTable[t.ID]; ok && disc == validator.SizeUnder {
		overUnder = 1
	}
	c.pushConst(n.Value)
	c.emit(OP_TEST_SIZE, overUnder)
	return nil
}

func (c *Compiler) depIndex(name string) (int, error) {
	idx, ok := c.deps.IndexOf(name)
	if !ok {
		return 0, internalf("%q used without having been required", name)
	}
	return idx, nil
}

func comparatorID(name string) byte {
	switch name {
	case "i;octet":
		return ComparatorOctet
	case "i;ascii-numeric":
		return ComparatorASCIINumeric
	default:
		return ComparatorASCIICasemap
	}
}

func relOpID(name string) byte {
	switch name {
	case "gt":
		return RelOpGT
	case "ge":
		return RelOpGE
	case "lt":
		return RelOpLT
	case "le":
		return RelOpLE
	case "eq":
		return RelOpEQ
	case "ne":
		return RelOpNE
	default:
		return RelOpNone
	}
}

func positionalString(args []ast.Argument, i int, cmd string) (string, error) {
	if i >= len(args) {
		return "", internalf("%s: missing positional argument %d", cmd, i)
	}
	s, ok := args[i].(*ast.StringArg)
	if !ok {
		return "", internalf("%s: positional argument %d is not a string", cmd, i)
	}
	return s.Value, nil
}

func stringListValues(arg ast.Argument) []string {
	switch a := arg.(type) {
	case *ast.StringArg:
		return []string{a.Value}
	case *ast.StringListArg:
		return a.Values
	default:
		return nil
	}
}

// tagFlagsArg returns the ":flags" tag's value as a []string when the
// command carries that tag, or UseInternalFlags{} when it doesn't (see
// UseInternalFlags's doc comment).
func tagFlagsArg(tagged []*ast.TagArg) any {
	for _, tag := range tagged {
		if tag.Name == ":flags" {
			return stringListValues(tag.Parameter)
		}
	}
	return UseInternalFlags{}
}
