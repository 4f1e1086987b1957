package ast

// Script is the root of one parsed Sieve source file: its display name (for
// diagnostics and the script-id a multiscript chain needs) and the flat
// top-level list of commands the parser produced.
//
// A Script's tree lives only for the duration of one compile;
// nothing downstream of the generator keeps a reference into it.
type Script struct {
	ID       int
	Name     string
	Commands []*Command
}
