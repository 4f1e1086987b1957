package extension

import "fmt"

// Dependencies tracks, for one compile unit, which extensions the script
// actually references and in what order — the ordered list the binary's
// extension-dependency table is built from. Every opcode or
// operand that names an extension does so via an index into this table,
// never via the Registry's own ID, so a binary stays portable across
// instances whose registries were populated in a different order.
//
// This is also where a script's "require" command is enforced: Use both
// looks the name up in the owning Registry and records it as referenced,
// resolving and marking the extension in the same step.
type Dependencies struct {
	registry *Registry
	names    []string
	index    map[string]int
}

// NewDependencies constructs an empty Dependencies table bound to registry.
func NewDependencies(registry *Registry) *Dependencies {
	return &Dependencies{registry: registry, index: make(map[string]int)}
}

// Use resolves name against the registry (it must be registered and
// enabled) and returns its position in this compile's dependency table,
// appending it if this is the first reference. The validator calls it for
// each name of a "require" command; require-exempt extensions are never
// added to the table.
func (d *Dependencies) Use(name string) (int, error) {
	if idx, ok := d.index[name]; ok {
		return idx, nil
	}
	ext, ok := d.registry.GetByName(name)
	if !ok {
		return 0, fmt.Errorf("extension %q is not registered", name)
	}
	if !d.registry.IsEnabled(name) {
		return 0, fmt.Errorf("extension %q is not enabled", name)
	}
	idx := len(d.names)
	d.names = append(d.names, ext.Name)
	d.index[name] = idx
	return idx, nil
}

// Names returns the ordered extension-dependency table built up so far.
func (d *Dependencies) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// IndexOf returns the dependency-table index for an already-used name.
func (d *Dependencies) IndexOf(name string) (int, bool) {
	idx, ok := d.index[name]
	return idx, ok
}
