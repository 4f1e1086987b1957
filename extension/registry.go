// Package extension implements the Sieve extension registry:
// a table mapping extension name to its contributed commands, tests, and
// tags, assigning each extension a dense, instance-lifetime integer id.
//
// A Registry is owned by one Sieve instance; extensions register once at
// instance init, and ids are local to the instance. Binaries reference
// extensions by name-indexed position in a per-compile Dependencies table
// (dependencies.go), never by this package's raw ID, so two instances with
// differently-ordered registries stay binary-compatible.
package extension

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ID is a dense, registry-lifetime integer identifying a registered
// extension. IDs are assigned in registration order starting at 0 and are
// stable only within the Registry that assigned them — never persisted
// directly into a binary.
type ID int

// Extension is one registered capability: a name, its dense id, and the
// commands/tests/tags it contributes. The preloaded trio — "comparator",
// "match-type", "address-part" — are themselves Extensions, registered
// first so they occupy the lowest ids; their Tags maps are keyed by the
// Sieve tag as it appears in the AST (":comparator", ":is", ":contains",
// ":all", ":localpart", ...).
type Extension struct {
	Name     string
	ID       ID
	Hidden   bool // name begins with "@"; never listed in the capability string
	Required bool // cannot be disabled via SetEnabled

	Commands map[string]CommandSpec
	Tests    map[string]TestSpec
	Tags     map[string]TagSpec

	enabled bool
}

// Registry is the per-instance extension table. One Registry belongs to
// exactly one Instance (sieve.go); the classic process-wide write-once
// registry is relaxed here to instance-wide and write-once after init,
// since this repository models
// multiple concurrently-running Sieve instances rather than a single
// process-global table.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Extension
	byID   map[ID]*Extension
	order  []*Extension
	nextID ID
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Extension),
		byID:   make(map[ID]*Extension),
	}
}

// Register adds a new extension, assigning it the next dense id and
// enabling it by default (required extensions are always enabled;
// non-required ones are enabled by default and may later be narrowed by
// SetEnabled). Registering the same name twice is a programmer error.
func (r *Registry) Register(name string, required bool, commands map[string]CommandSpec, tests map[string]TestSpec, tags map[string]TagSpec) (ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("extension: %q already registered", name)
	}

	ext := &Extension{
		Name:     name,
		ID:       r.nextID,
		Hidden:   strings.HasPrefix(name, "@"),
		Required: required,
		Commands: commands,
		Tests:    tests,
		Tags:     tags,
		enabled:  true,
	}
	if ext.Commands == nil {
		ext.Commands = map[string]CommandSpec{}
	}
	if ext.Tests == nil {
		ext.Tests = map[string]TestSpec{}
	}
	if ext.Tags == nil {
		ext.Tags = map[string]TagSpec{}
	}

	r.byName[name] = ext
	r.byID[ext.ID] = ext
	r.order = append(r.order, ext)
	r.nextID++
	return ext.ID, nil
}

// GetByName returns the extension registered under name, if any.
func (r *Registry) GetByName(name string) (*Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.byName[name]
	return ext, ok
}

// GetByID returns the extension with the given dense id, if any.
func (r *Registry) GetByID(id ID) (*Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.byID[id]
	return ext, ok
}

// IsEnabled reports whether the named extension is both registered and
// currently enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.byName[name]
	return ok && ext.enabled
}

// ListEnabled returns every enabled, non-hidden extension in registration
// order — the ordering the capability string is built from.
func (r *Registry) ListEnabled() []*Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Extension, 0, len(r.order))
	for _, ext := range r.order {
		if ext.enabled && !ext.Hidden {
			out = append(out, ext)
		}
	}
	return out
}

// CapabilityString renders the space-separated, registration-ordered names
// of every enabled, non-hidden extension.
func (r *Registry) CapabilityString() string {
	names := make([]string, 0)
	for _, ext := range r.ListEnabled() {
		names = append(names, ext.Name)
	}
	return strings.Join(names, " ")
}

// ResolveGlobalTag implements tier two of the tag dispatch: when
// a tag name is absent from the current command/test's own AllowedTags, the
// validator calls this to find the first enabled extension that contributes
// a tag of that name. Extensions are searched in registration order, so the
// preloaded comparator/match-type/address-part trio — and then "relational"
// or any other extension contributing tags like ":count"/":value" — are
// each considered in turn.
func (r *Registry) ResolveGlobalTag(name string) (*Extension, TagSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ext := range r.order {
		if !ext.enabled {
			continue
		}
		if spec, ok := ext.Tags[name]; ok {
			return ext, spec, true
		}
	}
	return nil, TagSpec{}, false
}

// ResolveCommand finds the enabled extension contributing a command named
// name, searching in registration order so "@core" (the first registered
// extension that contributes commands) wins any hypothetical name clash.
func (r *Registry) ResolveCommand(name string) (*Extension, CommandSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ext := range r.order {
		if !ext.enabled {
			continue
		}
		if spec, ok := ext.Commands[name]; ok {
			return ext, spec, true
		}
	}
	return nil, CommandSpec{}, false
}

// ResolveTest finds the enabled extension contributing a test named name,
// analogous to ResolveCommand.
func (r *Registry) ResolveTest(name string) (*Extension, TestSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ext := range r.order {
		if !ext.enabled {
			continue
		}
		if spec, ok := ext.Tests[name]; ok {
			return ext, spec, true
		}
	}
	return nil, TestSpec{}, false
}

// SetEnabled applies the sieve_extensions environment knob: a
// space-separated list tolerating "+name" (enable) and "-name" (disable)
// entries. If the list contains at least one bare name (no +/- prefix),
// every non-required extension starts disabled and only the bare names (and
// any "+name" entries) are turned on; +/- deltas always apply on top of
// that baseline. Required extensions can never be disabled. Unknown names
// are reported but do not abort processing of the remaining tokens.
func (r *Registry) SetEnabled(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fields := strings.Fields(spec)
	hasBareName := false
	for _, f := range fields {
		if !strings.HasPrefix(f, "+") && !strings.HasPrefix(f, "-") {
			hasBareName = true
			break
		}
	}

	if hasBareName {
		for _, ext := range r.order {
			if !ext.Required {
				ext.enabled = false
			}
		}
	}

	var unknown []string
	for _, f := range fields {
		name := strings.TrimPrefix(strings.TrimPrefix(f, "+"), "-")
		ext, ok := r.byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if ext.Required {
			continue
		}
		if strings.HasPrefix(f, "-") {
			ext.enabled = false
		} else {
			ext.enabled = true
		}
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("extension: unknown extension(s) in sieve_extensions: %s", strings.Join(unknown, ", "))
	}
	return nil
}
