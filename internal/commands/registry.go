// Package commands holds the command registry and every built-in command group.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"minai/internal/vfs"
)

// Command categories shown by help.
const (
	CategoryFileSystem = "File System"
	CategoryContent    = "Content"
	CategorySystem     = "System"
	CategoryNetwork    = "Network"
	CategoryTools      = "Tools"
	CategoryInfo       = "Info & Config"
	CategoryAI         = "AI"
)

// Flags is the set of single-letter switches given to a command.
type Flags map[rune]bool

// Has reports whether flag r was set.
func (f Flags) Has(r rune) bool { return f[r] }

// Any reports whether any of rs was set.
func (f Flags) Any(rs ...rune) bool {
	for _, r := range rs {
		if f[r] {
			return true
		}
	}
	return false
}

// Invocation is one resolved call of a command.
type Invocation struct {
	Name  string
	Args  []string
	Flags Flags

	// Explicit counts the leading Args typed for this stage; the rest were
	// appended from the previous pipeline stage's output.
	Explicit int
	// Stdin carries the previous pipeline stage's raw output.
	Stdin string
	Piped bool
}

// Operands returns the arguments typed for this stage.
func (inv *Invocation) Operands() []string {
	if !inv.Piped || inv.Explicit < 0 || inv.Explicit > len(inv.Args) {
		return inv.Args
	}
	return inv.Args[:inv.Explicit]
}

// Arg returns the i-th argument or "".
func (inv *Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// Handler runs a command and returns its textual result.
type Handler func(ctx context.Context, inv *Invocation) (string, error)

// Spec describes a registered command.
type Spec struct {
	Name        string
	Handler     Handler
	Description string
	Usage       string
	Category    string

	// NeedsPermission marks commands that change state; the agent asks
	// before running a plan that contains one.
	NeedsPermission bool
	// ExpandGlobs makes the parser expand `*` patterns in arguments.
	ExpandGlobs bool
	// Markdown marks output meant for the Markdown renderer.
	Markdown bool
	// Stdin marks commands that read piped output when given no operand.
	Stdin bool
}

// Alias is a name that expands to a command line prefix.
type Alias struct {
	Name      string
	Expansion string
}

// Registry maps command names to specs and keeps an independent alias table.
type Registry struct {
	mu         sync.RWMutex
	specs      map[string]Spec
	order      []string
	aliases    map[string]string
	aliasOrder []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:   make(map[string]Spec),
		aliases: make(map[string]string),
	}
}

// Register inserts spec or replaces the spec already registered under its name.
func (r *Registry) Register(spec Spec) {
	if spec.Name == "" || spec.Handler == nil {
		panic(fmt.Sprintf("commands: invalid spec %q", spec.Name))
	}
	if spec.Category == "" {
		spec.Category = "General"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.specs[spec.Name] = spec
}

// Get returns the spec registered under name.
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Has reports whether name is a registered command.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// GetAll returns every spec in registration order.
func (r *Registry) GetAll() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Names returns the registered command names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// SetAlias maps name to expansion. The target command is not checked; aliases
// are resolved when a line is parsed.
func (r *Registry) SetAlias(name, expansion string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.aliases[name]; !exists {
		r.aliasOrder = append(r.aliasOrder, name)
	}
	r.aliases[name] = expansion
}

// GetAlias returns the expansion of name.
func (r *Registry) GetAlias(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exp, ok := r.aliases[name]
	return exp, ok
}

// RemoveAlias deletes name from the alias table.
func (r *Registry) RemoveAlias(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.aliases[name]; !ok {
		return
	}
	delete(r.aliases, name)
	for i, existing := range r.aliasOrder {
		if existing == name {
			r.aliasOrder = append(r.aliasOrder[:i], r.aliasOrder[i+1:]...)
			break
		}
	}
}

// ClearAliases empties the alias table.
func (r *Registry) ClearAliases() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases = make(map[string]string)
	r.aliasOrder = nil
}

// Aliases returns every alias in definition order.
func (r *Registry) Aliases() []Alias {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Alias, 0, len(r.aliasOrder))
	for _, name := range r.aliasOrder {
		out = append(out, Alias{Name: name, Expansion: r.aliases[name]})
	}
	return out
}

// Failure is a user-facing command error. Its message is shown as is and it
// does not abort an agent plan.
type Failure struct {
	Msg string
}

func (f *Failure) Error() string { return f.Msg }

func failf(format string, args ...any) error {
	return &Failure{Msg: fmt.Sprintf(format, args...)}
}

func usage(spec string) error {
	return &Failure{Msg: "Usage: " + spec}
}

// IsUserError reports whether err is made only of filesystem errors and
// command failures, possibly joined.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !IsUserError(e) {
				return false
			}
		}
		return true
	}
	var fsErr *vfs.Error
	var failure *Failure
	return errors.As(err, &fsErr) || errors.As(err, &failure)
}
