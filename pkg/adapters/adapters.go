// Package adapters turns a model.Definition into a live machine of a given
// dialect. Every adapter resolves guards through a model.GuardTable, which is
// how the simulator overrides them.
package adapters

import (
	"io"
	"log/slog"
	"strings"

	"github.com/anggasct/fsmtester/pkg/machine"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
)

// Dialect names a state machine library
type Dialect string

const (
	// Native runs the definition on pkg/machine
	Native Dialect = "native"
	// Looplab runs the definition on github.com/looplab/fsm
	Looplab Dialect = "looplab"
	// Stateless runs the definition on github.com/qmuntal/stateless
	Stateless Dialect = "stateless"
	// GoHSM is recognised but has no adapter yet
	GoHSM Dialect = "go-hsm"
)

// Dialects lists the dialects with a working adapter
func Dialects() []Dialect {
	return []Dialect{Native, Looplab, Stateless}
}

// ParseDialect maps a user-supplied name to a dialect. The empty string
// selects Native.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(name))); d {
	case "":
		return Native, nil
	case Native, Looplab, Stateless:
		return d, nil
	case GoHSM:
		return "", utils.NewDialectNotImplementedError(name)
	default:
		return "", utils.NewUnknownDialectError(name)
	}
}

// Options configures the live machine built by New
type Options struct {
	Guards    map[string]model.Guard
	Actions   map[string]model.Action
	// Observers watch the native machine; other dialects ignore them
	Observers []machine.Observer
	Logger    *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New builds a live machine for def in the given dialect. Wildcards are
// expanded before the definition reaches a third-party library.
func New(d Dialect, def *model.Definition, opts Options) (model.Machine, error) {
	if _, err := ParseDialect(string(d)); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	logger := opts.logger().With("component", "adapter", "dialect", string(d))

	var (
		m   model.Machine
		err error
	)
	switch d {
	case "", Native:
		machineOpts := []machine.Option{
			machine.WithGuards(opts.Guards),
			machine.WithActions(opts.Actions),
			machine.WithLogger(logger),
		}
		for _, o := range opts.Observers {
			machineOpts = append(machineOpts, machine.WithObserver(o))
		}
		m, err = machine.New(def, machineOpts...)
	case Looplab:
		m, err = NewLooplab(def.ExpandWildcards(), model.NewGuardTable(opts.Guards), logger)
	case Stateless:
		m, err = NewStateless(def.ExpandWildcards(), model.NewGuardTable(opts.Guards), logger)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
