package corevm

import (
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// State is the process-wide handle every core operation threads
// through: the class table sends dispatch against, the primitive
// registry preparation resolves invoke_primitive through, the JIT
// queue hot call sites report hits to, the constant-lookup generation
// counter, and the raised-exception slot execute's caller polls.
type State struct {
	Classes    *ClassTable
	Primitives *PrimitiveRegistry
	JIT        *Queue
	Config     *Config
	Log        commonlog.Logger
	Constants  ConstantResolver

	constantGeneration atomic.Uint64

	raisedException atomic.Pointer[LanguageException]
}

// NewState wires up a State with fresh, empty collaborators. Callers
// register classes, primitives, and JIT configuration afterward.
func NewState(cfg *Config, log commonlog.Logger) *State {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &State{
		Classes:    NewClassTable(),
		Primitives: NewPrimitiveRegistry(),
		Config:     cfg,
		Log:        log,
	}
	s.JIT = NewQueue(s, cfg.JITHitThreshold)
	return s
}

// ConstantGeneration returns the current constant-lookup generation
// with an acquire load.
func (s *State) ConstantGeneration() uint64 { return s.constantGeneration.Load() }

// BumpConstantGeneration invalidates every constant cache in the
// process lazily: existing caches compare their stamped generation
// against this counter on next use.
func (s *State) BumpConstantGeneration() uint64 { return s.constantGeneration.Add(1) }

// RaiseException records exc as the in-flight exception for the
// current dispatch. Execute clears it on successful return.
func (s *State) RaiseException(exc *LanguageException) { s.raisedException.Store(exc) }

// HasRaisedException reports whether a language exception is pending.
func (s *State) HasRaisedException() bool { return s.raisedException.Load() != nil }

// RaisedException returns the pending exception, or nil.
func (s *State) RaisedException() *LanguageException { return s.raisedException.Load() }

func (s *State) clearRaisedException() { s.raisedException.Store(nil) }
