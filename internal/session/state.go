package session

import (
	"errors"
	"time"

	"github.com/RichardoC/padchat/internal/models"
	"github.com/google/uuid"
)

// Op names a backend operation.
type Op string

const (
	OpFetch    Op = "fetch"
	OpGenerate Op = "generate"
	OpClear    Op = "clear"
)

// ModelToggle flips between two fixed model identifiers.
type ModelToggle struct {
	primary   string
	alternate string
	useAlt    bool
}

func NewModelToggle(primary, alternate string) ModelToggle {
	return ModelToggle{primary: primary, alternate: alternate}
}

func (t *ModelToggle) Toggle() { t.useAlt = !t.useAlt }

func (t ModelToggle) Current() string {
	if t.useAlt {
		return t.alternate
	}
	return t.primary
}

// Result is what a controller operation hands back to the UI root.
type Result struct {
	Op      Op
	Seq     uint64
	Log     models.ChatLog
	Usage   *models.TokenUsage
	Reply   string
	Latency time.Duration
	Err     error
}

// State is everything one chat session keeps in memory. It is owned and
// mutated by a single goroutine, the UI loop.
type State struct {
	ID uuid.UUID

	Prompt string
	Models ModelToggle

	Log       models.ChatLog
	Usage     *models.TokenUsage
	LastReply string
	LastErr   error

	applied          uint64
	pendingGenerates int
}

func NewState(primaryModel, altModel string) *State {
	return &State{
		ID:     uuid.New(),
		Models: NewModelToggle(primaryModel, altModel),
		Log:    models.ChatLog{},
	}
}

// Begin marks op as dispatched. Every Begin is matched by one Apply.
func (s *State) Begin(op Op) {
	if op == OpGenerate {
		s.pendingGenerates++
	}
}

// InFlight reports whether a generate request has not come back yet.
func (s *State) InFlight() bool {
	return s.pendingGenerates > 0
}

// Apply reconciles a finished operation into the state and reports whether
// the visible state changed. Results admitted before the last applied one
// are dropped, failures included. A failed operation never touches the log
// or the counters.
func (s *State) Apply(r Result) bool {
	if r.Op == OpGenerate && s.pendingGenerates > 0 {
		s.pendingGenerates--
	}

	// Stale or superseded: only the spinner may need a redraw.
	if r.Seq != 0 && r.Seq < s.applied || errors.Is(r.Err, ErrSuperseded) {
		return r.Op == OpGenerate
	}
	if r.Err != nil {
		if r.Seq != 0 {
			s.applied = r.Seq
		}
		s.LastErr = r.Err
		return true
	}

	s.applied = r.Seq
	s.LastErr = nil

	switch r.Op {
	case OpGenerate:
		s.Log = r.Log.Clone()
		if r.Usage != nil {
			u := *r.Usage
			s.Usage = &u
		}
		s.LastReply = r.Reply
	case OpFetch:
		s.Log = r.Log.Clone()
	case OpClear:
		s.Log = models.ChatLog{}
		s.LastReply = ""
	}
	return true
}
