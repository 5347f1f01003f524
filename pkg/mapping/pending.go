package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapmap/internal/dag"
)

// ErrIncomplete marks a resolution that failed only because a referenced
// element has not been declared yet. Resolvers wrap it; anything else is a
// structural error that aborts the load.
var ErrIncomplete = errors.New("mapping: incomplete element")

// PendingKind selects one of the pending queues.
type PendingKind int

// Pending kinds, in resolution order.
const (
	PendingResultMap PendingKind = iota
	PendingCacheRef
	PendingStatement
)

func (k PendingKind) String() string {
	switch k {
	case PendingResultMap:
		return "result map"
	case PendingCacheRef:
		return "cache-ref"
	case PendingStatement:
		return "statement"
	default:
		return "unknown"
	}
}

// Straggler reasons.
const (
	ReasonMissingReference  = "missing reference"
	ReasonCyclicExtension   = "cyclic extension"
	ReasonCyclicDelegation  = "cyclic delegation"
	ReasonUnresolvedElement = "unresolved element"
)

// Straggler describes a pending element left after the final source.
type Straggler struct {
	Kind      PendingKind
	ID        string
	Namespace string
	Resource  string
	// Reference is the element this one waits for (extends, delegated namespace)
	Reference string
	Reason    string
	// Err is the last incomplete error
	Err error
}

func (s Straggler) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q in namespace %q", s.Kind, s.ID, s.Namespace)
	if s.Resource != "" {
		fmt.Fprintf(&b, " (%s)", s.Resource)
	}
	fmt.Fprintf(&b, ": %s", s.Reason)
	if s.Reference != "" {
		fmt.Fprintf(&b, " %q", s.Reference)
	}
	if s.Err != nil {
		fmt.Fprintf(&b, ": %v", s.Err)
	}
	return b.String()
}

// UnresolvedError lists every straggler after the final source.
type UnresolvedError struct {
	Stragglers []Straggler
}

func (e *UnresolvedError) Error() string {
	lines := make([]string, 0, len(e.Stragglers)+1)
	lines = append(lines, fmt.Sprintf("mapping: %d element(s) could not be resolved", len(e.Stragglers)))
	for _, s := range e.Stragglers {
		lines = append(lines, "  "+s.String())
	}
	return strings.Join(lines, "\n")
}

// Unwrap returns ErrIncomplete.
func (e *UnresolvedError) Unwrap() error { return ErrIncomplete }

// Resolver retries one pending element.
type Resolver interface {
	// Resolve commits the element or returns an error wrapping ErrIncomplete.
	Resolve() error
	// Describe identifies the element for straggler reports.
	Describe() Straggler
}

type pendingEntry struct {
	resolver Resolver
	lastErr  error
}

// PendingQueue holds elements waiting for references, one queue per kind.
type PendingQueue struct {
	mu     sync.Mutex
	queues [3][]*pendingEntry
}

// Add queues a resolver with the error that deferred it.
func (q *PendingQueue) Add(kind PendingKind, r Resolver, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[kind] = append(q.queues[kind], &pendingEntry{resolver: r, lastErr: cause})
}

// Len returns the number of pending entries of kind.
func (q *PendingQueue) Len(kind PendingKind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[kind])
}

// Total returns the number of pending entries across all queues.
func (q *PendingQueue) Total() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, entries := range q.queues {
		n += len(entries)
	}
	return n
}

// Pass retries every queue in resolution order. Each queue is retried until
// a round makes no progress. Structural errors abort immediately.
func (q *PendingQueue) Pass() error {
	for kind := PendingResultMap; kind <= PendingStatement; kind++ {
		if err := q.passQueue(kind); err != nil {
			return err
		}
	}
	return nil
}

func (q *PendingQueue) passQueue(kind PendingKind) error {
	for {
		q.mu.Lock()
		entries := q.queues[kind]
		q.queues[kind] = nil
		q.mu.Unlock()

		var (
			remaining []*pendingEntry
			progress  bool
			failure   error
		)
		for i, e := range entries {
			err := e.resolver.Resolve()
			switch {
			case err == nil:
				progress = true
			case errors.Is(err, ErrIncomplete):
				e.lastErr = err
				remaining = append(remaining, e)
			default:
				failure = err
				remaining = append(remaining, entries[i+1:]...)
			}
			if failure != nil {
				break
			}
		}

		// Resolvers may queue new entries while running; keep them.
		q.mu.Lock()
		q.queues[kind] = append(remaining, q.queues[kind]...)
		q.mu.Unlock()

		if failure != nil {
			return failure
		}
		if !progress || len(remaining) == 0 {
			return nil
		}
	}
}

// Check reports every pending entry as an *UnresolvedError, nil when all resolved.
// Entries caught in a reference cycle are reported as cyclic.
func (q *PendingQueue) Check() error {
	q.mu.Lock()
	var stragglers []Straggler
	for kind := range q.queues {
		for _, e := range q.queues[kind] {
			s := e.resolver.Describe()
			s.Kind = PendingKind(kind)
			if s.Err == nil {
				s.Err = e.lastErr
			}
			stragglers = append(stragglers, s)
		}
	}
	q.mu.Unlock()

	if len(stragglers) == 0 {
		return nil
	}
	classify(stragglers)
	sort.SliceStable(stragglers, func(i, j int) bool {
		if stragglers[i].Kind != stragglers[j].Kind {
			return stragglers[i].Kind < stragglers[j].Kind
		}
		return stragglers[i].ID < stragglers[j].ID
	})
	return &UnresolvedError{Stragglers: stragglers}
}

// classify fills in the reason of each straggler.
func classify(stragglers []Straggler) {
	graphs := map[PendingKind]*dag.Graph{
		PendingResultMap: dag.New(),
		PendingCacheRef:  dag.New(),
	}
	selfRefs := map[string]bool{}
	for _, s := range stragglers {
		if g, ok := graphs[s.Kind]; ok {
			g.Add(s.ID)
		}
	}
	for _, s := range stragglers {
		g, ok := graphs[s.Kind]
		if !ok || s.Reference == "" {
			continue
		}
		if s.Reference == s.ID {
			selfRefs[s.ID] = true
			continue
		}
		if g.Has(s.Reference) {
			_ = g.Link(s.ID, s.Reference)
		}
	}
	cyclic := map[PendingKind]map[string]bool{}
	for kind, g := range graphs {
		cyclic[kind] = map[string]bool{}
		for _, id := range g.Cyclic() {
			cyclic[kind][id] = true
		}
	}

	for i := range stragglers {
		s := &stragglers[i]
		if s.Reason != "" {
			continue
		}
		onCycle := cyclic[s.Kind][s.ID] || (s.Kind != PendingStatement && selfRefs[s.ID])
		switch {
		case onCycle && s.Kind == PendingResultMap:
			s.Reason = ReasonCyclicExtension
		case onCycle && s.Kind == PendingCacheRef:
			s.Reason = ReasonCyclicDelegation
		case s.Reference != "":
			s.Reason = ReasonMissingReference
		default:
			s.Reason = ReasonUnresolvedElement
		}
	}
}
