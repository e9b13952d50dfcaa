package tokenstore

import (
	"context"
	"errors"
	"maps"
	"slices"
)

// ErrPreconditionFailed is returned by ApplyIf when the stored values do not
// match the expected ones. Nothing is written.
var ErrPreconditionFailed = errors.New("stored values do not match the precondition")

// Backend is durable string key/value storage shared by every context that
// uses the same session (processes on one machine, or machines sharing a
// redis). Mutations are applied as one batch and announced to subscribers of
// all contexts, including the writer's own.
type Backend interface {
	// Load returns a snapshot of all stored values.
	Load(ctx context.Context) (map[string]string, error)

	// Apply sets and deletes keys in one batch. origin identifies the
	// writing context and is carried on the resulting Event.
	Apply(ctx context.Context, set map[string]string, del []string, origin string) error

	// ApplyIf is Apply guarded by want: the batch is written only if every
	// key in want holds the given value. The check and the write are atomic
	// across all contexts sharing the backend.
	ApplyIf(ctx context.Context, want, set map[string]string, del []string, origin string) error

	// Subscribe registers fn for change events until cancel is called.
	Subscribe(fn func(Event)) (cancel func(), err error)

	Close() error
}

// Event announces that keys changed.
type Event struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// changedKeys lists keys whose values differ between two snapshots.
func changedKeys(before, after map[string]string) []string {
	var keys []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			keys = append(keys, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// satisfies reports whether values holds every expected value.
func satisfies(values, want map[string]string) bool {
	for k, v := range want {
		if got, ok := values[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// applyTo returns a copy of values with the batch applied.
func applyTo(values map[string]string, set map[string]string, del []string) map[string]string {
	out := maps.Clone(values)
	if out == nil {
		out = make(map[string]string)
	}
	for _, k := range del {
		delete(out, k)
	}
	maps.Copy(out, set)
	return out
}

// subscribers is a registry of change callbacks used by the in-process backends.
type subscribers struct {
	next int
	fns  map[int]func(Event)
}

func (s *subscribers) add(fn func(Event)) int {
	if s.fns == nil {
		s.fns = make(map[int]func(Event))
	}
	s.next++
	s.fns[s.next] = fn
	return s.next
}

func (s *subscribers) remove(id int) {
	delete(s.fns, id)
}

func (s *subscribers) snapshot() []func(Event) {
	ids := slices.Sorted(maps.Keys(s.fns))
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, s.fns[id])
	}
	return out
}
