// Package events implements the sealed-enum, priority-ordered event
// dispatcher mandated in place of the teacher's goroutine-per-handler
// event bus: every subscriber is invoked inline, on the caller's
// goroutine, in priority order, so the core stays single-threaded.
package events

import "sort"

// Kind is a sealed event enum; there is no runtime lookup by string name.
type Kind int

const (
	VideoBitrateChanged Kind = iota
	AudioBitrateChanged
	FragmentLoadingStarted
	FragmentLoadingCompleted
	BufferLevelUpdated
	BufferTargetChanged
	ManifestParsed
	RepresentationsChanged
	PlaybackError
)

// Event carries a Kind and an opaque, kind-specific payload.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Handler receives an Event. Handlers run synchronously on the publisher's
// goroutine and must not block.
type Handler func(Event)

type subscription struct {
	priority int
	order    int // registration order, for stable priority ties
	handler  Handler
}

// Bus dispatches events to subscribers in priority order, ties broken by
// registration order, all inline on Publish's caller.
type Bus struct {
	subs map[Kind][]subscription
	seq  int
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscription)}
}

// Subscribe registers handler for kind at priority (lower runs first).
// Subscriptions happen at construction time in the intended usage; the
// slice is kept sorted so Publish never re-sorts.
func (b *Bus) Subscribe(kind Kind, priority int, handler Handler) {
	b.seq++
	subs := append(b.subs[kind], subscription{priority: priority, order: b.seq, handler: handler})
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].order < subs[j].order
	})
	b.subs[kind] = subs
}

// Publish delivers event to every subscriber of its Kind, in priority
// order, on the caller's goroutine.
func (b *Bus) Publish(event Event) {
	for _, s := range b.subs[event.Kind] {
		s.handler(event)
	}
}
