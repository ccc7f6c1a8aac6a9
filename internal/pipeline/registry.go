package pipeline

import (
	"slices"
	"sync"
	"time"
)

const (
	defaultSubscriberBuffer = 32
	defaultFinishedRetained = 64
)

// Event is one progress notification for a run.
type Event struct {
	RunID   string    `json:"run_id"`
	State   State     `json:"state"`
	Message string    `json:"message"`
	Done    int       `json:"done,omitempty"`
	Total   int       `json:"total,omitempty"`
	Time    time.Time `json:"time"`
}

// Registry tracks runs and fans their events out to subscribers. A
// subscriber that falls behind misses events; publishing never blocks.
type Registry struct {
	mu       sync.Mutex
	runs     map[string]*runEntry
	finished []string
	buffer   int
	retain   int
}

type runEntry struct {
	last   Event
	result *Result
	subs   map[int]chan Event
	nextID int
	done   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		runs:   make(map[string]*runEntry),
		buffer: defaultSubscriberBuffer,
		retain: defaultFinishedRetained,
	}
}

// Begin registers runID as active. Calling Begin for a known run is a no-op.
func (r *Registry) Begin(runID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[runID]; ok {
		return
	}
	r.runs[runID] = &runEntry{
		last: Event{RunID: runID, State: StateIdle, Message: StateIdle.Label(), Time: now},
		subs: make(map[int]chan Event),
	}
}

// Publish records ev as the latest event of its run and delivers it to every
// subscriber with room in its buffer.
func (r *Registry) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[ev.RunID]
	if !ok || entry.done {
		return
	}
	entry.last = ev
	for _, ch := range entry.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Finish publishes the terminal event, closes subscriber channels and keeps
// the result for later lookup. Only the most recent finished runs are kept.
func (r *Registry) Finish(result *Result) {
	if result == nil {
		return
	}
	ev := Event{
		RunID:   result.RunID,
		State:   result.State,
		Message: result.Summary,
		Time:    result.FinishedAt,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[result.RunID]
	if !ok {
		entry = &runEntry{subs: make(map[int]chan Event)}
		r.runs[result.RunID] = entry
	}
	if entry.done {
		return
	}
	entry.last = ev
	entry.result = result
	entry.done = true
	for id, ch := range entry.subs {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
		delete(entry.subs, id)
	}
	r.finished = append(r.finished, result.RunID)
	for len(r.finished) > r.retain {
		delete(r.runs, r.finished[0])
		r.finished = r.finished[1:]
	}
}

// Subscribe returns a channel receiving the run's latest event followed by
// every later one. The channel is closed when the run finishes or cancel is
// called. ok is false for unknown runs.
func (r *Registry) Subscribe(runID string) (events <-chan Event, cancel func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, found := r.runs[runID]
	if !found {
		return nil, func() {}, false
	}
	ch := make(chan Event, r.buffer)
	ch <- entry.last
	if entry.done {
		close(ch)
		return ch, func() {}, true
	}
	id := entry.nextID
	entry.nextID++
	entry.subs[id] = ch
	cancel = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := entry.subs[id]; ok {
			close(sub)
			delete(entry.subs, id)
		}
	}
	return ch, cancel, true
}

// Lookup returns the latest event for runID and its result once finished.
func (r *Registry) Lookup(runID string) (Event, *Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[runID]
	if !ok {
		return Event{}, nil, false
	}
	return entry.last, entry.result, true
}

// Active returns the ids of runs that have not finished.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.runs))
	for id, entry := range r.runs {
		if !entry.done {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
