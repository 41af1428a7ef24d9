package loader

import "sync"

// PrecacheState is the observability value spec.md §9's open question
// calls for: "implementers may add a query_precache_state(name) ->
// {idle, loading, ready} operation." SPEC_FULL.md resolves that question
// by implementing it.
type PrecacheState int

const (
	PrecacheIdle PrecacheState = iota
	PrecacheLoading
	PrecacheReady
)

// Registry is the precache refcount table from spec.md §4.2/§4.7:
// precache(name) increments and, on the 0->1 rising edge, submits load
// tasks for everything the flow's current schedule horizon could reach;
// unprecache decrements, releasing buffers on the edge back to 0;
// unprecache_all clears everything. Precache state is independent of
// whether the flow is actually playing.
//
// Grounded on avatar.Cache.GetOrFetch's fetch-once-while-pending pattern,
// generalized from a single cached image to a refcounted set of streams
// with a state machine instead of a hit/miss boolean.
type Registry struct {
	pool *Pool

	mu      sync.Mutex
	counts  map[string]int
	states  map[string]PrecacheState
	streams map[string][]Result
}

// NewRegistry creates a precache registry that submits its loads to pool.
func NewRegistry(pool *Pool) *Registry {
	return &Registry{
		pool:    pool,
		counts:  make(map[string]int),
		states:  make(map[string]PrecacheState),
		streams: make(map[string][]Result),
	}
}

// Precache increments name's refcount. On the rising edge from 0, it
// submits load tasks for each sound in reachable and transitions the
// flow's state to loading, flipping to ready once every task reports back.
func (r *Registry) Precache(name string, reachable []string, targetFormatPrerollFrames int) {
	r.mu.Lock()
	wasZero := r.counts[name] == 0
	r.counts[name]++
	if !wasZero {
		r.mu.Unlock()
		return
	}
	r.states[name] = PrecacheLoading
	r.mu.Unlock()

	pending := len(reachable)
	if pending == 0 {
		r.mu.Lock()
		r.states[name] = PrecacheReady
		r.mu.Unlock()
		return
	}

	results := make(chan Result, pending)
	for _, sound := range reachable {
		task := &Task{
			SoundName:     sound,
			PrerollFrames: targetFormatPrerollFrames,
			Done:          make(chan Result, 1),
		}
		r.pool.Submit(task)
		go func(t *Task) { results <- <-t.Done }(task)
	}

	go func() {
		collected := make([]Result, 0, pending)
		for i := 0; i < pending; i++ {
			collected = append(collected, <-results)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.counts[name] == 0 {
			// Fully unprecached before loading finished: release what we
			// just fetched instead of holding it.
			for _, res := range collected {
				if res.Stream != nil {
					res.Stream.Close()
				}
			}
			return
		}
		r.streams[name] = collected
		r.states[name] = PrecacheReady
	}()
}

// Unprecache decrements name's refcount; on the falling edge to 0 it
// releases held preroll streams.
func (r *Registry) Unprecache(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.counts[name] == 0 {
		return
	}
	r.counts[name]--
	if r.counts[name] > 0 {
		return
	}
	r.releaseLocked(name)
}

// UnprecacheAll clears every flow's refcount and releases all held
// streams.
func (r *Registry) UnprecacheAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.counts {
		r.releaseLocked(name)
	}
	r.counts = make(map[string]int)
}

func (r *Registry) releaseLocked(name string) {
	for _, res := range r.streams[name] {
		if res.Stream != nil {
			res.Stream.Close()
		}
	}
	delete(r.streams, name)
	delete(r.counts, name)
	r.states[name] = PrecacheIdle
}

// QueryState reports name's current precache state (SPEC_FULL.md's
// resolution of the spec.md §9 open question).
func (r *Registry) QueryState(name string) PrecacheState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[name]
}

// RefCount reports the current precache refcount for name, for tests and
// diagnostics.
func (r *Registry) RefCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}
