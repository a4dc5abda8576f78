package tutor

import (
	"context"
	"sort"
	"sync"
)

// inflight tracks cancel funcs of running operations per (learner,
// lesson) so an abandon can pre-empt them and then wait on exactly the
// pairs they hold.
type inflight struct {
	mu  sync.Mutex
	seq uint64
	ops map[string]map[string]map[uint64]context.CancelFunc
}

func newInflight() *inflight {
	return &inflight{ops: make(map[string]map[string]map[uint64]context.CancelFunc)}
}

// track derives a cancellable context registered under the pair. done
// must be called when the operation returns.
func (f *inflight) track(ctx context.Context, learnerID, lessonID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	f.mu.Lock()
	f.seq++
	id := f.seq
	lessons := f.ops[learnerID]
	if lessons == nil {
		lessons = make(map[string]map[uint64]context.CancelFunc)
		f.ops[learnerID] = lessons
	}
	if lessons[lessonID] == nil {
		lessons[lessonID] = make(map[uint64]context.CancelFunc)
	}
	lessons[lessonID][id] = cancel
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if lessons := f.ops[learnerID]; lessons != nil {
			delete(lessons[lessonID], id)
			if len(lessons[lessonID]) == 0 {
				delete(lessons, lessonID)
			}
			if len(lessons) == 0 {
				delete(f.ops, learnerID)
			}
		}
		f.mu.Unlock()
		cancel()
	}
}

// cancel cancels every operation running for learnerID and returns the
// lessons they were running on, sorted.
func (f *inflight) cancel(learnerID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lessons []string
	for lessonID, ops := range f.ops[learnerID] {
		for _, cancel := range ops {
			cancel()
		}
		lessons = append(lessons, lessonID)
	}
	sort.Strings(lessons)
	return lessons
}
