// Package progress tracks long running batch tasks so callers can poll
// completion state while a run is in flight.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/knakano/jsonsim/internal/ai"
)

// Status is the lifecycle state of a tracked task.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is a point-in-time view of a task. EstimatedRemaining is nil
// until at least one unit of progress exists.
type Snapshot struct {
	ID                 string
	Current            int
	Total              int
	Percentage         float64
	Status             Status
	Elapsed            time.Duration
	EstimatedRemaining *time.Duration
	Speed              float64
	Err                string
}

// speedWindow is how many per-update speed samples the moving average keeps.
const speedWindow = 10

type task struct {
	id         string
	current    int
	total      int
	status     Status
	startedAt  time.Time
	endedAt    time.Time
	lastUpdate time.Time
	speeds     []float64
	err        string
}

// Tracker keeps task state in memory, keyed by task id. Safe for
// concurrent use.
type Tracker struct {
	mu    sync.Mutex
	tasks map[string]*task
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		tasks: make(map[string]*task),
		now:   time.Now,
	}
}

// Create registers a new task and returns its id.
func (t *Tracker) Create(total int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	started := t.now()
	t.tasks[id] = &task{
		id:         id,
		total:      total,
		status:     StatusCreated,
		startedAt:  started,
		lastUpdate: started,
	}
	return id
}

// Update records progress. Progress never moves backwards, never exceeds
// the total and is ignored once the task is terminal.
func (t *Tracker) Update(id string, current int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.tasks[id]
	if !ok {
		return ai.ErrTaskNotFound
	}
	if tk.status.Terminal() {
		return nil
	}
	if tk.status == StatusCreated {
		tk.status = StatusRunning
	}
	if current > tk.current {
		capped := current
		if tk.total > 0 && capped > tk.total {
			capped = tk.total
		}
		now := t.now()
		if dt := now.Sub(tk.lastUpdate); dt > 0 && capped > tk.current {
			tk.speeds = append(tk.speeds, float64(capped-tk.current)/dt.Seconds())
			if len(tk.speeds) > speedWindow {
				tk.speeds = tk.speeds[1:]
			}
		}
		tk.current = capped
		tk.lastUpdate = now
	}
	return nil
}

// Complete marks the task finished. An empty errMsg means success.
// Completing twice keeps the first outcome.
func (t *Tracker) Complete(id string, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.tasks[id]
	if !ok {
		return ai.ErrTaskNotFound
	}
	if tk.status.Terminal() {
		return nil
	}
	tk.endedAt = t.now()
	if errMsg != "" {
		tk.status = StatusFailed
		tk.err = errMsg
		return nil
	}
	tk.status = StatusCompleted
	tk.current = tk.total
	return nil
}

// Get returns a snapshot of the task.
func (t *Tracker) Get(id string) (*Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.tasks[id]
	if !ok {
		return nil, ai.ErrTaskNotFound
	}

	end := t.now()
	if tk.status.Terminal() {
		end = tk.endedAt
	}
	elapsed := end.Sub(tk.startedAt)

	snap := &Snapshot{
		ID:      tk.id,
		Current: tk.current,
		Total:   tk.total,
		Status:  tk.status,
		Elapsed: elapsed,
		Err:     tk.err,
	}
	if tk.total > 0 {
		snap.Percentage = float64(tk.current) / float64(tk.total) * 100
	}
	if tk.current > 0 {
		snap.Speed = averageSpeed(tk, elapsed)
		if !tk.status.Terminal() && snap.Speed > 0 {
			remaining := time.Duration(float64(tk.total-tk.current) / snap.Speed * float64(time.Second))
			snap.EstimatedRemaining = &remaining
		}
	}
	return snap, nil
}

// averageSpeed is the moving average over the recent update samples. A task
// without samples yet falls back to overall throughput.
func averageSpeed(tk *task, elapsed time.Duration) float64 {
	if len(tk.speeds) > 0 {
		sum := 0.0
		for _, s := range tk.speeds {
			sum += s
		}
		return sum / float64(len(tk.speeds))
	}
	if elapsed > 0 {
		return float64(tk.current) / elapsed.Seconds()
	}
	return 0
}

// Delete removes a task. Unknown ids are not an error.
func (t *Tracker) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, id)
}
