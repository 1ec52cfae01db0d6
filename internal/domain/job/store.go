package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"kani-tts-server/internal/platform/errors"
)

// Store persists jobs. Claim and TransitionQueued are atomic: two
// concurrent callers never both win the same job.
type Store interface {
	Insert(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim transitions the oldest queued job to running and stamps its
	// heartbeat. It returns (nil, nil) when nothing is queued.
	Claim(ctx context.Context) (*Job, error)
	// ClaimByID claims a specific queued job, for inline execution.
	ClaimByID(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, j *Job) error
	// TransitionQueued moves a queued job to the given terminal state.
	// It reports false when the job exists but is no longer queued.
	TransitionQueued(ctx context.Context, id string, to State) (bool, error)
	Heartbeat(ctx context.Context, id string, at time.Time) error
	// Stale lists running jobs whose heartbeat is older than the cutoff.
	Stale(ctx context.Context, cutoff time.Time) ([]*Job, error)
	// DeleteTerminalBefore drops terminal jobs last updated before the
	// cutoff and returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Driver identifiers supported by the job store factory.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Dependencies carries shared handles the factory may reuse.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// NewStore creates a job store for the given driver.
func NewStore(driver string, deps Dependencies) (Store, error) {
	if driver == "" {
		driver = DriverMemory
	}
	switch driver {
	case DriverMemory:
		return newMemoryStore(), nil
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite job store requires a database handle")
		}
		return newGormStore(deps.SQLiteDB), nil
	default:
		return nil, fmt.Errorf("unsupported job store driver: %s", driver)
	}
}

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*Job)}
}

func (m *memoryStore) Insert(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return errors.New(errors.KindStorage, "jobstore.insert", "job id already exists")
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "jobstore.get", "job not found")
	}
	cp := *j
	return &cp, nil
}

func (m *memoryStore) Claim(_ context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *Job
	for _, j := range m.jobs {
		if j.State != StateQueued {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	m.markRunning(oldest)
	cp := *oldest
	return &cp, nil
}

func (m *memoryStore) ClaimByID(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "jobstore.claim", "job not found")
	}
	if j.State != StateQueued {
		return nil, nil
	}
	m.markRunning(j)
	cp := *j
	return &cp, nil
}

func (m *memoryStore) markRunning(j *Job) {
	now := time.Now()
	j.State = StateRunning
	j.UpdatedAt = now
	hb := now
	j.HeartbeatAt = &hb
}

func (m *memoryStore) Update(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return errors.New(errors.KindNotFound, "jobstore.update", "job not found")
	}
	cp := *j
	cp.UpdatedAt = time.Now()
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memoryStore) TransitionQueued(_ context.Context, id string, to State) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, errors.New(errors.KindNotFound, "jobstore.transition", "job not found")
	}
	if j.State != StateQueued {
		return false, nil
	}
	j.State = to
	j.UpdatedAt = time.Now()
	return true, nil
}

func (m *memoryStore) Heartbeat(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return errors.New(errors.KindNotFound, "jobstore.heartbeat", "job not found")
	}
	j.HeartbeatAt = &at
	return nil
}

func (m *memoryStore) Stale(_ context.Context, cutoff time.Time) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Job
	for _, j := range m.jobs {
		if j.State != StateRunning {
			continue
		}
		if j.HeartbeatAt == nil || j.HeartbeatAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (m *memoryStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, j := range m.jobs {
		if j.State.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = make(map[string]*Job)
	return nil
}
