package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryTaskRepo is a process-local TaskRepo. Tasks do not survive restarts.
type MemoryTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewMemoryTaskRepo creates an empty MemoryTaskRepo.
func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{tasks: map[string]*Task{}, now: time.Now}
}

func (r *MemoryTaskRepo) InsertTask(_ context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; ok {
		return ErrConflict
	}
	now := r.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *MemoryTaskRepo) GetTask(_ context.Context, id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTaskRepo) ListTasks(_ context.Context, name, status string, limit, offset int) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*Task
	for _, t := range r.tasks {
		if name != "" && t.Name != name {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryTaskRepo) ClaimTask(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != TaskStatusPending {
		return false, nil
	}
	t.Status = TaskStatusRunning
	t.UpdatedAt = r.now().UTC()
	return true, nil
}

func (r *MemoryTaskRepo) FinishTask(_ context.Context, id, status string, result []byte, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.Result = append([]byte(nil), result...)
	t.Error = errMsg
	t.UpdatedAt = r.now().UTC()
	return nil
}

var (
	_ TaskRepo = (*MemoryTaskRepo)(nil)
	_ TaskRepo = (*PostgresTaskRepo)(nil)
)
