// In-memory job registry. Clients poll job status over HTTP; jobs live
// for the lifetime of the process. A running job carries a cancel hook so
// the stop endpoint can halt its batch.

package app

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

type JobRegistry struct {
	mu      sync.Mutex
	jobs    map[string]models.JobStatus
	cancels map[string]context.CancelFunc
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs:    map[string]models.JobStatus{},
		cancels: map[string]context.CancelFunc{},
	}
}

// Create registers a queued job and returns its ID.
func (r *JobRegistry) Create(totalGames int) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.jobs[id] = models.JobStatus{ID: id, Status: "queued", TotalGames: totalGames}
	r.mu.Unlock()
	return id
}

// Attach registers the cancel hook that stops the job's run.
func (r *JobRegistry) Attach(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()
}

// Detach drops the cancel hook once the job can no longer be stopped.
func (r *JobRegistry) Detach(id string) {
	r.mu.Lock()
	delete(r.cancels, id)
	r.mu.Unlock()
}

// Stop cancels a running job. Returns false when the job is unknown or
// already finished. The runner records the final "stopped" status.
func (r *JobRegistry) Stop(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	if ok {
		delete(r.cancels, id)
		st := r.jobs[id]
		st.Status = "stopping"
		r.jobs[id] = st
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (r *JobRegistry) Update(id string, fn func(*models.JobStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.jobs[id]
	if !ok {
		return
	}
	fn(&st)
	r.jobs[id] = st
}

func (r *JobRegistry) Get(id string) (models.JobStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.jobs[id]
	return st, ok
}
