package jobs

import "sync"

// Skip records why a user was left out of a run
type Skip struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// RunReport summarises one batch run
type RunReport struct {
	mu sync.Mutex

	Processed int    `json:"processed"`
	Notified  int    `json:"notified"`
	Skipped   []Skip `json:"skipped"`
}

func (r *RunReport) processed() {
	r.mu.Lock()
	r.Processed++
	r.mu.Unlock()
}

func (r *RunReport) notified() {
	r.mu.Lock()
	r.Notified++
	r.mu.Unlock()
}

func (r *RunReport) skip(userID string, err error) {
	r.mu.Lock()
	r.Skipped = append(r.Skipped, Skip{UserID: userID, Reason: err.Error()})
	r.mu.Unlock()
}
