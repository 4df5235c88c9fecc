package domain

import "time"

// Run is one recorded execution of the pipeline
type Run struct {
	ID           string     `json:"id"`
	Prompt       string     `json:"prompt"`
	ProjectName  string     `json:"project_name,omitempty"`
	Slug         string     `json:"slug,omitempty"`
	Provider     string     `json:"provider"`
	Status       RunStatus  `json:"status"`
	Stage        Stage      `json:"stage"`
	Error        string     `json:"error,omitempty"`
	FilesWritten int        `json:"files_written"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or time since start if unfinished
func (r *Run) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.CreatedAt)
	}
	return time.Since(r.CreatedAt)
}
