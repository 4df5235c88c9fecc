package domain

import "time"

// ManifestName is the sidecar file written into every materialized project
const ManifestName = "_executor_meta.json"

// ExecutorFile is one generated file. Path is relative to the project root.
type ExecutorFile struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// ExecutorOutput is the validated shape of a model response
type ExecutorOutput struct {
	ProjectName string         `json:"project_name,omitempty"`
	Files       []ExecutorFile `json:"files"`
	Notes       []string       `json:"notes,omitempty"`
}

// Manifest records the provenance of a materialized project directory
type Manifest struct {
	CreatedAt    time.Time `json:"created_at"`
	Notes        []string  `json:"notes"`
	SourcePrompt string    `json:"source_prompt"`
}

// NewManifest builds a manifest, normalizing nil notes to an empty list
func NewManifest(createdAt time.Time, notes []string, prompt string) Manifest {
	if notes == nil {
		notes = []string{}
	}
	return Manifest{
		CreatedAt:    createdAt.UTC(),
		Notes:        notes,
		SourcePrompt: prompt,
	}
}
