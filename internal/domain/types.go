package domain

// Role identifies the author of a conversation message
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Stage is a step of the execute pipeline
type Stage string

const (
	StageReceived       Stage = "received"
	StageProviderCalled Stage = "provider_called"
	StageParsed         Stage = "parsed"
	StageSanitized      Stage = "sanitized"
	StageValidated      Stage = "validated"
	StageMaterialized   Stage = "materialized"
	StageReported       Stage = "reported"
	StageFailed         Stage = "failed"
)

// RunStatus represents the outcome of a recorded run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)
