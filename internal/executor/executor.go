// Package executor runs one prompt through the provider, the output
// contract and the materializer.
//
// A run moves through the stages received, provider_called, parsed,
// sanitized, validated, materialized and reported, or stops in failed.
// Every failure is returned as *Error.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/hochfrequenz/prompt-executor/internal/config"
	"github.com/hochfrequenz/prompt-executor/internal/contract"
	"github.com/hochfrequenz/prompt-executor/internal/domain"
	"github.com/hochfrequenz/prompt-executor/internal/llm"
	"github.com/hochfrequenz/prompt-executor/internal/materialize"
	"github.com/hochfrequenz/prompt-executor/internal/prompts"
)

const (
	// FallbackProjectName is used when neither caller nor model names the project
	FallbackProjectName = "generated-project"

	minPromptLength = 3
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Request is one execute call
type Request struct {
	Prompt      string
	ProjectName string
	Provider    string // optional override of the configured provider
}

// Report describes a successful run
type Report struct {
	OK           bool   `json:"ok"`
	Project      string `json:"project"`
	FilesWritten int    `json:"files_written"`
	BrowseURL    string `json:"browse_url"`
	AbsPath      string `json:"abs_path"`
	RunID        string `json:"run_id"`
}

// Event is published on every stage transition
type Event struct {
	RunID string       `json:"run_id"`
	Stage domain.Stage `json:"stage"`
	Slug  string       `json:"slug,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Observer receives stage events. It is called synchronously.
type Observer func(Event)

// Observers fans one event out to every non-nil observer in order
func Observers(obs ...Observer) Observer {
	return func(ev Event) {
		for _, o := range obs {
			if o != nil {
				o(ev)
			}
		}
	}
}

// Recorder persists run history
type Recorder interface {
	CreateRun(run *domain.Run) error
	FinishRun(id string, status domain.RunStatus, stage domain.Stage, errMsg, slug string, filesWritten int) error
}

// ProviderFactory builds a provider. An empty name selects the configured one.
type ProviderFactory func(name string) (llm.Provider, error)

// NewProviderFactory returns a factory over cfg that honors per-request
// provider names
func NewProviderFactory(cfg config.LLMConfig) ProviderFactory {
	return func(name string) (llm.Provider, error) {
		c := cfg
		if strings.TrimSpace(name) != "" {
			c.Provider = name
		}
		return llm.New(c)
	}
}

// Options configures an Executor
type Options struct {
	OutputDir string
	Validator *contract.Validator
	Prompts   *prompts.Loader
	Providers ProviderFactory
	Recorder  Recorder // optional
	Observer  Observer // optional
}

// Executor orchestrates runs. It is safe for concurrent use; runs share
// nothing but the output directory.
type Executor struct {
	outputDir string
	validator *contract.Validator
	prompts   *prompts.Loader
	providers ProviderFactory
	recorder  Recorder
	observer  Observer
	now       func() time.Time
}

// New creates an Executor. OutputDir is resolved to an absolute path.
func New(opts Options) (*Executor, error) {
	if opts.Providers == nil {
		return nil, errors.New("executor: provider factory required")
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "output"
	}
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolving output dir: %w", err)
	}

	v := opts.Validator
	if v == nil {
		if v, err = contract.New(); err != nil {
			return nil, err
		}
	}
	loader := opts.Prompts
	if loader == nil {
		loader = prompts.NewLoader()
	}

	return &Executor{
		outputDir: abs,
		validator: v,
		prompts:   loader,
		providers: opts.Providers,
		recorder:  opts.Recorder,
		observer:  opts.Observer,
		now:       time.Now,
	}, nil
}

// OutputDir returns the absolute output root
func (e *Executor) OutputDir() string { return e.outputDir }

// run tracks one execution for events and history
type run struct {
	id       string
	slug     string
	recorded bool
}

// Execute runs req to completion. On failure the returned error is *Error.
func (e *Executor) Execute(ctx context.Context, req Request) (*Report, error) {
	r := &run{id: uuid.NewString()}
	e.emit(r, domain.StageReceived, "")

	if utf8.RuneCountInString(req.Prompt) < minPromptLength {
		return nil, e.fail(r, &Error{Kind: InputError, Stage: domain.StageReceived, Message: "prompt required"})
	}

	provider, err := e.providers(req.Provider)
	if err != nil {
		e.record(r, req, req.Provider)
		return nil, e.fail(r, &Error{Kind: UpstreamError, Stage: domain.StageProviderCalled, Message: err.Error(), Err: err})
	}
	e.record(r, req, provider.Name())

	system, err := e.prompts.BuildSystemPrompt(prompts.SystemData{Schema: string(e.validator.Document())})
	if err != nil {
		return nil, e.fail(r, &Error{Kind: IOError, Stage: domain.StageReceived, Message: err.Error(), Err: err})
	}
	messages := []domain.Message{
		domain.SystemMessage(system),
		domain.UserMessage(req.Prompt),
	}

	raw, err := provider.Generate(ctx, messages)
	if err != nil {
		return nil, e.fail(r, &Error{Kind: UpstreamError, Stage: domain.StageProviderCalled, Message: err.Error(), Err: err})
	}
	e.emit(r, domain.StageProviderCalled, "")

	data, err := contract.Decode([]byte(raw))
	if err != nil {
		return nil, e.fail(r, &Error{Kind: FormatError, Stage: domain.StageParsed, Message: "Model did not return valid JSON", Raw: raw, Err: err})
	}
	e.emit(r, domain.StageParsed, "")

	contract.SanitizePaths(data)
	e.emit(r, domain.StageSanitized, "")

	result := e.validator.Validate(data)
	if !result.OK() {
		return nil, e.fail(r, &Error{Kind: ContractError, Stage: domain.StageValidated, Message: "JSON failed schema validation", Details: result.Errors})
	}
	out := result.Value
	e.emit(r, domain.StageValidated, "")

	r.slug = projectSlug(req.ProjectName, out.ProjectName)
	targetRoot := filepath.Join(e.outputDir, r.slug)

	if err := os.MkdirAll(targetRoot, 0755); err != nil {
		return nil, e.fail(r, &Error{Kind: IOError, Stage: domain.StageMaterialized, Message: err.Error(), Err: err})
	}
	if _, err := materialize.Write(ctx, targetRoot, out.Files); err != nil {
		var unsafe *materialize.UnsafePathError
		if errors.As(err, &unsafe) {
			return nil, e.fail(r, &Error{Kind: SandboxError, Stage: domain.StageMaterialized, Message: err.Error(), Err: err})
		}
		return nil, e.fail(r, &Error{Kind: IOError, Stage: domain.StageMaterialized, Message: err.Error(), Err: err})
	}
	manifest := domain.NewManifest(e.now(), out.Notes, req.Prompt)
	if err := materialize.WriteManifest(targetRoot, manifest); err != nil {
		return nil, e.fail(r, &Error{Kind: IOError, Stage: domain.StageMaterialized, Message: err.Error(), Err: err})
	}
	e.emit(r, domain.StageMaterialized, "")

	report := &Report{
		OK:           true,
		Project:      r.slug,
		FilesWritten: len(out.Files),
		BrowseURL:    "/output/" + r.slug + "/",
		AbsPath:      targetRoot,
		RunID:        r.id,
	}
	e.finish(r, domain.RunSucceeded, domain.StageReported, "", report.FilesWritten)
	e.emit(r, domain.StageReported, "")
	log.Printf("[executor] run %s wrote %d files to %s", r.id, report.FilesWritten, targetRoot)
	return report, nil
}

// projectSlug picks the caller's name, then the model's, then the fallback.
// The result holds only [a-z0-9] runs joined by single dashes and is never
// empty.
func projectSlug(requested, fromModel string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		name = fromModel
	}
	if name == "" {
		name = FallbackProjectName
	}
	if s := slugify(name); s != "" {
		return s
	}
	return slugify(FallbackProjectName)
}

// slugify transliterates with slug.Make, which keeps underscores, then
// collapses everything outside [a-z0-9]
func slugify(name string) string {
	return strings.Trim(nonAlphanumeric.ReplaceAllString(slug.Make(name), "-"), "-")
}

func (e *Executor) emit(r *run, stage domain.Stage, errMsg string) {
	if e.observer == nil {
		return
	}
	e.observer(Event{RunID: r.id, Stage: stage, Slug: r.slug, Error: errMsg})
}

func (e *Executor) fail(r *run, err *Error) *Error {
	if err.Kind.Status() >= 500 {
		log.Printf("[executor] run %s failed at %s: %v", r.id, err.Stage, err)
	}
	e.finish(r, domain.RunFailed, err.Stage, err.Error(), 0)
	e.emit(r, domain.StageFailed, err.Error())
	return err
}

func (e *Executor) record(r *run, req Request, providerName string) {
	if e.recorder == nil {
		return
	}
	rec := &domain.Run{
		ID:          r.id,
		Prompt:      req.Prompt,
		ProjectName: strings.TrimSpace(req.ProjectName),
		Provider:    providerName,
		Status:      domain.RunRunning,
		Stage:       domain.StageReceived,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.recorder.CreateRun(rec); err != nil {
		log.Printf("[executor] recording run %s: %v", r.id, err)
		return
	}
	r.recorded = true
}

func (e *Executor) finish(r *run, status domain.RunStatus, stage domain.Stage, errMsg string, filesWritten int) {
	if e.recorder == nil || !r.recorded {
		return
	}
	if err := e.recorder.FinishRun(r.id, status, stage, errMsg, r.slug, filesWritten); err != nil {
		log.Printf("[executor] finishing run %s: %v", r.id, err)
	}
}
