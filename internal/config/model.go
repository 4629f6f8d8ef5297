package config

import (
	"errors"
	"fmt"
	"sort"
)

// Store backends selectable in the run block.
const (
	StoreMemory     = "memory"
	StoreFilesystem = "filesystem"
	StoreSQLite     = "sqlite"
)

// Upload kinds.
const (
	UploadHTTP = "http"
	UploadNATS = "nats"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultWorkingDir      = ".graphjob"
	DefaultBufferThreshold = 500
	DefaultKeyMemoryLimit  = 100_000
)

// Model is the unified, format-agnostic representation of a run.
type Model struct {
	Run      Run
	Instance Instance
	// Steps holds per-step overrides keyed by step id.
	Steps  map[string]*Step
	Upload *Upload
	Events *Events
}

// Run configures the engine and storage.
type Run struct {
	Integration     string
	WorkingDir      string
	Store           string
	BufferThreshold int
	KeyMemoryLimit  int
	NormalizeKeys   bool
	MaxConcurrency  int
}

// Instance is the integration instance being executed.
type Instance struct {
	ID              string
	Name            string
	Config          map[string]any
	DisabledSources []string
}

// Step is the format-agnostic representation of a `step` block.
type Step struct {
	ID       string
	Disabled bool
}

// Upload configures delivery of the run's graph objects.
type Upload struct {
	Kind          string
	Endpoint      string
	JobID         string
	Token         string
	BatchSize     int
	SubjectPrefix string
}

// Events configures the lifecycle event stream.
type Events struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// New returns an empty model.
func New() *Model {
	return &Model{Steps: make(map[string]*Step)}
}

// ApplyDefaults fills every unset field that has a default.
func (m *Model) ApplyDefaults() {
	if m.Run.WorkingDir == "" {
		m.Run.WorkingDir = DefaultWorkingDir
	}
	if m.Run.Store == "" {
		m.Run.Store = StoreFilesystem
	}
	if m.Run.BufferThreshold <= 0 {
		m.Run.BufferThreshold = DefaultBufferThreshold
	}
	if m.Run.KeyMemoryLimit <= 0 {
		m.Run.KeyMemoryLimit = DefaultKeyMemoryLimit
	}
	if m.Instance.Config == nil {
		m.Instance.Config = map[string]any{}
	}
	if m.Steps == nil {
		m.Steps = make(map[string]*Step)
	}
	if m.Upload != nil && m.Upload.Kind == "" {
		m.Upload.Kind = UploadHTTP
	}
}

// Validate reports configuration errors that would make a run impossible.
func (m *Model) Validate() error {
	var errs []error
	switch m.Run.Store {
	case StoreMemory, StoreFilesystem, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("run.store must be one of %q, %q or %q, got %q", StoreMemory, StoreFilesystem, StoreSQLite, m.Run.Store))
	}
	if m.Run.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("run.max_concurrency must not be negative"))
	}
	if u := m.Upload; u != nil {
		switch u.Kind {
		case UploadHTTP, UploadNATS:
		default:
			errs = append(errs, fmt.Errorf("upload.kind must be %q or %q, got %q", UploadHTTP, UploadNATS, u.Kind))
		}
		if u.Endpoint == "" {
			errs = append(errs, fmt.Errorf("upload.endpoint is required"))
		}
		if u.Kind == UploadHTTP && u.JobID == "" {
			errs = append(errs, fmt.Errorf("upload.job_id is required for http uploads"))
		}
	}
	if m.Events != nil && m.Events.URL == "" {
		errs = append(errs, fmt.Errorf("events.url is required"))
	}
	return errors.Join(errs...)
}

// DisabledSteps returns the ids of steps switched off by configuration.
func (m *Model) DisabledSteps() []string {
	var ids []string
	for id, s := range m.Steps {
		if s.Disabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
