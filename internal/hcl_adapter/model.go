package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Run      *RunBlock      `hcl:"run,block"`
	Instance *InstanceBlock `hcl:"instance,block"`
	Steps    []*StepBlock   `hcl:"step,block"`
	Upload   *UploadBlock   `hcl:"upload,block"`
	Events   *EventsBlock   `hcl:"events,block"`
	Remain   hcl.Body       `hcl:",remain"`
}

// RunBlock is the HCL representation of `run {}`.
type RunBlock struct {
	Integration     string `hcl:"integration,optional"`
	WorkingDir      string `hcl:"working_dir,optional"`
	Store           string `hcl:"store,optional"`
	BufferThreshold int    `hcl:"buffer_threshold,optional"`
	KeyMemoryLimit  int    `hcl:"key_memory_limit,optional"`
	NormalizeKeys   bool   `hcl:"normalize_keys,optional"`
	MaxConcurrency  int    `hcl:"max_concurrency,optional"`
}

// InstanceBlock is the HCL representation of `instance {}`. Config is kept
// as an expression so any object shape is accepted.
type InstanceBlock struct {
	ID              string         `hcl:"id,optional"`
	Name            string         `hcl:"name,optional"`
	Config          hcl.Expression `hcl:"config,optional"`
	DisabledSources []string       `hcl:"disabled_sources,optional"`
}

// StepBlock is the HCL representation of `step "<id>" {}`.
type StepBlock struct {
	ID       string `hcl:"id,label"`
	Disabled bool   `hcl:"disabled,optional"`
}

// UploadBlock is the HCL representation of `upload {}`.
type UploadBlock struct {
	Kind          string `hcl:"kind,optional"`
	Endpoint      string `hcl:"endpoint"`
	JobID         string `hcl:"job_id,optional"`
	Token         string `hcl:"token,optional"`
	BatchSize     int    `hcl:"batch_size,optional"`
	SubjectPrefix string `hcl:"subject_prefix,optional"`
}

// EventsBlock is the HCL representation of `events {}`.
type EventsBlock struct {
	URL                string `hcl:"url"`
	Namespace          string `hcl:"namespace,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}
