package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/graphjob/internal/config"
)

func (l *Loader) translateRun(b *RunBlock) config.Run {
	return config.Run{
		Integration:     b.Integration,
		WorkingDir:      b.WorkingDir,
		Store:           b.Store,
		BufferThreshold: b.BufferThreshold,
		KeyMemoryLimit:  b.KeyMemoryLimit,
		NormalizeKeys:   b.NormalizeKeys,
		MaxConcurrency:  b.MaxConcurrency,
	}
}

func (l *Loader) translateInstance(ctx context.Context, evalCtx *hcl.EvalContext, b *InstanceBlock) (config.Instance, error) {
	inst := config.Instance{
		ID:              b.ID,
		Name:            b.Name,
		DisabledSources: b.DisabledSources,
	}
	if !isExprDefined(ctx, b.Config, "config") {
		return inst, nil
	}

	val, diags := b.Config.Value(evalCtx)
	if diags.HasErrors() {
		return inst, fmt.Errorf("invalid instance config: %w", diags)
	}
	if val.IsNull() {
		return inst, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return inst, fmt.Errorf("instance config must be an object, got %s", val.Type().FriendlyName())
	}
	raw, err := ctyValueToInterface(val)
	if err != nil {
		return inst, fmt.Errorf("converting instance config: %w", err)
	}
	if raw != nil {
		inst.Config = raw.(map[string]any)
	}
	return inst, nil
}

func (l *Loader) translateUpload(b *UploadBlock) *config.Upload {
	return &config.Upload{
		Kind:          b.Kind,
		Endpoint:      b.Endpoint,
		JobID:         b.JobID,
		Token:         b.Token,
		BatchSize:     b.BatchSize,
		SubjectPrefix: b.SubjectPrefix,
	}
}

func (l *Loader) translateEvents(b *EventsBlock) *config.Events {
	return &config.Events{
		URL:                b.URL,
		Namespace:          b.Namespace,
		InsecureSkipVerify: b.InsecureSkipVerify,
	}
}
