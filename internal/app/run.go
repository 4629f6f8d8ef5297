package app

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/specialistvlad/graphjob/internal/config"
	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/events"
	"github.com/specialistvlad/graphjob/internal/executor"
	"github.com/specialistvlad/graphjob/internal/integration"
	"github.com/specialistvlad/graphjob/internal/step"
	"github.com/specialistvlad/graphjob/internal/upload"
)

// Run executes the configured integration once and writes the run
// artifacts. Step failures are reported in the returned summary; an error
// means the run could not be carried out at all.
func (a *App) Run(ctx context.Context) (*executor.Summary, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	def, err := a.registry.Lookup(a.config.Run.Integration)
	if err != nil {
		return nil, err
	}

	rt, err := a.openRuntime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare run: %w", err)
	}
	defer func() {
		if err := rt.close(); err != nil {
			a.logger.Error("Failed to release run resources.", "error", err)
		}
	}()

	if a.appCfg.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.appCfg.HealthcheckPort, rt.metrics)
		defer a.closeHealthcheckServer(ctx)
	}

	publisher := a.openEvents(ctx)
	defer publisher.Close()

	inst := a.config.Instance
	a.logger.Info("🚀 Starting integration run...", "integration", def.Name, "steps", len(def.Steps))
	summary, err := integration.Execute(ctx, def, integration.Options{
		Instance:        step.Instance{ID: inst.ID, Name: inst.Name, Config: inst.Config},
		Shared:          rt.shared,
		DisabledSteps:   a.config.DisabledSteps(),
		DisabledSources: inst.DisabledSources,
		MaxConcurrency:  a.config.Run.MaxConcurrency,
		Events:          publisher,
		Metrics:         rt.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Integration run finished.", "failedSteps", summary.Failed(), "partialTypes", summary.Metadata.PartialDatasets.Types)

	if err := a.writeSummary(summary); err != nil {
		return summary, err
	}
	if err := rt.metrics.WriteTextfile(a.Path(MetricsFile)); err != nil {
		return summary, err
	}

	if a.config.Upload != nil {
		if err := a.upload(ctx, rt); err != nil {
			return summary, fmt.Errorf("upload failed: %w", err)
		}
	}

	a.logger.Debug("App.Run method finished.")
	return summary, nil
}

func (a *App) writeSummary(summary *executor.Summary) error {
	data, err := sonic.ConfigStd.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(a.Path(SummaryFile), data, 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// openEvents connects the lifecycle event stream. A stream that cannot be
// reached never fails the run.
func (a *App) openEvents(ctx context.Context) events.Publisher {
	cfg := a.config.Events
	if cfg == nil {
		return events.Nop{}
	}
	pub, err := events.DialSocketIO(ctx, events.SocketIOOptions{
		URL:                cfg.URL,
		Namespace:          cfg.Namespace,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		a.logger.Warn("Event stream unavailable, continuing without it.", "url", cfg.URL, "error", err)
		return events.Nop{}
	}
	return pub
}

func (a *App) upload(ctx context.Context, rt *runtime) error {
	cfg := a.config.Upload
	var (
		sink upload.Sink
		err  error
	)
	switch cfg.Kind {
	case config.UploadNATS:
		sink, err = upload.DialNATS(upload.NATSOptions{URL: cfg.Endpoint, JobID: cfg.JobID, SubjectPrefix: cfg.SubjectPrefix})
	default:
		sink, err = upload.NewHTTPSink(upload.HTTPOptions{Endpoint: cfg.Endpoint, JobID: cfg.JobID, Token: cfg.Token})
	}
	if err != nil {
		return err
	}
	defer sink.Close()

	_, err = upload.Run(ctx, rt.shared.Store, sink, upload.Options{
		Types:     rt.shared.Types.AllEncounteredTypes(),
		BatchSize: cfg.BatchSize,
	})
	return err
}
