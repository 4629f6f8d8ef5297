package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/graphjob/internal/config"
	"github.com/specialistvlad/graphjob/internal/ctxlog"
	"github.com/specialistvlad/graphjob/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under paths and merges them into one model.
// Singleton blocks (run, instance, upload, events) may appear in only one
// file; step blocks must have unique ids.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := config.New()

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	evalCtx := newEvalContext()
	seen := make(map[string]string)
	claim := func(block, file string) error {
		if prev, ok := seen[block]; ok {
			return fmt.Errorf("duplicate %s block in %s (first defined in %s)", block, file, prev)
		}
		seen[block] = file
		return nil
	}

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if root.Run != nil {
			if err := claim("run", file); err != nil {
				return nil, err
			}
			model.Run = l.translateRun(root.Run)
		}
		if root.Instance != nil {
			if err := claim("instance", file); err != nil {
				return nil, err
			}
			inst, err := l.translateInstance(ctx, evalCtx, root.Instance)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Instance = inst
		}
		if root.Upload != nil {
			if err := claim("upload", file); err != nil {
				return nil, err
			}
			model.Upload = l.translateUpload(root.Upload)
		}
		if root.Events != nil {
			if err := claim("events", file); err != nil {
				return nil, err
			}
			model.Events = l.translateEvents(root.Events)
		}
		for _, s := range root.Steps {
			if err := claim("step."+s.ID, file); err != nil {
				return nil, err
			}
			model.Steps[s.ID] = &config.Step{ID: s.ID, Disabled: s.Disabled}
		}
	}

	logger.Debug("HCL loading complete.", "files", len(hclFiles), "steps", len(model.Steps))
	return model, nil
}

// findAllHCLFiles expands directories into their .hcl files. Missing paths
// are skipped.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		files, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return allFiles, nil
}
