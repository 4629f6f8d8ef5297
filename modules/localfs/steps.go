package localfs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/specialistvlad/graphjob/internal/fsutil"
	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/specialistvlad/graphjob/internal/graphstore"
	"github.com/specialistvlad/graphjob/internal/step"
)

var builder = &graphobject.Builder{}

func directoryKey(rel string) string { return TypeDirectory + ":" + rel }
func fileKey(rel string) string      { return TypeFile + ":" + rel }

// entries walks the configured root once per run; later steps reuse the
// result through the shared data store.
func entries(ec *step.ExecutionContext) ([]fsutil.Entry, error) {
	if cached, ok := ec.JobState.GetData(entriesDataKey); ok {
		return cached.([]fsutil.Entry), nil
	}

	root, _ := ec.Instance.Config[configRoot].(string)
	skip, err := excludes(ec.Instance.Config[configExclude])
	if err != nil {
		return nil, err
	}
	all, err := fsutil.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	kept := make([]fsutil.Entry, 0, len(all))
	for _, e := range all {
		if excluded(e.Path, skip) {
			continue
		}
		kept = append(kept, e)
	}
	ec.JobState.SetData(entriesDataKey, kept)
	return kept, nil
}

func excluded(rel string, skip map[string]struct{}) bool {
	if len(skip) == 0 || rel == "." {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if _, ok := skip[seg]; ok {
			return true
		}
	}
	return false
}

func displayName(rel string) string {
	if rel == "." {
		return "/"
	}
	return path.Base(rel)
}

func fetchDirectories(ctx context.Context, ec *step.ExecutionContext) error {
	all, err := entries(ec)
	if err != nil {
		return err
	}

	var dirs []*graphobject.Entity
	for _, e := range all {
		if !e.IsDir {
			continue
		}
		entity, err := builder.NewEntity(graphobject.EntityOptions{
			Key:         directoryKey(e.Path),
			Type:        TypeDirectory,
			Class:       []string{"Directory"},
			DisplayName: displayName(e.Path),
			Source:      map[string]any{"path": e.Path, "mode": e.Mode.String()},
			Properties: map[string]any{
				"path": e.Path,
				"root": e.Path == ".",
			},
		})
		if err != nil {
			return err
		}
		dirs = append(dirs, entity)
	}

	if _, err := ec.JobState.AddEntities(ctx, dirs); err != nil {
		return err
	}
	ec.Logger.Info("Collected directories.", "count", len(dirs))
	return nil
}

func fetchFiles(ctx context.Context, ec *step.ExecutionContext) error {
	all, err := entries(ec)
	if err != nil {
		return err
	}

	var files []*graphobject.Entity
	for _, e := range all {
		if e.IsDir {
			continue
		}
		props := map[string]any{
			"path":      e.Path,
			"size":      e.Size,
			"mode":      e.Mode.String(),
			"directory": e.Parent,
		}
		if ext := strings.TrimPrefix(path.Ext(e.Path), "."); ext != "" {
			props["extension"] = strings.ToLower(ext)
		}
		entity, err := builder.NewEntity(graphobject.EntityOptions{
			Key:         fileKey(e.Path),
			Type:        TypeFile,
			Class:       []string{"DataObject"},
			DisplayName: displayName(e.Path),
			Properties:  props,
		})
		if err != nil {
			return err
		}
		files = append(files, entity)
	}

	if _, err := ec.JobState.AddEntities(ctx, files); err != nil {
		return err
	}
	ec.Logger.Info("Collected files.", "count", len(files))
	return nil
}

func buildContainment(ctx context.Context, ec *step.ExecutionContext) error {
	parentOf := func(ctx context.Context, dir string) (*graphobject.Entity, error) {
		parent, err := ec.JobState.FindEntity(ctx, directoryKey(dir))
		if err != nil {
			return nil, err
		}
		if parent == nil {
			ec.Logger.Warn("Parent directory not found.", "directory", dir)
		}
		return parent, nil
	}

	err := ec.JobState.IterateEntities(ctx, graphstore.Filter{Type: TypeFile}, func(ctx context.Context, file *graphobject.Entity) error {
		dir, _ := file.Properties["directory"].(string)
		parent, err := parentOf(ctx, dir)
		if err != nil || parent == nil {
			return err
		}
		rel, err := graphobject.NewDirectRelationship(graphobject.DirectRelationshipOptions{Class: "HAS", From: parent, To: file})
		if err != nil {
			return err
		}
		_, err = ec.JobState.AddRelationship(ctx, rel)
		return err
	}, graphstore.IterateOptions{})
	if err != nil {
		return err
	}

	return ec.JobState.IterateEntities(ctx, graphstore.Filter{Type: TypeDirectory}, func(ctx context.Context, dir *graphobject.Entity) error {
		p, _ := dir.Properties["path"].(string)
		if p == "." {
			return nil
		}
		parent, err := parentOf(ctx, path.Dir(p))
		if err != nil || parent == nil {
			return err
		}
		rel, err := graphobject.NewDirectRelationship(graphobject.DirectRelationshipOptions{Class: "CONTAINS", From: parent, To: dir})
		if err != nil {
			return err
		}
		_, err = ec.JobState.AddRelationship(ctx, rel)
		return err
	}, graphstore.IterateOptions{})
}

func mapFileExtensions(ctx context.Context, ec *step.ExecutionContext) error {
	return ec.JobState.IterateEntities(ctx, graphstore.Filter{Type: TypeFile}, func(ctx context.Context, file *graphobject.Entity) error {
		ext, _ := file.Properties["extension"].(string)
		if ext == "" {
			return nil
		}
		rel, err := graphobject.NewMappedRelationship(graphobject.MappedRelationshipOptions{
			Class:  "HAS",
			Source: file,
			Target: map[string]any{
				"_type": TargetTypeExtension,
				"_key":  TargetTypeExtension + ":" + ext,
				"name":  ext,
			},
		})
		if err != nil {
			return err
		}
		_, err = ec.JobState.AddRelationship(ctx, rel)
		return err
	}, graphstore.IterateOptions{})
}
