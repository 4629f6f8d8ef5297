// Package localfs is an example integration that ingests a local directory
// tree: directories and files become entities, containment becomes
// relationships, and file extensions are mapped to entities owned by
// another system.
package localfs

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/graphjob/internal/integration"
	"github.com/specialistvlad/graphjob/internal/registry"
	"github.com/specialistvlad/graphjob/internal/step"
)

// Name is the integration name used in run configuration.
const Name = "localfs"

// Step and ingestion source ids.
const (
	StepFetchDirectories   = "fetch-directories"
	StepFetchFiles         = "fetch-files"
	StepBuildContainment   = "build-containment"
	StepMapFileExtensions  = "map-file-extensions"
	SourceFiles            = "files"
	SourceExtensionMapping = "extension-mapping"
)

// Graph object types.
const (
	TypeDirectory         = "local_directory"
	TypeFile              = "local_file"
	TypeDirectoryHasFile  = "local_directory_has_file"
	TypeDirectoryContains = "local_directory_contains_directory"
	TypeFileHasExtension  = "local_file_has_file_extension"
	TargetTypeExtension   = "file_extension"
	entriesDataKey        = "localfs:entries"
	configRoot            = "root"
	configExclude         = "exclude"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the localfs integration.
func (m *Module) Register(r *registry.Registry) {
	r.Register(Definition())
}

// Definition returns the integration definition.
func Definition() *integration.Definition {
	return &integration.Definition{
		Name: Name,
		IngestionConfig: []step.IngestionSource{
			{ID: SourceFiles, Title: "Files", Description: "Regular files and their parent directories."},
			{ID: SourceExtensionMapping, Title: "Extension mapping", Description: "Relationships from files to file extension entities."},
		},
		ValidateInvocation: validateInvocation,
		Steps: []*step.Step{
			{
				ID:   StepFetchDirectories,
				Name: "Fetch directories",
				Entities: []step.GraphObjectMetadata{
					{ResourceName: "Directory", Type: TypeDirectory, Class: []string{"Directory"}},
				},
				Handler: fetchDirectories,
			},
			{
				ID:                StepFetchFiles,
				Name:              "Fetch files",
				DependsOn:         []string{StepFetchDirectories},
				IngestionSourceID: SourceFiles,
				Entities: []step.GraphObjectMetadata{
					{ResourceName: "File", Type: TypeFile, Class: []string{"DataObject"}},
				},
				Handler: fetchFiles,
			},
			{
				ID:        StepBuildContainment,
				Name:      "Build directory containment",
				DependsOn: []string{StepFetchDirectories, StepFetchFiles},
				Relationships: []step.GraphObjectMetadata{
					{ResourceName: "Directory has file", Type: TypeDirectoryHasFile, Class: []string{"HAS"}, SourceType: TypeDirectory, TargetType: TypeFile},
					{ResourceName: "Directory contains directory", Type: TypeDirectoryContains, Class: []string{"CONTAINS"}, SourceType: TypeDirectory, TargetType: TypeDirectory},
				},
				Handler: buildContainment,
			},
			{
				ID:                StepMapFileExtensions,
				Name:              "Map file extensions",
				DependsOn:         []string{StepFetchFiles},
				IngestionSourceID: SourceExtensionMapping,
				Relationships: []step.GraphObjectMetadata{
					{ResourceName: "File has extension", Type: TypeFileHasExtension, Class: []string{"HAS"}, SourceType: TypeFile, TargetType: TargetTypeExtension, Partial: true},
				},
				Handler: mapFileExtensions,
			},
		},
	}
}

func validateInvocation(_ context.Context, instance step.Instance) error {
	root, ok := instance.Config[configRoot].(string)
	if !ok || root == "" {
		return fmt.Errorf("instance config %q must be a non-empty string", configRoot)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("cannot access %q: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", root)
	}
	if raw, ok := instance.Config[configExclude]; ok {
		if _, err := excludes(raw); err != nil {
			return err
		}
	}
	return nil
}

func excludes(raw any) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if raw == nil {
		return out, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("instance config %q must be a list of names", configExclude)
	}
	for _, v := range list {
		name, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("instance config %q must only contain strings", configExclude)
		}
		out[name] = struct{}{}
	}
	return out, nil
}
