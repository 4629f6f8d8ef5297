package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/graphjob/internal/ctxlog"
)

// ValidateRegistry checks every registered definition for mistakes that
// would only surface mid-run.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Names() {
		def := r.definitions[name]
		if len(def.Steps) == 0 {
			logger.Warn("Integration declares no steps.", "integration", name)
		}

		sources := make(map[string]struct{}, len(def.IngestionConfig))
		for _, src := range def.IngestionConfig {
			if _, dup := sources[src.ID]; dup {
				errs = append(errs, fmt.Sprintf("integration '%s': ingestion source '%s' declared twice", name, src.ID))
			}
			sources[src.ID] = struct{}{}
		}

		declaredBy := make(map[string]string)
		for _, s := range def.Steps {
			if s.ID == "" {
				errs = append(errs, fmt.Sprintf("integration '%s': step '%s' has no id", name, s.Name))
				continue
			}
			if s.Handler == nil {
				errs = append(errs, fmt.Sprintf("integration '%s': step '%s' has no handler", name, s.ID))
			}
			if s.IngestionSourceID != "" {
				if _, ok := sources[s.IngestionSourceID]; !ok {
					errs = append(errs, fmt.Sprintf("integration '%s': step '%s' references undeclared ingestion source '%s'", name, s.ID, s.IngestionSourceID))
				}
			}
			for _, typ := range s.DeclaredTypes() {
				if typ == "" {
					errs = append(errs, fmt.Sprintf("integration '%s': step '%s' declares a type without a name", name, s.ID))
					continue
				}
				if other, ok := declaredBy[typ]; ok && other != s.ID {
					logger.Debug("Type declared by more than one step.", "integration", name, "type", typ, "steps", []string{other, s.ID})
				}
				declaredBy[typ] = s.ID
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
