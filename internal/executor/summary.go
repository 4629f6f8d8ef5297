package executor

import (
	"sort"

	"github.com/specialistvlad/graphjob/internal/step"
)

// Summary is the structured result of a run, written as summary.json.
type Summary struct {
	IntegrationStepResults []step.Result `json:"integrationStepResults"`
	Metadata               Metadata      `json:"metadata"`
}

// Metadata carries run-level information for the synchronization system.
type Metadata struct {
	PartialDatasets PartialDatasets `json:"partialDatasets"`
}

// PartialDatasets lists the types whose data from this run is incomplete;
// previously seen objects of these types must not be deleted downstream.
type PartialDatasets struct {
	Types []string `json:"types"`
}

// Failed returns the ids of steps that ended in failure.
func (s *Summary) Failed() []string {
	var ids []string
	for _, r := range s.IntegrationStepResults {
		if r.Status == step.StatusFailure {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Result returns the result for a step id.
func (s *Summary) Result(id string) (step.Result, bool) {
	for _, r := range s.IntegrationStepResults {
		if r.ID == id {
			return r, true
		}
	}
	return step.Result{}, false
}

func partialTypes(results []step.Result) []string {
	seen := make(map[string]struct{})
	for _, r := range results {
		for _, t := range r.PartialTypes {
			seen[t] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
