// Package pipeline defines the fixed stage chain of the content pipeline and
// the pure retry/escalation policy applied when a stage fails.
package pipeline

import (
	"fmt"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/workunit"
)

// StageDefinition binds one pipeline stage to its position in the chain and
// the work unit that performs it.
type StageDefinition struct {
	Name    string
	Ordinal int
	Next    domain.ContentStatus // following stage name, or ContentPublished for the last stage
	Unit    workunit.WorkUnit
}

// Registry is the single source of truth for the stage chain. The chain is
// strictly linear: exactly one entry stage, one terminal transition to
// published, no cycles.
type Registry struct {
	order  []string
	stages map[string]StageDefinition
}

// DefaultChain is the pipeline order used in production: keyword research,
// topic research, drafting, editing, image sourcing, publishing.
var DefaultChain = []domain.ContentStatus{
	domain.ContentKeyword,
	domain.ContentResearch,
	domain.ContentDraft,
	domain.ContentEdit,
	domain.ContentImage,
	domain.ContentPublish,
}

// NewRegistry builds a Registry from an ordered chain and a unit per stage.
// units must cover every chain element; extra units are rejected so a typo
// in wiring fails at startup rather than at claim time.
func NewRegistry(chain []domain.ContentStatus, units map[string]workunit.WorkUnit) (*Registry, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("pipeline chain is empty")
	}

	r := &Registry{stages: make(map[string]StageDefinition, len(chain))}
	for i, stage := range chain {
		name := string(stage)
		if _, dup := r.stages[name]; dup {
			return nil, fmt.Errorf("stage %q appears twice in the chain", name)
		}
		unit, ok := units[name]
		if !ok {
			return nil, fmt.Errorf("no work unit for stage %q", name)
		}
		next := domain.ContentPublished
		if i < len(chain)-1 {
			next = chain[i+1]
		}
		r.stages[name] = StageDefinition{Name: name, Ordinal: i, Next: next, Unit: unit}
		r.order = append(r.order, name)
	}
	if len(units) != len(chain) {
		return nil, fmt.Errorf("%d work units provided for a %d-stage chain", len(units), len(chain))
	}
	return r, nil
}

// EntryStage returns the first stage of the chain.
func (r *Registry) EntryStage() string { return r.order[0] }

// Stages returns the stage names in chain order.
func (r *Registry) Stages() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Contains reports whether name is a known stage.
func (r *Registry) Contains(name string) bool {
	_, ok := r.stages[name]
	return ok
}

// NextStage returns the status that follows a successful completion of the
// given stage — the next stage name, or ContentPublished after the last
// stage. An unknown stage returns UnknownStageError.
func (r *Registry) NextStage(current string) (domain.ContentStatus, error) {
	def, ok := r.stages[current]
	if !ok {
		return "", &domain.UnknownStageError{Stage: current}
	}
	return def.Next, nil
}

// Prev returns the stage preceding the given one, or "" for the entry stage.
func (r *Registry) Prev(current string) (string, error) {
	def, ok := r.stages[current]
	if !ok {
		return "", &domain.UnknownStageError{Stage: current}
	}
	if def.Ordinal == 0 {
		return "", nil
	}
	return r.order[def.Ordinal-1], nil
}

// WorkUnitFor returns the work unit that executes the given stage.
func (r *Registry) WorkUnitFor(stage string) (workunit.WorkUnit, error) {
	def, ok := r.stages[stage]
	if !ok {
		return nil, &domain.UnknownStageError{Stage: stage}
	}
	return def.Unit, nil
}
