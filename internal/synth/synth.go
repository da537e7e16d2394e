// Package synth turns raw extracted website text into a structured
// business profile via a language model, and merges new text into an
// existing profile without losing previously-known information.
package synth

import (
	"context"

	"github.com/sells-group/site-analyzer/internal/model"
)

// Synthesizer is the external collaborator contract the orchestrator
// relies on: every output field is present, unknown scalar facts carry the
// model.NotFound sentinel rather than being omitted, and MergeInto is a
// superset operation over list fields.
type Synthesizer interface {
	Summarize(ctx context.Context, text string) (*model.StructuredProfile, error)
	MergeInto(ctx context.Context, existing *model.StructuredProfile, text string) (*model.StructuredProfile, error)
}
