package ports

import (
	"context"
)

// InferencePort is the AI-inference collaborator consumed by ai nodes.
// When no provider is configured, ai nodes return placeholder results.
type InferencePort interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}
