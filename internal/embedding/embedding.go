// Package embedding turns text into vectors and scores them. An external
// provider is preferred; the local term-frequency embedder takes over on
// missing configuration, errors or timeouts.
package embedding

import (
	"context"
	"errors"
)

// Source records which embedder produced a vector.
type Source string

const (
	External      Source = "external"
	LocalFallback Source = "local"
)

// Vector is an immutable embedding.
type Vector struct {
	Values []float32 `json:"values"`
	Source Source    `json:"source"`
}

// Dimensions returns the vector length.
func (v Vector) Dimensions() int { return len(v.Values) }

// IsZero reports whether the vector carries no values.
func (v Vector) IsZero() bool { return len(v.Values) == 0 }

// Provider is an external embedding API.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// MaxBatch is the largest number of inputs accepted in one call.
	MaxBatch() int
}

// ErrEmptyText is returned for blank input.
var ErrEmptyText = errors.New("embedding: text must not be empty")
