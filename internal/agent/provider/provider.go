// internal/agent/provider/provider.go
package provider

import "context"

// Options controls a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int

	// Preferred moves the named provider to the front of the failover
	// order. Forced calls exactly that provider with no fallback.
	Preferred string
	Forced    string
}

// Provider is one interchangeable LLM backend exposing a uniform completion
// capability. Configured reports whether credentials are present; it is a
// static capability check, not a live health probe.
type Provider interface {
	Name() string
	Configured() bool
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
}
