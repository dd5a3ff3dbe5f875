// internal/agent/provider/router.go
package provider

import (
	"context"

	agenterrors "trenddrop-agent/internal/common/errors"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/common/metrics"
)

// Router manages the ordered list of LLM backends and implements failover.
// Order is the declared order passed at construction; a preferred provider
// is moved to the front, a forced provider disables fallback entirely.
type Router struct {
	providers []Provider
	log       logger.Logger
}

func NewRouter(log logger.Logger, providers ...Provider) *Router {
	return &Router{
		providers: providers,
		log:       log.With(map[string]interface{}{"component": "provider-router"}),
	}
}

// Providers returns the declared provider list (configured or not).
func (r *Router) Providers() []Provider {
	return r.providers
}

// ConfiguredNames returns the names of all configured providers in declared order.
func (r *Router) ConfiguredNames() []string {
	var names []string
	for _, p := range r.providers {
		if p.Configured() {
			names = append(names, p.Name())
		}
	}
	return names
}

func (r *Router) byName(name string) Provider {
	for _, p := range r.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Complete runs one completion with failover semantics.
//
// Forced: call exactly that provider, propagate its error unchanged.
// Otherwise: try preferred first (if configured), then the remaining
// configured providers in declared order; per-provider errors are logged
// and swallowed; if every attempt fails the last error is wrapped in
// ALL_PROVIDERS_FAILED.
func (r *Router) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	if opts.Forced != "" {
		p := r.byName(opts.Forced)
		if p == nil || !p.Configured() {
			metrics.ProviderCalls.WithLabelValues(opts.Forced, "unavailable").Inc()
			return "", agenterrors.NewNoProviderAvailable(opts.Forced)
		}
		text, err := p.Complete(ctx, systemPrompt, userPrompt, opts)
		if err != nil {
			metrics.ProviderCalls.WithLabelValues(p.Name(), "error").Inc()
			return "", err
		}
		metrics.ProviderCalls.WithLabelValues(p.Name(), "success").Inc()
		return text, nil
	}

	order := r.order(opts.Preferred)
	if len(order) == 0 {
		return "", agenterrors.NewNoProviderAvailable("")
	}

	var lastErr error
	for _, p := range order {
		text, err := p.Complete(ctx, systemPrompt, userPrompt, opts)
		if err == nil {
			metrics.ProviderCalls.WithLabelValues(p.Name(), "success").Inc()
			return text, nil
		}

		metrics.ProviderCalls.WithLabelValues(p.Name(), "error").Inc()
		r.log.Warn("provider call failed, trying next", map[string]interface{}{
			"provider": p.Name(),
			"error":    err.Error(),
		})
		lastErr = err

		// A cancelled parent context fails every remaining provider the
		// same way; stop early instead of burning through the list.
		if ctx.Err() != nil {
			break
		}
	}

	return "", agenterrors.NewAllProvidersFailed(lastErr)
}

// order computes [preferred] + (remaining configured providers in declared
// order). An unconfigured preferred provider is simply skipped.
func (r *Router) order(preferred string) []Provider {
	var out []Provider
	if preferred != "" {
		if p := r.byName(preferred); p != nil && p.Configured() {
			out = append(out, p)
		}
	}
	for _, p := range r.providers {
		if !p.Configured() || p.Name() == preferred {
			continue
		}
		out = append(out, p)
	}
	return out
}
