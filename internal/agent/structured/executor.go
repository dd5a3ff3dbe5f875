// internal/agent/structured/executor.go
// Package structured wraps the provider router to guarantee
// schema-conformant JSON output from free-text model responses.
package structured

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"trenddrop-agent/internal/agent/provider"
	agenterrors "trenddrop-agent/internal/common/errors"
	"trenddrop-agent/internal/common/logger"
)

const (
	DefaultRetries     = 3
	DefaultTemperature = 0.2
)

// schemaInstruction is appended to every system prompt. Models still wrap
// JSON in prose often enough that the lenient extraction below stays load
// bearing regardless.
const schemaInstruction = "\n\nRespond with a single JSON document and nothing else. " +
	"No markdown fences, no commentary. The JSON must conform to this schema:\n"

// Completer is the slice of the router the executor needs.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts provider.Options) (string, error)
}

// Executor retries completions until one parses as JSON matching the
// caller's schema, or the retry budget runs out.
type Executor struct {
	completer Completer
	log       logger.Logger
}

// RunOptions tunes one structured task. Zero values take defaults.
type RunOptions struct {
	Retries     int
	Temperature float64
	MaxTokens   int
	Preferred   string
}

func NewExecutor(completer Completer, log logger.Logger) *Executor {
	return &Executor{
		completer: completer,
		log:       log.With(map[string]interface{}{"component": "structured-executor"}),
	}
}

// Run executes the task and decodes the model's JSON into out. schemaJSON
// is a JSON-schema document; when non-empty the decoded document must
// validate against it or the attempt is treated as a parse failure.
func (e *Executor) Run(ctx context.Context, systemPrompt, userPrompt, schemaJSON string, out interface{}, opts RunOptions) error {
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Preferred == "" {
		opts.Preferred = provider.NameOpenAI
	}

	fullSystem := systemPrompt + schemaInstruction + schemaJSON

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if ctx.Err() != nil {
			return agenterrors.NewSchemaParseFailure(attempt-1, ctx.Err())
		}

		text, err := e.completer.Complete(ctx, fullSystem, userPrompt, provider.Options{
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Preferred:   opts.Preferred,
		})
		if err != nil {
			lastErr = err
			e.log.Warn("completion failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			continue
		}

		res := parse(text)
		if !res.ok {
			lastErr = res.err
			e.log.Warn("response did not parse as JSON", map[string]interface{}{
				"attempt": attempt,
				"error":   res.err.Error(),
			})
			continue
		}

		if schemaJSON != "" {
			if err := validateAgainstSchema(res.raw, schemaJSON); err != nil {
				lastErr = err
				e.log.Warn("response violated schema", map[string]interface{}{
					"attempt": attempt,
					"error":   err.Error(),
				})
				continue
			}
		}

		if err := json.Unmarshal(res.raw, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return agenterrors.NewSchemaParseFailure(opts.Retries, lastErr)
}

// parseResult is the tagged outcome of one two-phase parse attempt.
type parseResult struct {
	ok  bool
	raw json.RawMessage
	err error
}

// parse tries the whole response as JSON first, then falls back to the
// first balanced {...} or [...] substring.
func parse(text string) parseResult {
	trimmed := []byte(text)
	if json.Valid(trimmed) {
		return parseResult{ok: true, raw: trimmed}
	}

	extracted, found := extractBalanced(text)
	if !found {
		return parseResult{err: fmt.Errorf("no JSON document found in response")}
	}
	if !json.Valid([]byte(extracted)) {
		return parseResult{err: fmt.Errorf("extracted substring is not valid JSON")}
	}
	return parseResult{ok: true, raw: json.RawMessage(extracted)}
}

// extractBalanced returns the first balanced top-level JSON object or array
// in text. Brace counting is string-aware so braces inside string values do
// not unbalance the scan.
func extractBalanced(text string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func validateAgainstSchema(doc json.RawMessage, schemaJSON string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation errored: %w", err)
	}
	if !result.Valid() {
		if errs := result.Errors(); len(errs) > 0 {
			return fmt.Errorf("schema violation: %s", errs[0].String())
		}
		return fmt.Errorf("schema violation")
	}
	return nil
}
