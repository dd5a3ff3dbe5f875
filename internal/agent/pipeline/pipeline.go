// internal/agent/pipeline/pipeline.go
// Package pipeline orchestrates one discovery pass: generate a candidate,
// reject duplicates, corroborate externally, verify quality, persist.
package pipeline

import (
	"context"
	"math/rand"
	"time"

	"trenddrop-agent/internal/agent/catalog"
	"trenddrop-agent/internal/agent/dedup"
	"trenddrop-agent/internal/agent/structured"
	agenterrors "trenddrop-agent/internal/common/errors"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/common/metrics"
	"trenddrop-agent/internal/models"
)

// Candidates are proposed by the model, so a batch of N may need more than
// N attempts; the budget bounds how many before the batch gives up.
const attemptsPerItem = 2

// recentNamesWindow caps how many accepted names are fed back into the
// generation prompt.
const recentNamesWindow = 20

// TaskRunner is the slice of the structured executor the pipeline needs.
type TaskRunner interface {
	Run(ctx context.Context, systemPrompt, userPrompt, schemaJSON string, out interface{}, opts structured.RunOptions) error
}

// CandidateValidator corroborates candidates against wholesale sources.
type CandidateValidator interface {
	Validate(ctx context.Context, c *models.Candidate) models.ValidationResult
}

// QualityVerifier checks and repairs candidates.
type QualityVerifier interface {
	Verify(ctx context.Context, c *models.Candidate, val models.ValidationResult) models.QualityReport
}

// Options tunes a pipeline instance.
type Options struct {
	MinQualityScore int
	Retries         int
	Temperature     float64
	MaxTokens       int
}

// ProgressFunc is invoked after every processed candidate (accepted or not).
type ProgressFunc func(processed, accepted int)

// Pipeline owns one candidate's journey from generation to persistence.
// It never retries a rejected candidate; it just generates a new one.
type Pipeline struct {
	runner    TaskRunner
	index     *dedup.Index
	validator CandidateValidator
	verifier  QualityVerifier
	gateway   catalog.Gateway
	opts      Options
	rng       *rand.Rand
	log       logger.Logger

	recentNames []string
}

func New(runner TaskRunner, index *dedup.Index, validator CandidateValidator, verifier QualityVerifier, gateway catalog.Gateway, opts Options, log logger.Logger) *Pipeline {
	if opts.MinQualityScore == 0 {
		opts.MinQualityScore = 70
	}
	return &Pipeline{
		runner:    runner,
		index:     index,
		validator: validator,
		verifier:  verifier,
		gateway:   gateway,
		opts:      opts,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log.With(map[string]interface{}{"component": "discovery-pipeline"}),
	}
}

// DiscoverBatch runs the pipeline until count candidates are accepted, the
// attempt budget (2x count) is spent, or shouldContinue says stop. Accepted
// products are already persisted when returned. Rejections never abort the
// batch; per-item faults are logged and the loop moves on.
func (p *Pipeline) DiscoverBatch(ctx context.Context, count int, shouldContinue func() bool, onProgress ProgressFunc) ([]models.Product, error) {
	if shouldContinue == nil {
		shouldContinue = func() bool { return true }
	}

	var accepted []models.Product
	maxAttempts := attemptsPerItem * count

	for attempt := 0; attempt < maxAttempts && len(accepted) < count; attempt++ {
		if ctx.Err() != nil {
			break
		}
		if !shouldContinue() {
			p.log.Info("stop requested, not starting next candidate", map[string]interface{}{
				"accepted": len(accepted),
			})
			break
		}

		product, err := p.processOne(ctx)
		if onProgress != nil {
			onProgress(attempt+1, len(accepted)+boolToInt(product != nil))
		}
		if err != nil {
			p.log.Warn("candidate rejected", map[string]interface{}{
				"attempt": attempt + 1,
				"reason":  err.Error(),
			})
			continue
		}

		accepted = append(accepted, *product)
	}

	return accepted, nil
}

// processOne runs one candidate through the full state machine:
// generated -> dedup -> validate -> verify -> accepted|rejected.
func (p *Pipeline) processOne(ctx context.Context) (*models.Product, error) {
	candidate, err := p.generate(ctx)
	if err != nil {
		metrics.CandidatesRejected.WithLabelValues("generation").Inc()
		return nil, err
	}
	metrics.CandidatesGenerated.Inc()

	if p.index.IsDuplicate(*candidate) {
		metrics.CandidatesRejected.WithLabelValues("duplicate").Inc()
		return nil, agenterrors.NewDuplicateProduct(candidate.Name)
	}

	val := p.validator.Validate(ctx, candidate)

	report := p.verifier.Verify(ctx, candidate, val)
	if !p.acceptable(report) {
		metrics.CandidatesRejected.WithLabelValues("quality").Inc()
		return nil, agenterrors.NewQualityRejection(candidate.Name, report.Issues)
	}

	entry := buildEntry(candidate, val.Score, report.QualityScore, p.rng)
	if _, err := p.gateway.CreateEntry(ctx, entry); err != nil {
		metrics.CandidatesRejected.WithLabelValues("persistence").Inc()
		return nil, err
	}

	// Index update happens before the next candidate is generated, keeping
	// dedup consistent without locking across items.
	p.index.Register(entry.Product.Name, entry.Product.Category)
	p.rememberName(entry.Product.Name)
	metrics.CandidatesAccepted.Inc()

	p.log.Info("candidate accepted", map[string]interface{}{
		"name":            entry.Product.Name,
		"category":        entry.Product.Category,
		"trendScore":      entry.Product.TrendScore,
		"validationScore": val.Score,
		"qualityScore":    report.QualityScore,
	})

	return &entry.Product, nil
}

// acceptable applies the acceptance gate: a good enough score, or a fully
// repaired candidate with nothing outstanding.
func (p *Pipeline) acceptable(report models.QualityReport) bool {
	if report.QualityScore >= p.opts.MinQualityScore {
		return true
	}
	return report.Repaired && report.IsValid
}

func (p *Pipeline) generate(ctx context.Context) (*models.Candidate, error) {
	var c models.Candidate
	err := p.runner.Run(ctx, generationSystemPrompt, buildGenerationPrompt(p.recentNames), candidateSchema, &c, structured.RunOptions{
		Retries:     p.opts.Retries,
		Temperature: p.opts.Temperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (p *Pipeline) rememberName(name string) {
	p.recentNames = append(p.recentNames, name)
	if len(p.recentNames) > recentNamesWindow {
		p.recentNames = p.recentNames[len(p.recentNames)-recentNamesWindow:]
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
