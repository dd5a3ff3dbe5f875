// internal/agent/validator/validator.go
// Package validator corroborates candidates against known wholesale sources.
// It produces a fail-open score: total absence of evidence yields a low but
// non-fatal score, and the quality verifier decides rejection.
package validator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"trenddrop-agent/internal/agent/structured"
	"trenddrop-agent/internal/common/config"
	agenterrors "trenddrop-agent/internal/common/errors"
	httpx "trenddrop-agent/internal/common/http"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/common/metrics"
	"trenddrop-agent/internal/models"
)

// Evidence weights. Direct means the candidate itself carried the URL;
// derived means we synthesized a search URL for it.
const (
	weightAliexpressDirect = 40
	weightCJDirect         = 35
	weightGenericDirect    = 35
	weightDerivedVerified  = 35
	weightDerivedUnchecked = 25
)

// searchURLSchema constrains the LLM's synthesized wholesaler search URLs.
const searchURLSchema = `{
  "type": "object",
  "properties": {
    "urls": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "source": {"type": "string"},
          "url": {"type": "string"}
        },
        "required": ["source", "url"]
      }
    }
  },
  "required": ["urls"]
}`

// TaskRunner is the slice of the structured executor the validator needs.
type TaskRunner interface {
	Run(ctx context.Context, systemPrompt, userPrompt, schemaJSON string, out interface{}, opts structured.RunOptions) error
}

// Validator checks candidate wholesaler URLs against an allow-list and the
// pages behind them, falling back to LLM URL synthesis when the candidate
// carries no usable links.
type Validator struct {
	cfg     config.ValidationConfig
	fetcher *httpx.Client
	runner  TaskRunner
	log     logger.Logger
}

func New(cfg config.ValidationConfig, runner TaskRunner, log logger.Logger) *Validator {
	return &Validator{
		cfg:     cfg,
		fetcher: httpx.NewClient(config.GetDuration(cfg.FetchTimeout)),
		runner:  runner,
		log:     log.With(map[string]interface{}{"component": "external-validator"}),
	}
}

// Validate corroborates one candidate. Network and parsing failures are
// recorded as unverified evidence, never returned as errors.
func (v *Validator) Validate(ctx context.Context, c *models.Candidate) models.ValidationResult {
	result := models.ValidationResult{}

	direct := map[string]string{}
	if c.AliexpressURL != "" {
		direct["aliexpress"] = c.AliexpressURL
	}
	if c.CJDropshippingURL != "" {
		direct["cjdropshipping"] = c.CJDropshippingURL
	}

	for source, rawURL := range direct {
		ev, weight := v.checkDirect(ctx, source, rawURL)
		result.Evidence = append(result.Evidence, ev)
		result.Score += weight
	}

	if result.Score < v.cfg.AcceptThreshold {
		evs, weight := v.searchByName(ctx, c)
		result.Evidence = append(result.Evidence, evs...)
		result.Score += weight
	}

	if result.Score > 100 {
		result.Score = 100
	}
	result.Found = false
	for _, ev := range result.Evidence {
		if ev.Verified {
			result.Found = true
			break
		}
	}

	metrics.ValidationScore.Observe(float64(result.Score))
	v.log.Info("validation completed", map[string]interface{}{
		"candidate": c.Name,
		"score":     result.Score,
		"evidence":  len(result.Evidence),
	})

	return result
}

// checkDirect verifies a candidate-supplied URL: domain must be on the
// allow-list and the page must pass its structural rule.
func (v *Validator) checkDirect(ctx context.Context, source, rawURL string) (models.ValidationEvidence, int) {
	ev := models.ValidationEvidence{
		Source:    source,
		URL:       rawURL,
		Method:    "direct",
		Timestamp: time.Now().UTC(),
	}

	domain, err := v.allowedDomain(rawURL)
	if err != nil {
		v.log.Warn("direct URL rejected", map[string]interface{}{
			"source": source,
			"url":    rawURL,
			"error":  err.Error(),
		})
		return ev, 0
	}

	if err := v.inspectPage(ctx, rawURL, domain); err != nil {
		v.log.Warn("page inspection failed, treating as not found", map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		})
		return ev, 0
	}

	ev.Verified = true
	return ev, directWeight(domain)
}

func directWeight(domain string) int {
	switch domain {
	case "aliexpress.com":
		return weightAliexpressDirect
	case "cjdropshipping.com":
		return weightCJDirect
	default:
		return weightGenericDirect
	}
}

// searchByName asks the LLM to synthesize wholesaler search URLs for the
// candidate. No real search API is assumed available, so this evidence is
// weak by construction: always method "derived", and verified only when the
// synthesized page actually fetches and inspects cleanly.
func (v *Validator) searchByName(ctx context.Context, c *models.Candidate) ([]models.ValidationEvidence, int) {
	system := "You construct wholesale marketplace search URLs. " +
		"Given a product, return search URLs on these marketplaces: " + strings.Join(v.cfg.AllowedDomains, ", ") + "."
	user := fmt.Sprintf("Product name: %s\nCategory: %s", c.Name, c.Category)

	var out struct {
		URLs []struct {
			Source string `json:"source"`
			URL    string `json:"url"`
		} `json:"urls"`
	}
	if err := v.runner.Run(ctx, system, user, searchURLSchema, &out, structured.RunOptions{}); err != nil {
		v.log.Warn("search URL synthesis failed", map[string]interface{}{
			"candidate": c.Name,
			"error":     err.Error(),
		})
		return nil, 0
	}

	for _, u := range out.URLs {
		ev := models.ValidationEvidence{
			Source:    u.Source,
			URL:       u.URL,
			Method:    "derived",
			Timestamp: time.Now().UTC(),
		}

		domain, err := v.allowedDomain(u.URL)
		if err != nil {
			continue
		}

		// First usable result wins; the rest are ignored.
		if err := v.inspectPage(ctx, u.URL, domain); err != nil {
			return []models.ValidationEvidence{ev}, weightDerivedUnchecked
		}
		ev.Verified = true
		return []models.ValidationEvidence{ev}, weightDerivedVerified
	}

	return nil, 0
}

// allowedDomain parses a URL and returns the allow-list entry its host
// belongs to, or an error.
func (v *Validator) allowedDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("unparseable URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	for _, d := range v.cfg.AllowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, nil
		}
	}
	return "", fmt.Errorf("host %q is not a known wholesaler", host)
}

// inspectPage fetches the URL and runs the domain's structural check.
func (v *Validator) inspectPage(ctx context.Context, rawURL, domain string) error {
	resp, err := v.fetcher.Get(ctx, rawURL)
	if err != nil {
		return agenterrors.NewExternalValidationError(domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return agenterrors.NewExternalValidationError(domain, fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return agenterrors.NewExternalValidationError(domain, err)
	}

	if !ruleFor(domain)(doc) {
		return agenterrors.NewExternalValidationError(domain, fmt.Errorf("page has no product markers"))
	}
	return nil
}
