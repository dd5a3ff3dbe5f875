// internal/agent/quality/verifier.go
// Package quality runs structural checks on candidates, repairing
// recoverable defects and scoring the result.
package quality

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"trenddrop-agent/internal/agent/structured"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/models"
)

const (
	minNameLen        = 3
	maxNameLen        = 100
	minDescriptionLen = 20
	maxPriceRatio     = 5.0
	minPrice          = 0.1

	issuePenalty = 15
)

var suspiciousRun = regexp.MustCompile(`[^a-zA-Z0-9\s.,!?'&()+/-]{2,}`)

const nameRepairSchema = `{
  "type": "object",
  "properties": {"name": {"type": "string", "minLength": 3, "maxLength": 100}},
  "required": ["name"]
}`

const descriptionRepairSchema = `{
  "type": "object",
  "properties": {"description": {"type": "string", "minLength": 20}},
  "required": ["description"]
}`

// TaskRunner is the slice of the structured executor used for LLM repairs.
type TaskRunner interface {
	Run(ctx context.Context, systemPrompt, userPrompt, schemaJSON string, out interface{}, opts structured.RunOptions) error
}

// Verifier checks candidates structurally and repairs what it can. Repairs
// mutate the candidate in place; outstanding issues stay in the report.
type Verifier struct {
	runner TaskRunner
	log    logger.Logger
}

func NewVerifier(runner TaskRunner, log logger.Logger) *Verifier {
	return &Verifier{
		runner: runner,
		log:    log.With(map[string]interface{}{"component": "quality-verifier"}),
	}
}

// Verify runs the check sequence against a candidate, using the external
// validation result the pipeline already obtained. Issues left in the report
// are the unrepaired ones; Repaired is true when any repair was applied.
func (v *Verifier) Verify(ctx context.Context, c *models.Candidate, val models.ValidationResult) models.QualityReport {
	report := models.QualityReport{}

	v.checkName(ctx, c, &report)
	v.checkDescription(ctx, c, &report)
	v.repairPriceRange(c, &report)
	v.checkCategory(c, &report)
	v.checkCorroboration(val, &report)

	report.IsValid = len(report.Issues) == 0
	report.QualityScore = v.score(c, &report)

	v.log.Info("quality verification completed", map[string]interface{}{
		"candidate": c.Name,
		"score":     report.QualityScore,
		"issues":    len(report.Issues),
		"repaired":  report.Repaired,
	})

	return report
}

func (v *Verifier) checkName(ctx context.Context, c *models.Candidate, report *models.QualityReport) {
	name := strings.TrimSpace(c.Name)
	c.Name = name

	if len(name) < minNameLen || len(name) > maxNameLen {
		report.Issues = append(report.Issues, fmt.Sprintf("name length %d outside [%d,%d]", len(name), minNameLen, maxNameLen))
		return
	}

	if suspiciousRun.MatchString(name) {
		if v.repairName(ctx, c) {
			report.Repaired = true
		} else {
			report.Issues = append(report.Issues, "name contains suspicious character runs")
		}
	}

	if len(name) > 10 && name == strings.ToUpper(name) && strings.ToUpper(name) != strings.ToLower(name) {
		report.Issues = append(report.Issues, "name is all caps")
	}
}

func (v *Verifier) repairName(ctx context.Context, c *models.Candidate) bool {
	system := "You clean up product names. Remove garbage characters and emoji, keep the product identity, use normal title casing."
	user := "Product name: " + c.Name

	var out struct {
		Name string `json:"name"`
	}
	if err := v.runner.Run(ctx, system, user, nameRepairSchema, &out, structured.RunOptions{}); err != nil {
		v.log.Warn("name repair failed", map[string]interface{}{"error": err.Error()})
		return false
	}

	cleaned := strings.TrimSpace(out.Name)
	if len(cleaned) < minNameLen || suspiciousRun.MatchString(cleaned) {
		return false
	}
	c.Name = cleaned
	return true
}

func (v *Verifier) checkDescription(ctx context.Context, c *models.Candidate, report *models.QualityReport) {
	desc := strings.TrimSpace(c.Description)
	c.Description = desc

	if len(desc) < minDescriptionLen {
		if v.repairDescription(ctx, c) {
			report.Repaired = true
		} else {
			report.Issues = append(report.Issues, "description missing or too short")
		}
		return
	}

	if strings.ContainsAny(desc, "[]{}") {
		report.Issues = append(report.Issues, "description contains template markers")
	}

	if isNameRestatement(c.Name, desc) {
		report.Issues = append(report.Issues, "description merely restates the name")
	}
}

func (v *Verifier) repairDescription(ctx context.Context, c *models.Candidate) bool {
	system := "You write concise dropshipping product descriptions: two or three factual sentences, no hype words, no placeholders."
	user := fmt.Sprintf("Product: %s\nCategory: %s / %s\nCurrent description: %s",
		c.Name, c.Category, c.Subcategory, c.Description)

	var out struct {
		Description string `json:"description"`
	}
	if err := v.runner.Run(ctx, system, user, descriptionRepairSchema, &out, structured.RunOptions{}); err != nil {
		v.log.Warn("description repair failed", map[string]interface{}{"error": err.Error()})
		return false
	}

	enhanced := strings.TrimSpace(out.Description)
	if len(enhanced) < minDescriptionLen || strings.ContainsAny(enhanced, "[]{}") {
		return false
	}
	c.Description = enhanced
	return true
}

// isNameRestatement reports whether the description is a near-restatement of
// the name: almost all of its content words come from the name.
func isNameRestatement(name, desc string) bool {
	nameWords := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(name)) {
		nameWords[strings.Trim(w, ".,!?")] = true
	}

	words := strings.Fields(strings.ToLower(desc))
	if len(words) == 0 {
		return true
	}
	if len(words) > 2*len(nameWords)+4 {
		return false
	}

	fromName := 0
	for _, w := range words {
		if nameWords[strings.Trim(w, ".,!?")] {
			fromName++
		}
	}
	return float64(fromName)/float64(len(words)) > 0.6
}

// repairPriceRange applies the five price repairs unconditionally. This
// check never leaves an outstanding issue; every defect found is corrected
// and logged.
func (v *Verifier) repairPriceRange(c *models.Candidate, report *models.QualityReport) {
	repaired := func(issue string) {
		report.Repaired = true
		v.log.Info("price range repaired", map[string]interface{}{
			"candidate": c.Name,
			"issue":     issue,
		})
	}

	if c.PriceRangeLow < 0 {
		c.PriceRangeLow = math.Abs(c.PriceRangeLow)
		repaired("negative low price")
	}
	if c.PriceRangeHigh < 0 {
		c.PriceRangeHigh = math.Abs(c.PriceRangeHigh)
		repaired("negative high price")
	}

	if c.PriceRangeLow == 0 {
		c.PriceRangeLow = 9.99
		repaired("missing low price defaulted")
	}
	if c.PriceRangeHigh == 0 {
		c.PriceRangeHigh = 2 * c.PriceRangeLow
		repaired("missing high price defaulted")
	}

	if c.PriceRangeLow > c.PriceRangeHigh {
		c.PriceRangeLow, c.PriceRangeHigh = c.PriceRangeHigh, c.PriceRangeLow
		repaired("inverted price range swapped")
	}

	if c.PriceRangeLow < minPrice {
		c.PriceRangeLow = minPrice
		repaired("low price floored")
		// Flooring can push low past a sub-dime high.
		if c.PriceRangeHigh < c.PriceRangeLow {
			c.PriceRangeHigh = 2 * c.PriceRangeLow
		}
	}

	if c.PriceRangeHigh/c.PriceRangeLow > maxPriceRatio {
		c.PriceRangeHigh = c.PriceRangeLow * maxPriceRatio
		repaired("price ratio clamped")
	}
}

func (v *Verifier) checkCategory(c *models.Candidate, report *models.QualityReport) {
	if strings.TrimSpace(c.Category) == "" {
		report.Issues = append(report.Issues, "category is empty")
	}
}

func (v *Verifier) checkCorroboration(val models.ValidationResult, report *models.QualityReport) {
	if !val.Found {
		report.Issues = append(report.Issues, "no external corroboration found")
	}
}

// score starts at 100, subtracts per outstanding issue and rewards present
// optional fields.
func (v *Verifier) score(c *models.Candidate, report *models.QualityReport) int {
	score := 100 - issuePenalty*len(report.Issues)

	for _, metric := range []int{c.EngagementRate, c.SalesVelocity, c.SearchVolume, c.GeographicSpread} {
		if metric > 0 {
			score += 3
		}
	}
	if c.AliexpressURL != "" && c.CJDropshippingURL != "" {
		score += 10
	}
	if c.ImageURL != "" {
		score += 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
