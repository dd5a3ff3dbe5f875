// internal/agent/quality/verifier_test.go
package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trenddrop-agent/internal/agent/structured"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

// stubRunner answers LLM repair tasks from a canned map keyed by schema.
type stubRunner struct {
	name        string
	description string
	err         error
	calls       int
}

func (s *stubRunner) Run(ctx context.Context, system, user, schemaJSON string, out interface{}, opts structured.RunOptions) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	switch o := out.(type) {
	case *struct {
		Name string `json:"name"`
	}:
		o.Name = s.name
	case *struct {
		Description string `json:"description"`
	}:
		o.Description = s.description
	}
	return nil
}

func newTestVerifier(t *testing.T, runner TaskRunner) *Verifier {
	if runner == nil {
		runner = &stubRunner{err: errors.New("no repairs in this test")}
	}
	return NewVerifier(runner, logger.NewTestLogger(t))
}

func goodCandidate() *models.Candidate {
	return &models.Candidate{
		Name:           "Magnetic Phone Mount",
		Category:       "Electronics",
		Subcategory:    "Smartphone Accessories",
		Description:    "A dashboard mount that holds any smartphone with strong neodymium magnets.",
		PriceRangeLow:  9.99,
		PriceRangeHigh: 24.99,
		SourcePlatform: "TikTok",
	}
}

func foundResult() models.ValidationResult {
	return models.ValidationResult{Score: 75, Found: true}
}

// ==========================
// Happy Path Tests
// ==========================

func TestVerifier_Verify_CleanCandidate(t *testing.T) {
	v := newTestVerifier(t, nil)
	c := goodCandidate()

	report := v.Verify(context.Background(), c, foundResult())

	assert.True(t, report.IsValid)
	assert.False(t, report.Repaired)
	assert.Empty(t, report.Issues)
	assert.GreaterOrEqual(t, report.QualityScore, 70)
}

func TestVerifier_Verify_OptionalFieldBonuses(t *testing.T) {
	v := newTestVerifier(t, nil)
	unfound := models.ValidationResult{Found: false}

	bare := goodCandidate()
	bareReport := v.Verify(context.Background(), bare, unfound)

	rich := goodCandidate()
	rich.EngagementRate = 80
	rich.SalesVelocity = 70
	rich.SearchVolume = 60
	rich.GeographicSpread = 50
	rich.AliexpressURL = "https://www.aliexpress.com/item/100500.html"
	rich.CJDropshippingURL = "https://cjdropshipping.com/product/100500.html"
	rich.ImageURL = "https://example.com/image.jpg"
	richReport := v.Verify(context.Background(), rich, unfound)

	assert.Equal(t, 85, bareReport.QualityScore, "one issue costs 15 points")
	assert.Greater(t, richReport.QualityScore, bareReport.QualityScore)
	assert.Equal(t, 100, richReport.QualityScore, "bonuses clamp at 100")
}

// ==========================
// Name Check Tests
// ==========================

func TestVerifier_Verify_NameTooShort(t *testing.T) {
	v := newTestVerifier(t, nil)
	c := goodCandidate()
	c.Name = "XY"

	report := v.Verify(context.Background(), c, foundResult())

	assert.False(t, report.IsValid)
	assert.Contains(t, report.Issues[0], "name length")
}

func TestVerifier_Verify_SuspiciousNameRepaired(t *testing.T) {
	runner := &stubRunner{name: "Galaxy Star Projector"}
	v := newTestVerifier(t, runner)
	c := goodCandidate()
	c.Name = "Galaxy Star Projector ✨🌟💫"

	report := v.Verify(context.Background(), c, foundResult())

	assert.True(t, report.Repaired)
	assert.Equal(t, "Galaxy Star Projector", c.Name)
	assert.True(t, report.IsValid)
	assert.Equal(t, 1, runner.calls)
}

func TestVerifier_Verify_SuspiciousNameRepairFails(t *testing.T) {
	runner := &stubRunner{err: errors.New("all providers down")}
	v := newTestVerifier(t, runner)
	c := goodCandidate()
	c.Name = "Galaxy Star Projector ✨🌟💫"

	report := v.Verify(context.Background(), c, foundResult())

	assert.False(t, report.IsValid)
	assert.Contains(t, report.Issues, "name contains suspicious character runs")
}

func TestVerifier_Verify_AllCapsName(t *testing.T) {
	v := newTestVerifier(t, nil)
	c := goodCandidate()
	c.Name = "MAGNETIC PHONE MOUNT"

	report := v.Verify(context.Background(), c, foundResult())

	assert.Contains(t, report.Issues, "name is all caps")
}

// ==========================
// Description Check Tests
// ==========================

func TestVerifier_Verify_ShortDescriptionRepaired(t *testing.T) {
	runner := &stubRunner{description: "A compact dashboard mount that grips any phone with strong magnets and rotates freely."}
	v := newTestVerifier(t, runner)
	c := goodCandidate()
	c.Description = "A mount."

	report := v.Verify(context.Background(), c, foundResult())

	assert.True(t, report.Repaired)
	assert.True(t, report.IsValid)
	assert.Equal(t, runner.description, c.Description)
}

func TestVerifier_Verify_TemplateMarkers(t *testing.T) {
	v := newTestVerifier(t, nil)
	c := goodCandidate()
	c.Description = "This {product_name} is perfect for [target audience] everywhere."

	report := v.Verify(context.Background(), c, foundResult())

	assert.Contains(t, report.Issues, "description contains template markers")
}

func TestVerifier_Verify_NameRestatement(t *testing.T) {
	v := newTestVerifier(t, nil)
	c := goodCandidate()
	c.Description = "Magnetic phone mount. The magnetic phone mount."

	report := v.Verify(context.Background(), c, foundResult())

	assert.Contains(t, report.Issues, "description merely restates the name")
}

// ==========================
// Price Repair Tests
// ==========================

func TestVerifier_Verify_PriceRepairs(t *testing.T) {
	tests := []struct {
		name         string
		low, high    float64
		expectedLow  float64
		expectedHigh float64
	}{
		{
			name: "negatives flipped",
			low:  -5, high: -15,
			expectedLow: 5, expectedHigh: 15,
		},
		{
			name: "zero low defaulted",
			low:  0, high: 30,
			expectedLow: 9.99, expectedHigh: 30,
		},
		{
			name: "zero high defaulted to double low",
			low:  12, high: 0,
			expectedLow: 12, expectedHigh: 24,
		},
		{
			name: "inverted range swapped",
			low:  40, high: 10,
			expectedLow: 10, expectedHigh: 40,
		},
		{
			name: "ratio clamped to 5x",
			low:  2, high: 50,
			expectedLow: 2, expectedHigh: 10,
		},
		{
			name: "sub-dime range floored consistently",
			low:  0.01, high: 0.05,
			expectedLow: 0.1, expectedHigh: 0.2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, nil)
			c := goodCandidate()
			c.PriceRangeLow = tt.low
			c.PriceRangeHigh = tt.high

			report := v.Verify(context.Background(), c, foundResult())

			assert.True(t, report.Repaired)
			assert.InDelta(t, tt.expectedLow, c.PriceRangeLow, 0.001)
			assert.InDelta(t, tt.expectedHigh, c.PriceRangeHigh, 0.001)
			assert.True(t, report.IsValid, "price repairs never leave outstanding issues")
		})
	}
}

func TestVerifier_Verify_PriceInvariantsAlwaysHold(t *testing.T) {
	inputs := []struct{ low, high float64 }{
		{-100, -1}, {0, 0}, {1000, 1}, {0.001, 0.002}, {3, 1000},
	}

	v := newTestVerifier(t, nil)
	for _, in := range inputs {
		c := goodCandidate()
		c.PriceRangeLow = in.low
		c.PriceRangeHigh = in.high

		v.Verify(context.Background(), c, foundResult())

		require.GreaterOrEqual(t, c.PriceRangeLow, minPrice)
		require.GreaterOrEqual(t, c.PriceRangeHigh, c.PriceRangeLow)
		require.LessOrEqual(t, c.PriceRangeHigh/c.PriceRangeLow, maxPriceRatio+0.001)
	}
}

// ==========================
// Category / Corroboration Tests
// ==========================

func TestVerifier_Verify_EmptyCategory(t *testing.T) {
	v := newTestVerifier(t, nil)
	c := goodCandidate()
	c.Category = "  "

	report := v.Verify(context.Background(), c, foundResult())

	assert.Contains(t, report.Issues, "category is empty")
	assert.False(t, report.IsValid)
}

func TestVerifier_Verify_NoCorroboration(t *testing.T) {
	v := newTestVerifier(t, nil)
	c := goodCandidate()

	report := v.Verify(context.Background(), c, models.ValidationResult{Found: false})

	assert.Contains(t, report.Issues, "no external corroboration found")
	assert.Equal(t, 85, report.QualityScore, "one issue costs 15 points")
}
