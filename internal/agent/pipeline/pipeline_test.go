// internal/agent/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trenddrop-agent/internal/agent/dedup"
	"trenddrop-agent/internal/agent/structured"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

// scriptedGenerator emits a fixed sequence of candidates.
type scriptedGenerator struct {
	candidates []models.Candidate
	calls      int
}

func (g *scriptedGenerator) Run(ctx context.Context, system, user, schemaJSON string, out interface{}, opts structured.RunOptions) error {
	i := g.calls
	g.calls++
	if i >= len(g.candidates) {
		return errors.New("generator script exhausted")
	}
	*(out.(*models.Candidate)) = g.candidates[i]
	return nil
}

type stubValidator struct {
	result models.ValidationResult
}

func (v *stubValidator) Validate(ctx context.Context, c *models.Candidate) models.ValidationResult {
	return v.result
}

// scoringVerifier returns a per-name report, defaulting to a clean pass.
type scoringVerifier struct {
	reports map[string]models.QualityReport
}

func (v *scoringVerifier) Verify(ctx context.Context, c *models.Candidate, val models.ValidationResult) models.QualityReport {
	if r, ok := v.reports[c.Name]; ok {
		return r
	}
	return models.QualityReport{IsValid: true, QualityScore: 90}
}

// memoryGateway persists entries into a slice.
type memoryGateway struct {
	entries   []*models.CatalogEntry
	nextID    int64
	createErr error
}

func (g *memoryGateway) FindExisting(ctx context.Context) ([]models.Product, error) { return nil, nil }
func (g *memoryGateway) CountProducts(ctx context.Context) (int, error)             { return len(g.entries), nil }

func (g *memoryGateway) CreateEntry(ctx context.Context, entry *models.CatalogEntry) (int64, error) {
	if g.createErr != nil {
		return 0, g.createErr
	}
	g.nextID++
	entry.Product.ID = g.nextID
	g.entries = append(g.entries, entry)
	return g.nextID, nil
}

func (g *memoryGateway) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	g.nextID++
	p.ID = g.nextID
	return g.nextID, nil
}

func (g *memoryGateway) CreateTrendPoints(ctx context.Context, productID int64, points []models.TrendPoint) error {
	return nil
}
func (g *memoryGateway) CreateRegions(ctx context.Context, productID int64, regions []models.Region) error {
	return nil
}
func (g *memoryGateway) CreateVideos(ctx context.Context, productID int64, videos []models.Video) error {
	return nil
}

func testCandidate(name string) models.Candidate {
	return models.Candidate{
		Name:           name,
		Category:       "Electronics",
		Description:    "A genuinely useful gadget that earns its place on any desk.",
		PriceRangeLow:  9.99,
		PriceRangeHigh: 24.99,
		SourcePlatform: "TikTok",
	}
}

type pipelineFixture struct {
	pipeline  *Pipeline
	generator *scriptedGenerator
	gateway   *memoryGateway
	index     *dedup.Index
}

func newFixture(t *testing.T, generator *scriptedGenerator, verifier QualityVerifier) *pipelineFixture {
	log := logger.NewTestLogger(t)
	index := dedup.NewIndex(log)
	gateway := &memoryGateway{}
	if verifier == nil {
		verifier = &scoringVerifier{}
	}

	p := New(generator, index, &stubValidator{result: models.ValidationResult{Score: 75, Found: true}},
		verifier, gateway, Options{MinQualityScore: 70}, log)

	return &pipelineFixture{pipeline: p, generator: generator, gateway: gateway, index: index}
}

// ==========================
// Batch Behavior Tests
// ==========================

func TestPipeline_DiscoverBatch_AcceptsDistinctCandidates(t *testing.T) {
	gen := &scriptedGenerator{candidates: []models.Candidate{
		testCandidate("Magnetic Phone Mount"),
		testCandidate("Collapsible Water Bottle"),
		testCandidate("Galaxy Star Projector"),
	}}
	f := newFixture(t, gen, nil)

	products, err := f.pipeline.DiscoverBatch(context.Background(), 3, nil, nil)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Len(t, f.gateway.entries, 3)
	assert.NotZero(t, products[0].ID, "accepted products are persisted")
}

func TestPipeline_DiscoverBatch_SkipsDuplicateAndBackfills(t *testing.T) {
	gen := &scriptedGenerator{candidates: []models.Candidate{
		testCandidate("Magnetic Phone Mount"),
		testCandidate("Magnetic Phone Mount"), // duplicate of the first
		testCandidate("Collapsible Water Bottle"),
		testCandidate("Galaxy Star Projector"),
	}}
	f := newFixture(t, gen, nil)

	products, err := f.pipeline.DiscoverBatch(context.Background(), 3, nil, nil)
	require.NoError(t, err)
	assert.Len(t, products, 3, "the duplicate is replaced by a later candidate")
	assert.Equal(t, 4, gen.calls)
}

func TestPipeline_DiscoverBatch_AttemptBudgetIsTwiceCount(t *testing.T) {
	rejectAll := &scoringVerifier{reports: map[string]models.QualityReport{}}
	var candidates []models.Candidate
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("Hopeless Gadget Number %d", i)
		candidates = append(candidates, testCandidate(name))
		rejectAll.reports[name] = models.QualityReport{
			IsValid: false, QualityScore: 10, Issues: []string{"no external corroboration found"},
		}
	}
	gen := &scriptedGenerator{candidates: candidates}
	f := newFixture(t, gen, rejectAll)

	products, err := f.pipeline.DiscoverBatch(context.Background(), 2, nil, nil)
	require.NoError(t, err, "a batch with zero acceptances is not an error")
	assert.Empty(t, products)
	assert.Equal(t, 4, gen.calls, "attempt budget is 2x the requested count")
}

func TestPipeline_DiscoverBatch_StopsWhenToldTo(t *testing.T) {
	gen := &scriptedGenerator{candidates: []models.Candidate{
		testCandidate("Magnetic Phone Mount"),
		testCandidate("Collapsible Water Bottle"),
	}}
	f := newFixture(t, gen, nil)

	calls := 0
	shouldContinue := func() bool {
		calls++
		return calls <= 1 // allow exactly one item
	}

	products, err := f.pipeline.DiscoverBatch(context.Background(), 5, shouldContinue, nil)
	require.NoError(t, err)
	assert.Len(t, products, 1, "in-flight item completes, no new item starts")
}

func TestPipeline_DiscoverBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGenerator{candidates: []models.Candidate{testCandidate("Magnetic Phone Mount")}}
	f := newFixture(t, gen, nil)

	products, err := f.pipeline.DiscoverBatch(ctx, 3, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, 0, gen.calls)
}

func TestPipeline_DiscoverBatch_ReportsProgress(t *testing.T) {
	gen := &scriptedGenerator{candidates: []models.Candidate{
		testCandidate("Magnetic Phone Mount"),
		testCandidate("Collapsible Water Bottle"),
	}}
	f := newFixture(t, gen, nil)

	var processed, accepted []int
	_, err := f.pipeline.DiscoverBatch(context.Background(), 2, nil, func(p, a int) {
		processed = append(processed, p)
		accepted = append(accepted, a)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, processed)
	assert.Equal(t, []int{1, 2}, accepted)
}

// ==========================
// Acceptance Gate Tests
// ==========================

func TestPipeline_AcceptanceGate(t *testing.T) {
	tests := []struct {
		name     string
		report   models.QualityReport
		accepted bool
	}{
		{
			name:     "high score passes",
			report:   models.QualityReport{IsValid: true, QualityScore: 85},
			accepted: true,
		},
		{
			name:     "low score unrepaired rejected",
			report:   models.QualityReport{IsValid: true, QualityScore: 55},
			accepted: false,
		},
		{
			name:     "repaired with nothing outstanding passes despite low score",
			report:   models.QualityReport{IsValid: true, Repaired: true, QualityScore: 55},
			accepted: true,
		},
		{
			name: "repaired but issues remain rejected",
			report: models.QualityReport{
				IsValid: false, Repaired: true, QualityScore: 55,
				Issues: []string{"category is empty"},
			},
			accepted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &scriptedGenerator{candidates: []models.Candidate{testCandidate("Gate Test Gadget")}}
			verifier := &scoringVerifier{reports: map[string]models.QualityReport{"Gate Test Gadget": tt.report}}
			f := newFixture(t, gen, verifier)

			products, err := f.pipeline.DiscoverBatch(context.Background(), 1, nil, nil)
			require.NoError(t, err)

			if tt.accepted {
				assert.Len(t, products, 1)
				assert.Len(t, f.gateway.entries, 1)
			} else {
				assert.Empty(t, products)
				assert.Empty(t, f.gateway.entries, "rejected candidates never reach the catalog")
			}
		})
	}
}

func TestPipeline_DiscoverBatch_PersistenceFailureSkipsItem(t *testing.T) {
	gen := &scriptedGenerator{candidates: []models.Candidate{testCandidate("Magnetic Phone Mount")}}
	f := newFixture(t, gen, nil)
	f.gateway.createErr = errors.New("connection lost")

	products, err := f.pipeline.DiscoverBatch(context.Background(), 1, nil, nil)
	require.NoError(t, err, "per-item persistence failures do not abort the batch")
	assert.Empty(t, products)
}

func TestPipeline_DiscoverBatch_AcceptedNameRegisteredInIndex(t *testing.T) {
	gen := &scriptedGenerator{candidates: []models.Candidate{testCandidate("Magnetic Phone Mount")}}
	f := newFixture(t, gen, nil)

	_, err := f.pipeline.DiscoverBatch(context.Background(), 1, nil, nil)
	require.NoError(t, err)

	assert.True(t, f.index.IsDuplicate(testCandidate("Magnetic Phone Mount")))
}

// ==========================
// Entry Synthesis Tests
// ==========================

func TestBuildEntry_SynthesizesFullCatalogUnit(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{}, nil)
	c := testCandidate("Magnetic Phone Mount")
	c.EngagementRate = 80
	c.SalesVelocity = 70
	c.SearchVolume = 60
	c.GeographicSpread = 50

	entry := buildEntry(&c, 75, 90, f.pipeline.rng)

	assert.Equal(t, "Magnetic Phone Mount", entry.Product.Name)
	assert.NotEmpty(t, entry.Product.ImageURL, "missing image gets a placeholder")
	assert.Len(t, entry.Trends, trendHistoryDays)

	assert.GreaterOrEqual(t, len(entry.Regions), 3)
	assert.LessOrEqual(t, len(entry.Regions), 5)
	total := 0
	for _, r := range entry.Regions {
		total += r.Percentage
	}
	assert.Equal(t, 100, total, "regional interest always sums to 100")

	assert.GreaterOrEqual(t, len(entry.Videos), 2)
	assert.LessOrEqual(t, len(entry.Videos), 3)
	for _, v := range entry.Videos {
		assert.NotEmpty(t, v.VideoURL)
		assert.Contains(t, v.Title, "Magnetic Phone Mount")
	}
}

func TestTrendScore_Bounds(t *testing.T) {
	assert.Equal(t, 40, trendScore(0, 0), "floor at 40")
	assert.Equal(t, 100, trendScore(100, 100), "cap at 100")
	assert.Equal(t, 83, trendScore(75, 90))
}

// ==========================
// Prompt Tests
// ==========================

func TestBuildGenerationPrompt_ListsTaxonomyWithSubcategories(t *testing.T) {
	prompt := buildGenerationPrompt(nil)

	assert.Contains(t, prompt, "- Electronics: Smartphone Accessories, Smart Home, Wearables, Audio, Gadgets")
	assert.Contains(t, prompt, "- Jewelry: Necklaces, Earrings, Bracelets, Rings, Sets")
	assert.NotContains(t, prompt, "Do NOT propose")
}

func TestBuildGenerationPrompt_IncludesAvoidList(t *testing.T) {
	prompt := buildGenerationPrompt([]string{"LED Galaxy Projector", "Magnetic Phone Mount"})

	assert.Contains(t, prompt, "Do NOT propose")
	assert.Contains(t, prompt, "LED Galaxy Projector; Magnetic Phone Mount")
}
