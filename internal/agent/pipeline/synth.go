// internal/agent/pipeline/synth.go
package pipeline

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"trenddrop-agent/internal/models"
)

const trendHistoryDays = 30

var countryPool = []string{
	"United States", "United Kingdom", "Canada", "Australia", "Germany",
	"France", "Italy", "Spain", "Japan", "South Korea", "Brazil", "Mexico",
	"India", "Netherlands", "Sweden", "Norway",
}

var videoAdjectives = []string{"Amazing", "Unbelievable", "Must-Have", "Trending", "Viral", "Best"}
var videoVerbs = []string{"Unboxing", "Review", "Try-On", "Haul", "Test", "Demo"}

var videoURLPrefixes = map[string]string{
	"TikTok":    "https://www.tiktok.com/@trenddrop/video/",
	"Instagram": "https://www.instagram.com/p/",
	"YouTube":   "https://www.youtube.com/watch?v=",
	"Facebook":  "https://www.facebook.com/watch/?v=",
	"Pinterest": "https://www.pinterest.com/pin/",
}

// buildEntry turns an accepted candidate into the full catalog unit:
// product row plus synthetic trend history, regional interest and marketing
// clips, generated from the candidate's own headline metrics.
func buildEntry(c *models.Candidate, validationScore, qualityScore int, rng *rand.Rand) *models.CatalogEntry {
	product := models.Product{
		Name:              c.Name,
		Category:          c.Category,
		Subcategory:       c.Subcategory,
		PriceRangeLow:     c.PriceRangeLow,
		PriceRangeHigh:    c.PriceRangeHigh,
		TrendScore:        trendScore(validationScore, qualityScore),
		EngagementRate:    orRandomMetric(c.EngagementRate, rng),
		SalesVelocity:     orRandomMetric(c.SalesVelocity, rng),
		SearchVolume:      orRandomMetric(c.SearchVolume, rng),
		GeographicSpread:  orRandomMetric(c.GeographicSpread, rng),
		ImageURL:          c.ImageURL,
		Description:       c.Description,
		SourcePlatform:    c.SourcePlatform,
		AliexpressURL:     c.AliexpressURL,
		CJDropshippingURL: c.CJDropshippingURL,
	}
	if product.ImageURL == "" {
		product.ImageURL = fmt.Sprintf("https://picsum.photos/id/%d/500/500", rng.Intn(1000)+1)
	}

	return &models.CatalogEntry{
		Product: product,
		Trends:  synthTrends(&product, rng),
		Regions: synthRegions(rng),
		Videos:  synthVideos(&product, rng),
	}
}

// trendScore blends validation and quality into the catalog's headline
// metric, biased high the way browsing surfaces expect.
func trendScore(validationScore, qualityScore int) int {
	score := (validationScore + qualityScore + 1) / 2
	if score < 40 {
		score = 40
	}
	if score > 100 {
		score = 100
	}
	return score
}

func orRandomMetric(v int, rng *rand.Rand) int {
	if v > 0 && v <= 100 {
		return v
	}
	return rng.Intn(100) + 1
}

// synthTrends generates daily points ramping toward the product's headline
// metrics with random fluctuation.
func synthTrends(p *models.Product, rng *rand.Rand) []models.TrendPoint {
	points := make([]models.TrendPoint, 0, trendHistoryDays)
	now := time.Now().UTC()

	for daysAgo := trendHistoryDays; daysAgo > 0; daysAgo-- {
		dayFactor := float64(trendHistoryDays-daysAgo) / float64(trendHistoryDays)
		points = append(points, models.TrendPoint{
			Date:            now.AddDate(0, 0, -daysAgo),
			EngagementValue: ramp(p.EngagementRate, dayFactor, rng),
			SalesValue:      ramp(p.SalesVelocity, dayFactor, rng),
			SearchValue:     ramp(p.SearchVolume, dayFactor, rng),
		})
	}
	return points
}

// ramp interpolates from 70% of the target up to the target, with ±20% jitter.
func ramp(target int, dayFactor float64, rng *rand.Rand) int {
	base := float64(target) * 0.7
	jitter := 0.8 + rng.Float64()*0.4
	v := int(base + (float64(target)-base)*dayFactor*jitter)
	if v < 1 {
		v = 1
	}
	return v
}

// synthRegions picks 3-5 countries with interest percentages summing to 100.
// The primary market gets 30-60%.
func synthRegions(rng *rand.Rand) []models.Region {
	n := 3 + rng.Intn(3) // 3-5
	picked := rng.Perm(len(countryPool))[:n]

	regions := make([]models.Region, 0, n)
	remaining := 100

	for i, idx := range picked {
		var pct int
		switch {
		case i == n-1:
			pct = remaining
		case i == 0:
			pct = 30 + rng.Intn(31) // 30-60
		default:
			// Leave at least 5% for each remaining country.
			maxPct := remaining - (n-i-1)*5
			if maxPct < 5 {
				maxPct = 5
			}
			pct = 5 + rng.Intn(maxPct-4)
		}
		if pct > remaining {
			pct = remaining
		}
		remaining -= pct
		regions = append(regions, models.Region{Country: countryPool[idx], Percentage: pct})
	}
	return regions
}

// synthVideos creates 2-3 marketing clips. The first clip is the hero: the
// highest view count and the most recent upload.
func synthVideos(p *models.Product, rng *rand.Rand) []models.Video {
	n := 2 + rng.Intn(2) // 2-3
	videos := make([]models.Video, 0, n)
	now := time.Now().UTC()

	for i := 0; i < n; i++ {
		platform := platformPool[rng.Intn(len(platformPool))]

		views := 1000 + rng.Intn(99000)
		daysAgo := 14 + rng.Intn(46)
		if i == 0 {
			views = 10000 + rng.Intn(990000)
			daysAgo = 1 + rng.Intn(14)
		}

		videoID := strings.ReplaceAll(uuid.NewString(), "-", "")[:11]
		videos = append(videos, models.Video{
			Title:        fmt.Sprintf("%s %s %s", videoAdjectives[rng.Intn(len(videoAdjectives))], p.Name, videoVerbs[rng.Intn(len(videoVerbs))]),
			Platform:     platform,
			Views:        views,
			UploadDate:   now.AddDate(0, 0, -daysAgo),
			ThumbnailURL: fmt.Sprintf("https://picsum.photos/id/%d/320/180", rng.Intn(1000)+1),
			VideoURL:     videoURLPrefixes[platform] + videoID,
		})
	}
	return videos
}
