// internal/agent/pipeline/prompts.go
package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Category pool used to steer candidate generation. Matches the catalog's
// taxonomy so generated candidates land in browsable categories.
var categoryPool = map[string][]string{
	"Electronics":        {"Smartphone Accessories", "Smart Home", "Wearables", "Audio", "Gadgets"},
	"Home & Kitchen":     {"Kitchen Gadgets", "Home Decor", "Organization", "Bedding", "Bath"},
	"Fashion":            {"Accessories", "Clothing", "Footwear", "Bags", "Watches"},
	"Beauty":             {"Skincare", "Makeup", "Hair Care", "Fragrance", "Tools"},
	"Toys & Games":       {"Educational", "Puzzles", "Action Figures", "Board Games", "Outdoor"},
	"Sports & Outdoors":  {"Fitness", "Camping", "Water Sports", "Team Sports", "Cycling"},
	"Health & Wellness":  {"Supplements", "Personal Care", "Fitness Trackers", "Massage", "Aromatherapy"},
	"Pet Supplies":       {"Dog Accessories", "Cat Toys", "Pet Grooming", "Food & Treats", "Beds & Furniture"},
	"Baby":               {"Feeding", "Diapering", "Toys", "Clothing", "Travel Gear"},
	"Jewelry":            {"Necklaces", "Earrings", "Bracelets", "Rings", "Sets"},
}

var platformPool = []string{"TikTok", "Instagram", "YouTube", "Facebook", "Pinterest"}

// candidateSchema constrains the generation output to the Candidate shape.
const candidateSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "minLength": 3, "maxLength": 100},
    "category": {"type": "string"},
    "subcategory": {"type": "string"},
    "description": {"type": "string", "minLength": 20},
    "priceRangeLow": {"type": "number", "minimum": 0},
    "priceRangeHigh": {"type": "number", "minimum": 0},
    "sourcePlatform": {"type": "string"},
    "engagementRate": {"type": "integer", "minimum": 0, "maximum": 100},
    "salesVelocity": {"type": "integer", "minimum": 0, "maximum": 100},
    "searchVolume": {"type": "integer", "minimum": 0, "maximum": 100},
    "geographicSpread": {"type": "integer", "minimum": 0, "maximum": 100},
    "imageUrl": {"type": "string"},
    "aliexpressUrl": {"type": "string"},
    "cjdropshippingUrl": {"type": "string"}
  },
  "required": ["name", "category", "description", "priceRangeLow", "priceRangeHigh", "sourcePlatform"]
}`

const generationSystemPrompt = "You are a dropshipping product researcher. You propose one currently " +
	"trending physical product that sells well on social commerce platforms. " +
	"Real products only, no brands you cannot verify, realistic wholesale price ranges."

// buildGenerationPrompt assembles the user prompt, steering the model away
// from names already in the catalog.
func buildGenerationPrompt(avoid []string) string {
	var parts []string

	parts = append(parts, "Propose exactly one trending product.")

	var cats []string
	for c := range categoryPool {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	parts = append(parts, "Pick a category and a matching subcategory from this taxonomy:")
	for _, c := range cats {
		parts = append(parts, fmt.Sprintf("- %s: %s", c, strings.Join(categoryPool[c], ", ")))
	}
	parts = append(parts, "Pick the source platform from: "+strings.Join(platformPool, ", ")+".")
	parts = append(parts, "priceRangeLow and priceRangeHigh are wholesale USD prices; high must be at most 5x low.")
	parts = append(parts, "If you know real AliExpress or CJDropshipping listing URLs for the product, include them.")

	if len(avoid) > 0 {
		parts = append(parts, fmt.Sprintf("Do NOT propose any of these products or close variants: %s.",
			strings.Join(avoid, "; ")))
	}

	return strings.Join(parts, "\n")
}
