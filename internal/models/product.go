// internal/models/product.go
package models

import "time"

// Product is a persisted catalog entry: an accepted candidate plus the
// trend metrics the agent computed for it.
type Product struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Category         string    `json:"category"`
	Subcategory      string    `json:"subcategory"`
	PriceRangeLow    float64   `json:"priceRangeLow"`
	PriceRangeHigh   float64   `json:"priceRangeHigh"`
	TrendScore       int       `json:"trendScore"`
	EngagementRate   int       `json:"engagementRate"`
	SalesVelocity    int       `json:"salesVelocity"`
	SearchVolume     int       `json:"searchVolume"`
	GeographicSpread int       `json:"geographicSpread"`
	ImageURL         string    `json:"imageUrl"`
	Description      string    `json:"description"`
	SourcePlatform   string    `json:"sourcePlatform"`
	AliexpressURL    string    `json:"aliexpressUrl"`
	CJDropshippingURL string   `json:"cjdropshippingUrl"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TrendPoint is one day of historical trend data for a product.
type TrendPoint struct {
	ID              int64     `json:"id"`
	ProductID       int64     `json:"productId"`
	Date            time.Time `json:"date"`
	EngagementValue int       `json:"engagementValue"`
	SalesValue      int       `json:"salesValue"`
	SearchValue     int       `json:"searchValue"`
}

// Region records what share of interest in a product comes from one country.
type Region struct {
	ID         int64  `json:"id"`
	ProductID  int64  `json:"productId"`
	Country    string `json:"country"`
	Percentage int    `json:"percentage"` // 0-100, all regions of a product sum to 100
}

// Video is a marketing clip associated with a product.
type Video struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"productId"`
	Title        string    `json:"title"`
	Platform     string    `json:"platform"`
	Views        int       `json:"views"`
	UploadDate   time.Time `json:"uploadDate"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	VideoURL     string    `json:"videoUrl"`
}

// CatalogEntry bundles a product with its sub-records so the gateway can
// persist the whole unit in one transaction.
type CatalogEntry struct {
	Product Product      `json:"product"`
	Trends  []TrendPoint `json:"trends"`
	Regions []Region     `json:"regions"`
	Videos  []Video      `json:"videos"`
}
