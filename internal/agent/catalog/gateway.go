// internal/agent/catalog/gateway.go
// Package catalog persists accepted products and their derived sub-records.
package catalog

import (
	"context"

	"trenddrop-agent/internal/models"
)

// Gateway is the persistence surface the pipeline consumes. CreateEntry
// persists a product with all sub-records atomically; the granular Create*
// methods exist for callers that manage their own unit of work.
type Gateway interface {
	// FindExisting returns all catalog products, used for dedup rebuild.
	FindExisting(ctx context.Context) ([]models.Product, error)

	// CountProducts returns the current catalog size.
	CountProducts(ctx context.Context) (int, error)

	// CreateEntry persists the product and its trends/regions/videos in a
	// single transaction and returns the new product ID.
	CreateEntry(ctx context.Context, entry *models.CatalogEntry) (int64, error)

	CreateProduct(ctx context.Context, p *models.Product) (int64, error)
	CreateTrendPoints(ctx context.Context, productID int64, points []models.TrendPoint) error
	CreateRegions(ctx context.Context, productID int64, regions []models.Region) error
	CreateVideos(ctx context.Context, productID int64, videos []models.Video) error
}
