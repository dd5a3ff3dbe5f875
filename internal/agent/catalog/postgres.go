// internal/agent/catalog/postgres.go
package catalog

import (
	"context"
	"database/sql"

	agenterrors "trenddrop-agent/internal/common/errors"
	"trenddrop-agent/internal/common/logger"
	"trenddrop-agent/internal/models"
)

const (
	insertProductSQL = `INSERT INTO products
		(name, category, subcategory, price_range_low, price_range_high,
		 trend_score, engagement_rate, sales_velocity, search_volume, geographic_spread,
		 image_url, description, source_platform, aliexpress_url, cjdropshipping_url,
		 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
		RETURNING id`

	insertTrendSQL = `INSERT INTO trends
		(product_id, date, engagement_value, sales_value, search_value, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW(),NOW())`

	insertRegionSQL = `INSERT INTO regions
		(product_id, country, percentage, created_at, updated_at)
		VALUES ($1,$2,$3,NOW(),NOW())`

	insertVideoSQL = `INSERT INTO videos
		(product_id, title, platform, views, upload_date, thumbnail_url, video_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())`

	selectProductsSQL = `SELECT id, name, category, COALESCE(subcategory, ''),
		price_range_low, price_range_high, trend_score, engagement_rate,
		sales_velocity, search_volume, geographic_spread,
		COALESCE(image_url, ''), COALESCE(description, ''), COALESCE(source_platform, ''),
		COALESCE(aliexpress_url, ''), COALESCE(cjdropshipping_url, ''), created_at, updated_at
		FROM products ORDER BY id`

	countProductsSQL = `SELECT COUNT(*) FROM products`
)

// DB is the subset of database/sql the gateway needs; satisfied by *sql.DB.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// PostgresGateway implements Gateway over database/sql + lib/pq.
type PostgresGateway struct {
	db  DB
	log logger.Logger
}

func NewPostgresGateway(db DB, log logger.Logger) *PostgresGateway {
	return &PostgresGateway{
		db:  db,
		log: log.With(map[string]interface{}{"component": "catalog-gateway"}),
	}
}

func (g *PostgresGateway) FindExisting(ctx context.Context) ([]models.Product, error) {
	rows, err := g.db.QueryContext(ctx, selectProductsSQL)
	if err != nil {
		return nil, agenterrors.NewPersistenceError("findExisting", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Category, &p.Subcategory,
			&p.PriceRangeLow, &p.PriceRangeHigh, &p.TrendScore, &p.EngagementRate,
			&p.SalesVelocity, &p.SearchVolume, &p.GeographicSpread,
			&p.ImageURL, &p.Description, &p.SourcePlatform,
			&p.AliexpressURL, &p.CJDropshippingURL, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, agenterrors.NewPersistenceError("findExisting", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, agenterrors.NewPersistenceError("findExisting", err)
	}
	return out, nil
}

func (g *PostgresGateway) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := g.db.QueryRowContext(ctx, countProductsSQL).Scan(&n); err != nil {
		return 0, agenterrors.NewPersistenceError("countProducts", err)
	}
	return n, nil
}

func (g *PostgresGateway) CreateEntry(ctx context.Context, entry *models.CatalogEntry) (int64, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, agenterrors.NewPersistenceError("createEntry", err)
	}
	defer tx.Rollback()

	id, err := insertProduct(ctx, tx, &entry.Product)
	if err != nil {
		return 0, agenterrors.NewPersistenceError("createProduct", err)
	}

	for _, t := range entry.Trends {
		if _, err := tx.ExecContext(ctx, insertTrendSQL, id, t.Date, t.EngagementValue, t.SalesValue, t.SearchValue); err != nil {
			return 0, agenterrors.NewPersistenceError("createTrendPoints", err)
		}
	}
	for _, r := range entry.Regions {
		if _, err := tx.ExecContext(ctx, insertRegionSQL, id, r.Country, r.Percentage); err != nil {
			return 0, agenterrors.NewPersistenceError("createRegions", err)
		}
	}
	for _, v := range entry.Videos {
		if _, err := tx.ExecContext(ctx, insertVideoSQL, id, v.Title, v.Platform, v.Views, v.UploadDate, v.ThumbnailURL, v.VideoURL); err != nil {
			return 0, agenterrors.NewPersistenceError("createVideos", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, agenterrors.NewPersistenceError("createEntry", err)
	}

	entry.Product.ID = id
	g.log.Info("catalog entry created", map[string]interface{}{
		"productId": id,
		"name":      entry.Product.Name,
		"trends":    len(entry.Trends),
		"regions":   len(entry.Regions),
		"videos":    len(entry.Videos),
	})
	return id, nil
}

// execer covers both *sql.Tx and the pooled connection.
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertProduct(ctx context.Context, ex execer, p *models.Product) (int64, error) {
	var id int64
	err := ex.QueryRowContext(ctx, insertProductSQL,
		p.Name, p.Category, p.Subcategory, p.PriceRangeLow, p.PriceRangeHigh,
		p.TrendScore, p.EngagementRate, p.SalesVelocity, p.SearchVolume, p.GeographicSpread,
		p.ImageURL, p.Description, p.SourcePlatform, p.AliexpressURL, p.CJDropshippingURL,
	).Scan(&id)
	return id, err
}

func (g *PostgresGateway) CreateProduct(ctx context.Context, p *models.Product) (int64, error) {
	id, err := insertProduct(ctx, g.db, p)
	if err != nil {
		return 0, agenterrors.NewPersistenceError("createProduct", err)
	}
	p.ID = id
	return id, nil
}

func (g *PostgresGateway) CreateTrendPoints(ctx context.Context, productID int64, points []models.TrendPoint) error {
	for _, t := range points {
		if _, err := g.db.ExecContext(ctx, insertTrendSQL, productID, t.Date, t.EngagementValue, t.SalesValue, t.SearchValue); err != nil {
			return agenterrors.NewPersistenceError("createTrendPoints", err)
		}
	}
	return nil
}

func (g *PostgresGateway) CreateRegions(ctx context.Context, productID int64, regions []models.Region) error {
	for _, r := range regions {
		if _, err := g.db.ExecContext(ctx, insertRegionSQL, productID, r.Country, r.Percentage); err != nil {
			return agenterrors.NewPersistenceError("createRegions", err)
		}
	}
	return nil
}

func (g *PostgresGateway) CreateVideos(ctx context.Context, productID int64, videos []models.Video) error {
	for _, v := range videos {
		if _, err := g.db.ExecContext(ctx, insertVideoSQL, productID, v.Title, v.Platform, v.Views, v.UploadDate, v.ThumbnailURL, v.VideoURL); err != nil {
			return agenterrors.NewPersistenceError("createVideos", err)
		}
	}
	return nil
}
