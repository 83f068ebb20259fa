package loader

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plexwatch/histview/internal/config"
	"github.com/plexwatch/histview/pkg/models"
)

// Postgres materializes the raw history table from a Postgres mirror of
// the Tautulli history. The database is a source collaborator only; all
// parsing and derivation still happens in the normalizer, so values are
// pulled out as text.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres creates a connection pool against the history mirror.
func NewPostgres(cfg config.DatabaseConfig) (*Postgres, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		cfg.MaxConns, cfg.MinConns,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool, table: cfg.Table}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Health checks if the database is reachable.
func (p *Postgres) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Load reads the whole history table into memory and returns the rows
// plus a content fingerprint over every field, in row order.
func (p *Postgres) Load(ctx context.Context) ([]models.RawRow, string, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(rating_key::text, ''),
		       COALESCE(username, ''),
		       COALESCE(media_type, ''),
		       COALESCE(title, ''),
		       COALESCE(parent_title, ''),
		       COALESCE(grandparent_title, ''),
		       COALESCE(started::text, ''),
		       COALESCE(stopped::text, '')
		FROM %s
		ORDER BY id
	`, p.table)

	dbRows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query history table: %w", err)
	}
	defer dbRows.Close()

	hash := sha256.New()
	var rows []models.RawRow
	for dbRows.Next() {
		fields := make([]string, len(models.RequiredColumns))
		dest := make([]interface{}, len(fields))
		for i := range fields {
			dest[i] = &fields[i]
		}
		if err := dbRows.Scan(dest...); err != nil {
			return nil, "", fmt.Errorf("failed to scan history row: %w", err)
		}

		row := make(models.RawRow, len(fields))
		for i, col := range models.RequiredColumns {
			row[col] = fields[i]
			hash.Write([]byte(fields[i]))
			hash.Write([]byte{0})
		}
		rows = append(rows, row)
	}
	if err := dbRows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to read history rows: %w", err)
	}

	return rows, Fingerprint(hash.Sum(nil)), nil
}
