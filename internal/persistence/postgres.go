// Package persistence implements the engine's two storage collaborators:
// a Postgres-backed store for wallets/items/wants and discovered loops,
// and a file-based snapshot codec used when no database is configured.
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// PostgresStore persists tenant graph state and discovered loops. It is an
// optional collaborator: a tenant operates fine in memory without one.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection to connStr and pings it.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("connected to PostgreSQL for trade loop persistence")
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql.
func (s *PostgresStore) InitSchema() error {
	schemaBytes, err := os.ReadFile("internal/persistence/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(context.Background(), string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("trade loop engine schema initialized")
	return nil
}

// SaveWallet upserts a wallet's ownership and want sets for tenantID.
func (s *PostgresStore) SaveWallet(ctx context.Context, tenantID string, w *models.Wallet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsertWallet = `
		INSERT INTO tenant_wallets (tenant_id, wallet_id, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, wallet_id) DO UPDATE
		SET last_updated = EXCLUDED.last_updated;
	`
	if _, err := tx.Exec(ctx, upsertWallet, tenantID, string(w.ID), w.LastUpdated); err != nil {
		return fmt.Errorf("failed to upsert tenant_wallets: %w", err)
	}

	const clearOwned = `DELETE FROM wallet_owned_items WHERE tenant_id = $1 AND wallet_id = $2;`
	if _, err := tx.Exec(ctx, clearOwned, tenantID, string(w.ID)); err != nil {
		return fmt.Errorf("failed to clear wallet_owned_items: %w", err)
	}
	const insertOwned = `INSERT INTO wallet_owned_items (tenant_id, wallet_id, item_id) VALUES ($1, $2, $3);`
	for item := range w.Owned {
		if _, err := tx.Exec(ctx, insertOwned, tenantID, string(w.ID), string(item)); err != nil {
			return fmt.Errorf("failed to insert wallet_owned_items: %w", err)
		}
	}

	const clearWanted = `DELETE FROM wallet_wanted_items WHERE tenant_id = $1 AND wallet_id = $2;`
	if _, err := tx.Exec(ctx, clearWanted, tenantID, string(w.ID)); err != nil {
		return fmt.Errorf("failed to clear wallet_wanted_items: %w", err)
	}
	const insertWanted = `INSERT INTO wallet_wanted_items (tenant_id, wallet_id, item_id) VALUES ($1, $2, $3);`
	for item := range w.Wanted {
		if _, err := tx.Exec(ctx, insertWanted, tenantID, string(w.ID), string(item)); err != nil {
			return fmt.Errorf("failed to insert wallet_wanted_items: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// SaveTradeLoop upserts a discovered loop and its steps.
func (s *PostgresStore) SaveTradeLoop(ctx context.Context, tenantID string, loop *models.TradeLoop) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertLoop = `
		INSERT INTO trade_loops
		(tenant_id, canonical_id, participants, quality_score, status, discovered_at, expires_at, audit_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, canonical_id) DO UPDATE
		SET quality_score = EXCLUDED.quality_score,
		    status = EXCLUDED.status,
		    expires_at = EXCLUDED.expires_at;
	`
	_, err = tx.Exec(ctx, insertLoop,
		tenantID, loop.CanonicalID, loop.Participants, loop.QualityScore,
		loop.Status.String(), loop.DiscoveredAt, loop.ExpiresAt, loop.AuditHash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trade_loops: %w", err)
	}

	const clearSteps = `DELETE FROM trade_loop_steps WHERE tenant_id = $1 AND canonical_id = $2;`
	if _, err := tx.Exec(ctx, clearSteps, tenantID, loop.CanonicalID); err != nil {
		return fmt.Errorf("failed to clear trade_loop_steps: %w", err)
	}

	const insertStep = `
		INSERT INTO trade_loop_steps (tenant_id, canonical_id, step_index, from_wallet, to_wallet, item_id)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	for i, step := range loop.Steps {
		for _, item := range step.Items {
			if _, err := tx.Exec(ctx, insertStep, tenantID, loop.CanonicalID, i, string(step.From), string(step.To), string(item)); err != nil {
				return fmt.Errorf("failed to insert trade_loop_steps: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// LoadActiveLoops returns the canonical ids of every non-terminal loop
// recorded for tenantID.
func (s *PostgresStore) LoadActiveLoops(ctx context.Context, tenantID string) ([]string, error) {
	const q = `SELECT canonical_id FROM trade_loops WHERE tenant_id = $1 AND status NOT IN ('completed', 'cancelled', 'expired');`
	rows, err := s.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPool exposes the underlying pool for callers that need raw access
// (health checks, ad hoc reporting queries).
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
