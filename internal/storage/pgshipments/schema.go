package pgshipments

import (
	"context"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS stage_templates (
  id BIGSERIAL PRIMARY KEY,
  day_offset INT NOT NULL CHECK (day_offset >= 0),
  title TEXT NOT NULL CHECK (title <> ''),
  message TEXT NOT NULL CHECK (message <> '')
)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  code TEXT NOT NULL UNIQUE CHECK (code ~ '^[0-9]{9}$'),
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  phone TEXT NOT NULL,
  street TEXT NOT NULL,
  number TEXT NOT NULL,
  neighborhood TEXT NOT NULL,
  postal_code TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT '` + models.ShipmentStatusInTransit + `',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_created_at ON shipments(created_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

// seedStageTemplates заполняет этапы по умолчанию, если таблица пуста.
// Advisory lock не даёт двум инстансам засеять таблицу одновременно.
func (s *Storage) seedStageTemplates(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('stage_templates_seed'))`); err != nil {
		return errors.Wrap(err, "seed lock")
	}

	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM stage_templates`).Scan(&n); err != nil {
		return errors.Wrap(err, "count stage templates")
	}
	if n > 0 {
		return nil
	}

	for _, st := range models.DefaultStageTemplates() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO stage_templates (day_offset, title, message) VALUES ($1,$2,$3)`,
			st.DayOffset, st.Title, st.Message,
		); err != nil {
			return errors.Wrap(err, "seed stage template")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
