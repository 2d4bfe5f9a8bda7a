package pgshipments

import (
	"context"
	"fmt"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) ListStageTemplates(ctx context.Context) ([]models.StageTemplate, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, day_offset, title, message
FROM stage_templates
ORDER BY day_offset ASC, id ASC
`)
	if err != nil {
		return nil, errors.Wrap(err, "select stage templates")
	}
	defer rows.Close()

	out := []models.StageTemplate{}
	for rows.Next() {
		var st models.StageTemplate
		if err := rows.Scan(&st.ID, &st.DayOffset, &st.Title, &st.Message); err != nil {
			return nil, errors.Wrap(err, "scan stage template")
		}
		out = append(out, st)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ReplaceStageTemplates заменяет весь набор этапов в одной транзакции.
// Любая ошибка откатывает транзакцию, и старый набор остаётся на месте.
func (s *Storage) ReplaceStageTemplates(ctx context.Context, stages []models.StageTemplate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM stage_templates`); err != nil {
		return errors.Wrap(err, "delete stage templates")
	}

	for i, st := range stages {
		if st.DayOffset < 0 || st.Title == "" || st.Message == "" {
			return models.NewValidationError(fmt.Sprintf("stageTemplates[%d]", i), "invalid stage template")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO stage_templates (day_offset, title, message) VALUES ($1,$2,$3)`,
			st.DayOffset, st.Title, st.Message,
		); err != nil {
			return errors.Wrap(err, "insert stage template")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
