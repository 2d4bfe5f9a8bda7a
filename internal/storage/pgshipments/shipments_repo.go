package pgshipments

import (
	"context"

	"github.com/BearBump/ShipTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  id, code, name, email, phone,
  street, number, neighborhood, postal_code,
  status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (*models.Shipment, error) {
	var sh models.Shipment
	err := row.Scan(
		&sh.ID, &sh.Code, &sh.Name, &sh.Email, &sh.Phone,
		&sh.Street, &sh.Number, &sh.Neighborhood, &sh.PostalCode,
		&sh.Status, &sh.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// UpsertShipment вставляет отправление или обновляет контакты и адрес по коду.
// code, status и created_at существующей строки не меняются.
func (s *Storage) UpsertShipment(ctx context.Context, in models.ShipmentInput) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  code, name, email, phone, street, number, neighborhood, postal_code
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (code) DO UPDATE SET
  name = excluded.name,
  email = excluded.email,
  phone = excluded.phone,
  street = excluded.street,
  number = excluded.number,
  neighborhood = excluded.neighborhood,
  postal_code = excluded.postal_code
RETURNING`+shipmentColumns,
		in.Code, in.Name, in.Email, in.Phone, in.Street, in.Number, in.Neighborhood, in.PostalCode,
	)
	sh, err := scanShipment(row)
	if err != nil {
		return nil, errors.Wrap(err, "upsert shipment")
	}
	return sh, nil
}

func (s *Storage) GetShipmentByCode(ctx context.Context, code string) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE code = $1`, code)
	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "shipment %s", code)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

func (s *Storage) ListRecentShipments(ctx context.Context, limit int) ([]*models.Shipment, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	rows, err := s.db.Query(ctx, `SELECT`+shipmentColumns+`
FROM shipments
ORDER BY created_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.Shipment, 0, limit)
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ShipmentCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shipments WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "check shipment code")
	}
	return exists, nil
}

// UpdateShipmentStatus делает условный апдейт: строка с тем же статусом не трогается.
// changed == true только у того вызова, который реально перевёл статус.
func (s *Storage) UpdateShipmentStatus(ctx context.Context, id uint64, status string) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE shipments SET status = $2 WHERE id = $1 AND status <> $2`, id, status)
	if err != nil {
		return false, errors.Wrap(err, "update shipment status")
	}
	return tag.RowsAffected() == 1, nil
}
