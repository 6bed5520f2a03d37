// Package pgstore is a Postgres devices.Store on pgx.
//
// Expected schema:
//
//	CREATE TABLE device (
//	    id            uuid PRIMARY KEY,
//	    principal_id  text NOT NULL,
//	    identifier    text NOT NULL,
//	    name          text NOT NULL DEFAULT '',
//	    trusted_since timestamptz NOT NULL,
//	    UNIQUE (principal_id, identifier)
//	);
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/goFactor/devices"
)

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

const findQuery = `
SELECT id, principal_id, identifier, name, trusted_since
FROM device
WHERE principal_id = $1 AND identifier = $2;
`

// The first trust time is kept when a device is saved again.
const upsertQuery = `
INSERT INTO device (id, principal_id, identifier, name, trusted_since)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (principal_id, identifier)
DO UPDATE SET name = EXCLUDED.name;
`

func (s *Store) Find(ctx context.Context, principalID, identifier string) (*devices.Device, error) {
	if principalID == "" || identifier == "" {
		return nil, devices.ErrNotFound
	}
	var d devices.Device
	err := s.db.QueryRow(ctx, findQuery, principalID, identifier).
		Scan(&d.ID, &d.PrincipalID, &d.Identifier, &d.Name, &d.TrustedSince)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, devices.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", devices.ErrBackend, err)
	}
	return &d, nil
}

func (s *Store) Save(ctx context.Context, d *devices.Device) error {
	if d == nil || d.PrincipalID == "" || d.Identifier == "" {
		return devices.ErrInvalid
	}
	tag, err := s.db.Exec(ctx, upsertQuery, d.ID, d.PrincipalID, d.Identifier, d.Name, d.TrustedSince)
	if err != nil {
		return fmt.Errorf("%w: %v", devices.ErrBackend, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: upsert affected %d rows", devices.ErrBackend, tag.RowsAffected())
	}
	return nil
}
