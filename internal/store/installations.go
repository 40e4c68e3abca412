package store

import (
	"context"

	"github.com/google/uuid"
)

// UpsertInstallation records or refreshes a source-control app installation.
func (s *Store) UpsertInstallation(ctx context.Context, inst *SourceInstallation) error {
	query := `
		INSERT INTO source_installations (external_installation_id, account_login, account_id, account_type)
		VALUES (:external_installation_id, :account_login, :account_id, :account_type)
		ON CONFLICT (external_installation_id) DO UPDATE
			SET account_login = EXCLUDED.account_login,
			    account_id = EXCLUDED.account_id,
			    account_type = EXCLUDED.account_type
		RETURNING id, created_at`

	rows, err := s.DB.NamedQueryContext(ctx, query, inst)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&inst.ID, &inst.CreatedAt); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ListInstallations returns every recorded source-control app installation.
func (s *Store) ListInstallations(ctx context.Context) ([]SourceInstallation, error) {
	var installations []SourceInstallation
	err := s.DB.SelectContext(ctx, &installations, `SELECT * FROM source_installations ORDER BY created_at DESC`)
	return installations, err
}

// GetInstallationByExternalID looks up an installation by its GitHub App
// installation id.
func (s *Store) GetInstallationByExternalID(ctx context.Context, externalID string) (*SourceInstallation, error) {
	var inst SourceInstallation
	err := s.DB.GetContext(ctx, &inst,
		`SELECT * FROM source_installations WHERE external_installation_id = $1`, externalID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &inst, nil
}

// DeleteInstallation removes an installation record, used when GitHub
// reports the app was uninstalled.
func (s *Store) DeleteInstallation(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM source_installations WHERE id = $1`, id)
	return err
}

// DeleteInstallationByExternalID removes an installation by its GitHub App
// installation id and nulls out installation_id on every project that
// referenced it (spec §4.4 step 3, "installation"/"deleted").
func (s *Store) DeleteInstallationByExternalID(ctx context.Context, externalID string) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var instID uuid.UUID
	err = tx.GetContext(ctx, &instID,
		`SELECT id FROM source_installations WHERE external_installation_id = $1`, externalID)
	if err != nil {
		return wrapNotFound(err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET installation_id = NULL WHERE installation_id = $1`, instID,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM source_installations WHERE id = $1`, instID,
	); err != nil {
		return err
	}

	return tx.Commit()
}
