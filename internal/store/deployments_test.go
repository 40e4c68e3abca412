package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestGetActiveDeploymentWrapsErrNoRows(t *testing.T) {
	s, mock := newMockStore(t)
	projectID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM deployments WHERE project_id = \$1 AND status = 'active'`).
		WithArgs(projectID).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetActiveDeployment(context.Background(), projectID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
