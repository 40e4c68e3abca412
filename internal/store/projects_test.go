package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestNextAvailablePortAboveHighestExisting(t *testing.T) {
	s, mock := newMockStore(t)

	// a project still holds 8003 even though 8002 was freed by a deleted
	// project; the next port must be 8004, not the 8002 gap.
	mock.ExpectQuery(`SELECT MAX\(port\) FROM projects WHERE port >= \$1`).
		WithArgs(8001).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(8003))

	port, err := s.NextAvailablePort(context.Background(), 8001, 9000)
	if err != nil {
		t.Fatalf("next available port: %v", err)
	}
	if port != 8004 {
		t.Fatalf("expected port 8004, got %d", port)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNextAvailablePortFallsBackToMinWhenEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT MAX\(port\) FROM projects WHERE port >= \$1`).
		WithArgs(8001).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	port, err := s.NextAvailablePort(context.Background(), 8001, 9000)
	if err != nil {
		t.Fatalf("next available port: %v", err)
	}
	if port != 8001 {
		t.Fatalf("expected port 8001, got %d", port)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNextAvailablePortErrorsWhenRangeExhausted(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT MAX\(port\) FROM projects WHERE port >= \$1`).
		WithArgs(8001).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(9000))

	if _, err := s.NextAvailablePort(context.Background(), 8001, 9000); err == nil {
		t.Fatal("expected an error when the range is exhausted")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetProjectWrapsErrNoRows(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM projects WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetProject(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetProjectByDomainWrapsErrNoRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM projects WHERE domain = \$1`).
		WithArgs("widgets").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetProjectByDomain(context.Background(), "widgets")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
