package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/infrastructure/db/postgres/migrations"
)

func TestMigrate_UsesEmbeddedMigrations(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	called := false
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		called = true
		if dir != "." {
			t.Fatalf("unexpected dir %q", dir)
		}
		return nil
	}
	if err := Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !called {
		t.Fatal("goose was not invoked")
	}
}

func TestMigrate_PropagatesFailure(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("dirty version")
	}
	if err := Migrate(context.Background(), nil); err == nil {
		t.Fatal("expected migration failure")
	}
}

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(migrations.Migrations, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no embedded migrations")
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, domain.ErrNotFound},
		{"unique", &pgconn.PgError{Code: pgUniqueViolation}, domain.ErrAlreadyExists},
		{"foreign key", &pgconn.PgError{Code: pgForeignKeyViolation}, domain.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), domain.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapError("op", tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}

	other := errors.New("connection refused")
	if got := mapError("op", other); !errors.Is(got, other) {
		t.Fatalf("unknown errors must be wrapped, got %v", got)
	}
}
