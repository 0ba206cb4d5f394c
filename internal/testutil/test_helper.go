package testutil

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/johndosdos/chatrooms/sql/schema"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "../../")
	return root
}

// DbInit connects to TEST_DB_URL, resets the schema and migrates it up. The
// test is skipped when TEST_DB_URL is unset. Cleanup resets the schema and
// closes the pool.
func DbInit(t testing.TB) *pgxpool.Pool {
	t.Helper()

	if err := godotenv.Load(filepath.Join(ProjectRoot(), ".env")); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	Migrate(t, dbPool, true)

	t.Cleanup(func() {
		Migrate(t, dbPool, false)
		dbPool.Close()
	})

	return dbPool
}

// Migrate resets the schema and, when up is true, applies every migration.
func Migrate(t testing.TB, db *pgxpool.Pool, up bool) {
	t.Helper()

	goose.SetBaseFS(schema.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("goose.SetDialect() error = %+v", err)
	}

	dbForGoose := stdlib.OpenDBFromPool(db)
	defer dbForGoose.Close()

	if err := goose.Reset(dbForGoose, "."); err != nil {
		t.Fatalf("goose.Reset() error = %+v", err)
	}

	if !up {
		return
	}

	if err := goose.Up(dbForGoose, "."); err != nil {
		t.Fatalf("goose.Up() error = %+v", err)
	}
}
