package dbexec

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

const versionQuery = "SELECT VERSION(), @@version_comment"

func versionRows(version, comment string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"VERSION()", "@@version_comment"}).
		AddRow(version, comment)
}

func TestExecutorQueryDispatchesToPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exec := NewExecutor(db, Options{})
	rows, err := exec.QueryContext(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatal("expected one row")
	}
	var got int
	if err := rows.Scan(&got); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExecutorQueryDispatchesToTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `movies` SET `title` = ?")).
		WithArgs("Tenet").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	defer tx.Rollback()

	exec := NewTxExecutor(tx, Options{})
	result, err := exec.ExecContext(context.Background(), "UPDATE `movies` SET `title` = ?", "Tenet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	affected, _ := result.RowsAffected()
	if affected != 1 {
		t.Errorf("expected 1 affected row, got %d", affected)
	}
}

func TestProvisionReusesExistingExecutor(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	existing := NewExecutor(db, Options{})
	source := NewSource(db, Options{})

	exec, owned, err := Provision(context.Background(), existing, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec != existing {
		t.Error("expected existing executor to be reused")
	}
	if owned {
		t.Error("reused executor must not be owned by the provisioner")
	}
}

func TestProvisionFailsWithoutSource(t *testing.T) {
	_, _, err := Provision(context.Background(), nil, nil)
	if !errors.Is(err, ErrNoExecutor) {
		t.Fatalf("expected ErrNoExecutor, got %v", err)
	}
}

func TestProvisionAcquiresOwnedSession(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	source := NewSource(db, Options{})
	exec, owned, err := Provision(context.Background(), nil, source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !owned {
		t.Error("source-acquired executor must be owned by the provisioner")
	}
	if err := exec.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	// Close is idempotent once the session is released.
	if err := exec.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestVersionCachePopulatesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(versionQuery)).
		WillReturnRows(versionRows("8.0.11-TiDB-v7.5.0", "TiDB Server (Apache License 2.0)"))

	cache := NewVersionCache()
	exec := NewExecutor(db, Options{})

	info, err := cache.Get(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Version != "8.0.11-TiDB-v7.5.0" {
		t.Errorf("unexpected version: %q", info.Version)
	}
	if info.Edition != "tidb" {
		t.Errorf("unexpected edition: %q", info.Edition)
	}

	// A second read must observe the cached value without re-querying;
	// sqlmock would fail the query since no further expectation exists.
	again, err := cache.Get(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error on cached read: %v", err)
	}
	if again != info {
		t.Errorf("expected cached value %+v, got %+v", info, again)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestVersionCacheExplicitOverride(t *testing.T) {
	cache := NewVersionCache()
	cache.Set(VersionInfo{Version: "5.7.25", Edition: "mysql"})

	// No executor needed: the override must short-circuit the query.
	info, err := cache.Get(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Version != "5.7.25" || info.Edition != "mysql" {
		t.Errorf("expected override to win, got %+v", info)
	}
}

func TestVersionCacheClearForcesRequery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(versionQuery)).
		WillReturnRows(versionRows("11.4.2-MariaDB", "MariaDB Server"))

	cache := NewVersionCache()
	cache.Set(VersionInfo{Version: "stale", Edition: "mysql"})
	cache.Clear()

	exec := NewExecutor(db, Options{})
	info, err := cache.Get(context.Background(), exec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Edition != "mariadb" {
		t.Errorf("expected mariadb edition, got %q", info.Edition)
	}
}

func TestVersionCacheQueryFailurePropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	queryErr := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta(versionQuery)).WillReturnError(queryErr)

	cache := NewVersionCache()
	exec := NewExecutor(db, Options{})

	if _, err := cache.Get(context.Background(), exec); !errors.Is(err, queryErr) {
		t.Fatalf("expected version query failure to propagate, got %v", err)
	}
}
