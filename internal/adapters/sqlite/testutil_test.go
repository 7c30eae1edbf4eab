// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() so tests run against the
// same migrations the catalog applies at startup.
//
// DO NOT hardcode CREATE TABLE statements in test files. Use setupTestDB()
// and the seed* helpers instead.
package sqlite_test

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/db"
)

var testScope = asset.Scope{Network: "cascadia", Station: "NCC1", Campaign: "2024_A_1126"}

// setupTestDB creates an in-memory database with the authoritative schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedAsset inserts a local asset in testScope and returns its ID.
func seedAsset(t *testing.T, db *sql.DB, typ asset.Type, localPath string, parentID *int64) int64 {
	t.Helper()
	var parent sql.NullInt64
	if parentID != nil {
		parent = sql.NullInt64{Int64: *parentID, Valid: true}
	}
	res, err := db.Exec(
		`INSERT INTO assets (network, station, campaign, type, local_path, timestamp_created, parent_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		testScope.Network, testScope.Station, testScope.Campaign, string(typ), localPath, time.Now().UTC(), parent,
	)
	if err != nil {
		t.Fatalf("failed to seed asset: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to read seeded id: %v", err)
	}
	return id
}

// seedRemoteAsset inserts a remote-only asset and returns its ID.
func seedRemoteAsset(t *testing.T, db *sql.DB, typ asset.Type, remotePath string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO assets (network, station, campaign, type, remote_path, remote_type, timestamp_created)
		 VALUES (?, ?, ?, ?, ?, 's3', ?)`,
		testScope.Network, testScope.Station, testScope.Campaign, string(typ), remotePath, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("failed to seed remote asset: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}
