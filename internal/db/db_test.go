package db

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gaitsync/internal/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetClock(timeutil.NewMockClock(time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)))
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, version)
	assert.False(t, dirty)

	for _, table := range []string{"sessions", "devices", "samples", "channel_summaries"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion-1, version)
	assert.True(t, hasColumn(t, db, "samples", "device_id"))
	assert.False(t, hasColumn(t, db, "samples", "device_index"))

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='channel_summaries'`).Scan(&n))
	assert.Zero(t, n)

	// Up again is a no-op once latest.
	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateUp())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion, version)
}

func hasColumn(t *testing.T, db *DB, table, column string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n))
	return n == 1
}

func TestMigrationKeysDevicesByIndex(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "v2.db"))
	require.NoError(t, err)
	defer db.Close()

	m, err := db.newMigrate()
	require.NoError(t, err)
	require.NoError(t, m.Migrate(2))

	_, err = db.Exec(`INSERT INTO sessions (session_id, imported_unix, master_device_id, base_frequency, common_end)
		VALUES ('s1', 1, 100, 256, 50)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO devices (session_id, device_id, offset_ticks, is_master, config_json)
		VALUES ('s1', 200, 0, 0, '{}'), ('s1', 100, -10, 1, '{}')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO samples (session_id, device_id, channel, t, v1) VALUES
		('s1', 100, 'button', 1, NULL), ('s1', 200, 'button', 2, NULL), ('s1', 200, 'button', 3, NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO channel_summaries (session_id, device_id, channel, sample_count, start_t, end_t, mean, stddev)
		VALUES ('s1', 200, 'button', 2, 2, 3, 0, 0)`)
	require.NoError(t, err)

	require.NoError(t, db.MigrateUp())

	index := map[uint32]int{}
	rows, err := db.Query(`SELECT device_id, device_index FROM devices WHERE session_id = 's1'`)
	require.NoError(t, err)
	for rows.Next() {
		var (
			id  uint32
			idx int
		)
		require.NoError(t, rows.Scan(&id, &idx))
		index[id] = idx
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, map[uint32]int{100: 0, 200: 1}, index)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM samples WHERE device_index = 1`).Scan(&n))
	assert.Equal(t, 2, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM channel_summaries WHERE device_index = 1`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenDBLeavesSchemaAlone(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	for _, path := range []string{"/debug/backup", "/debug/tailsql/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		// Might be 403 depending on debug access rules, but must be registered.
		assert.NotEqual(t, http.StatusNotFound, w.Code, path)
	}
}

func TestBackupIsGzippedDatabase(t *testing.T) {
	db := newTestDB(t)

	w := httptest.NewRecorder()
	db.serveBackup(w, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "gaitsync-backup-")

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Greater(t, len(data), 16)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
