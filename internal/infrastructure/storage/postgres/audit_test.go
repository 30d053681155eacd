package postgres

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmen/internal/core/id"
	"carmen/internal/domain/audit"
)

func newTestAuditLog(t *testing.T, threshold int) *AuditLog {
	t.Helper()
	l, err := NewAuditLog(nil, threshold)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestAuditPackKeepsSmallChangesAsJSON(t *testing.T) {
	l := newTestAuditLog(t, 0)
	raw := json.RawMessage(`{"costing_method":{"old":"FIFO","new":"PERIODIC_AVERAGE"}}`)

	changes, compressed, algo := l.pack(raw)
	assert.Equal(t, CompressionNone, algo)
	assert.Nil(t, compressed)
	assert.JSONEq(t, string(raw), string(changes))

	back, err := l.unpack(changes, compressed, algo)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(back))
}

func TestAuditPackCompressesLargeChanges(t *testing.T) {
	l := newTestAuditLog(t, 64)
	lines := make([]map[string]string, 200)
	for i := range lines {
		lines[i] = map[string]string{"item_id": "SKU-100", "quantity": "10", "unit_cost": "2"}
	}
	raw, err := json.Marshal(map[string]any{"movements": lines})
	require.NoError(t, err)

	changes, compressed, algo := l.pack(raw)
	assert.Equal(t, CompressionZstd, algo)
	assert.Nil(t, changes)
	assert.Less(t, len(compressed), len(raw))

	back, err := l.unpack(changes, compressed, algo)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(back))
}

func TestAuditUnpackRejectsUnknownAlgo(t *testing.T) {
	l := newTestAuditLog(t, 0)
	_, err := l.unpack(nil, []byte{1, 2}, "lz4")
	assert.Error(t, err)

	_, err = l.unpack(nil, []byte("not zstd"), CompressionZstd)
	assert.Error(t, err)
}

func TestAuditInsertQuery(t *testing.T) {
	l := newTestAuditLog(t, 0)
	at := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	e := audit.Entry{
		ID:         id.New(),
		EntityType: audit.EntityInventorySettings,
		EntityID:   "HOTEL-A",
		Action:     audit.ActionUpdate,
		UserID:     "controller",
		Changes:    json.RawMessage(`{}`),
		CreatedAt:  at,
	}

	sql, args, err := l.insertQuery(e)
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO sys_audit ("+strings.Join(auditColumns, ",")+") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)",
		sql)
	require.Len(t, args, 9)
	assert.Equal(t, e.ID, args[0])
	assert.Equal(t, "HOTEL-A", args[2])
	assert.Equal(t, "update", args[3])
	assert.Equal(t, "none", args[7])
	assert.Equal(t, at, args[8])
}

func TestAuditHistoryQuery(t *testing.T) {
	l := newTestAuditLog(t, 0)

	sql, args, err := l.historyQuery(audit.EntityCostPosting, "rec-1", 20)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT "+strings.Join(auditColumns, ", ")+" FROM sys_audit WHERE entity_id = $1 AND entity_type = $2 ORDER BY created_at DESC, id DESC LIMIT 20",
		sql)
	assert.Equal(t, []any{"rec-1", audit.EntityCostPosting}, args)

	sql, _, err = l.historyQuery(audit.EntityCostPosting, "rec-1", 0)
	require.NoError(t, err)
	assert.NotContains(t, sql, "LIMIT")
}
