package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/klauspost/compress/zstd"

	"carmen/internal/core/id"
	"carmen/internal/domain/audit"
)

const auditTable = "sys_audit"

// CompressionAlgo names how the changes of an audit row are stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultAuditCompressThreshold is the payload size above which changes are
// stored zstd-compressed instead of as jsonb. Bulk postings cross it easily.
const DefaultAuditCompressThreshold = 4 * 1024

var auditColumns = []string{
	"id", "entity_type", "entity_id", "action", "user_id",
	"changes", "changes_compressed", "compression_algo", "created_at",
}

// AuditLog implements audit.Recorder on the sys_audit table.
type AuditLog struct {
	txm       *TxManager
	builder   squirrel.StatementBuilderType
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	threshold int
}

var _ audit.Recorder = (*AuditLog)(nil)

// NewAuditLog creates an audit log. threshold <= 0 uses DefaultAuditCompressThreshold.
func NewAuditLog(txm *TxManager, threshold int) (*AuditLog, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultAuditCompressThreshold
	}
	return &AuditLog{
		txm:       txm,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:   enc,
		decoder:   dec,
		threshold: threshold,
	}, nil
}

// Close releases the zstd decoder.
func (l *AuditLog) Close() {
	l.decoder.Close()
}

// Record inserts e inside the transaction carried by ctx, if any.
func (l *AuditLog) Record(ctx context.Context, e audit.Entry) error {
	sql, args, err := l.insertQuery(e)
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := l.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History returns the newest entries of one entity first, with changes decompressed.
func (l *AuditLog) History(ctx context.Context, entityType, entityID string, limit int) ([]audit.Entry, error) {
	sql, args, err := l.historyQuery(entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	rows, err := l.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			action     string
			changes    []byte
			compressed []byte
			algo       string
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &e.UserID,
			&changes, &compressed, &algo, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		if e.Changes, err = l.unpack(changes, compressed, CompressionAlgo(algo)); err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *AuditLog) insertQuery(e audit.Entry) (string, []any, error) {
	if id.IsNil(e.ID) {
		e.ID = id.New()
	}
	changes, compressed, algo := l.pack(e.Changes)
	return l.builder.Insert(auditTable).
		Columns(auditColumns...).
		Values(e.ID, e.EntityType, e.EntityID, string(e.Action), e.UserID,
			changes, compressed, string(algo), e.CreatedAt).
		ToSql()
}

func (l *AuditLog) historyQuery(entityType, entityID string, limit int) (string, []any, error) {
	q := l.builder.Select(auditColumns...).
		From(auditTable).
		Where(squirrel.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q.ToSql()
}

// pack keeps small payloads as jsonb and compresses the rest.
func (l *AuditLog) pack(raw json.RawMessage) ([]byte, []byte, CompressionAlgo) {
	if len(raw) <= l.threshold {
		return raw, nil, CompressionNone
	}
	return nil, l.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), CompressionZstd
}

func (l *AuditLog) unpack(changes, compressed []byte, algo CompressionAlgo) (json.RawMessage, error) {
	switch algo {
	case CompressionZstd:
		out, err := l.decoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress changes: %w", err)
		}
		return out, nil
	case CompressionNone, "":
		return changes, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", algo)
	}
}
