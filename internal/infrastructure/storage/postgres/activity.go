package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"backoffice/internal/core/entity"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/notify"
)

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the payload size above which payloads are compressed.
const DefaultCompressThreshold = 4 * 1024

// activityRow is one sys_activity row.
type activityRow struct {
	ID                id.ID           `db:"id"`
	Actor             entity.Actor    `db:"actor"`
	Action            string          `db:"action"`
	SubjectType       string          `db:"subject_type"`
	SubjectID         id.ID           `db:"subject_id"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	OccurredAt        time.Time       `db:"occurred_at"`
}

var activityColumns = ExtractDBColumns[activityRow]()

// ActivityLog implements notify.ActivityLog on sys_activity.
type ActivityLog struct {
	db                QuerierProvider
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ notify.ActivityLog = (*ActivityLog)(nil)

// NewActivityLog creates the activity log. A non-positive threshold selects the default.
func NewActivityLog(db QuerierProvider, compressThreshold int) (*ActivityLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	if compressThreshold <= 0 {
		compressThreshold = DefaultCompressThreshold
	}

	return &ActivityLog{
		db:                db,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: compressThreshold,
	}, nil
}

// Record writes ev. Payloads above the threshold are stored zstd-compressed.
func (l *ActivityLog) Record(ctx context.Context, ev notify.ActivityEvent) error {
	row := activityRow{
		ID:              id.New(),
		Actor:           ev.Actor,
		Action:          ev.Action,
		SubjectType:     ev.SubjectType,
		SubjectID:       ev.SubjectID,
		CompressionAlgo: CompressionNone,
		OccurredAt:      ev.OccurredAt,
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}

	if len(ev.Payload) > 0 {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal activity payload: %w", err)
		}
		if len(payload) > l.compressThreshold {
			row.PayloadCompressed = l.encoder.EncodeAll(payload, nil)
			row.CompressionAlgo = CompressionZstd
		} else {
			row.Payload = payload
		}
	}

	sql, args, err := Builder().Insert("sys_activity").SetMap(StructToMap(&row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := l.db.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// History returns the newest events of a subject first.
func (l *ActivityLog) History(ctx context.Context, subjectType string, subjectID id.ID, limit int) ([]notify.ActivityEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	sql, args, err := Builder().Select(activityColumns...).From("sys_activity").
		Where(squirrel.Eq{"subject_type": subjectType, "subject_id": subjectID}).
		OrderBy("occurred_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []activityRow
	if err := pgxscan.Select(ctx, l.db.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	events := make([]notify.ActivityEvent, 0, len(rows))
	for _, row := range rows {
		raw := row.Payload
		if row.CompressionAlgo == CompressionZstd && len(row.PayloadCompressed) > 0 {
			raw, err = l.decoder.DecodeAll(row.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress payload of %s: %w", row.ID, err)
			}
		}

		ev := notify.ActivityEvent{
			Actor:       row.Actor,
			Action:      row.Action,
			SubjectType: row.SubjectType,
			SubjectID:   row.SubjectID,
			OccurredAt:  row.OccurredAt,
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode payload of %s: %w", row.ID, err)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}
