package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	domain "github.com/christophervi/secainw-backend/internal/domain/events"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, event_id, timestamp, event_type, source_ip, destination_ip,
       destination_port, process_name, verdict, severity_score, confidence_score,
       explanation, supporting_evidence, cve_data, raw_data, ai_model,
       created_at, updated_at`

// Save inserts the event on first save (assigning the autoincrement id and
// timestamps) or updates the analysis fields of an existing row.
func (r *EventRepository) Save(ctx context.Context, e *domain.AnomalyEvent) (*domain.AnomalyEvent, error) {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	if e.ID == 0 {
		const q = `
INSERT INTO anomaly_events
(event_id, timestamp, event_type, source_ip, destination_ip, destination_port,
 process_name, verdict, severity_score, confidence_score,
 explanation, supporting_evidence, cve_data, raw_data, ai_model,
 created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);
`
		res, err := r.db.ExecContext(ctx, q,
			e.EventID, e.Timestamp, e.EventType, e.SourceIP, nullString(e.DestinationIP), e.DestinationPort,
			nullString(e.ProcessName), string(e.Verdict), e.SeverityScore, e.ConfidenceScore,
			e.Explanation, e.SupportingEvidence, e.CveData, e.RawData, nullString(e.AIModel),
			e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		e.ID = id
		return e, nil
	}

	const q = `
UPDATE anomaly_events SET
 verdict=?, severity_score=?, confidence_score=?,
 explanation=?, supporting_evidence=?, cve_data=?, ai_model=?, updated_at=?
WHERE id=?;
`
	if _, err := r.db.ExecContext(ctx, q,
		string(e.Verdict), e.SeverityScore, e.ConfidenceScore,
		e.Explanation, e.SupportingEvidence, e.CveData, nullString(e.AIModel), e.UpdatedAt,
		e.ID,
	); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EventRepository) FindByID(ctx context.Context, id int64) (*domain.AnomalyEvent, error) {
	q := fmt.Sprintf(`SELECT %s FROM anomaly_events WHERE id=? LIMIT 1;`, eventColumns)
	return scanEvent(r.db.QueryRowContext(ctx, q, id))
}

func (r *EventRepository) Latest(ctx context.Context, limit int) ([]*domain.AnomalyEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`SELECT %s FROM anomaly_events ORDER BY created_at DESC LIMIT ?;`, eventColumns)
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *EventRepository) FindByVerdict(ctx context.Context, v domain.Verdict) ([]*domain.AnomalyEvent, error) {
	q := fmt.Sprintf(`SELECT %s FROM anomaly_events WHERE verdict=? ORDER BY created_at DESC;`, eventColumns)
	rows, err := r.db.QueryContext(ctx, q, string(v))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.AnomalyEvent, error) {
	var e domain.AnomalyEvent
	var verdict string
	var destIP, process, aiModel sql.NullString
	var destPort sql.NullInt64
	if err := row.Scan(
		&e.ID, &e.EventID, &e.Timestamp, &e.EventType, &e.SourceIP, &destIP,
		&destPort, &process, &verdict, &e.SeverityScore, &e.ConfidenceScore,
		&e.Explanation, &e.SupportingEvidence, &e.CveData, &e.RawData, &aiModel,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.Verdict = domain.Verdict(verdict)
	e.DestinationIP = destIP.String
	e.ProcessName = process.String
	e.AIModel = aiModel.String
	if destPort.Valid {
		p := int(destPort.Int64)
		e.DestinationPort = &p
	}
	return &e, nil
}

func collectEvents(rows *sql.Rows) ([]*domain.AnomalyEvent, error) {
	var out []*domain.AnomalyEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
