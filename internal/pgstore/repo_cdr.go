package pgstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudonix/voicerouter/internal/models"
)

// CDRRepo persists finalized call records and the append-only event audit
// trail, per spec.md §4.7 (CdrCallback) and §3 (CallEvent).
type CDRRepo struct {
	db *DB
}

// NewCDRRepo constructs a CDRRepo.
func NewCDRRepo(db *DB) *CDRRepo { return &CDRRepo{db: db} }

// UpsertRecord writes the finalized CDR keyed by (tenant, carrier_call_id).
func (r *CDRRepo) UpsertRecord(ctx context.Context, rec *models.CallRecord) error {
	raw, err := json.Marshal(rec.RawPayload)
	if err != nil {
		return fmt.Errorf("marshal cdr raw payload: %w", err)
	}
	_, err = r.db.sql.ExecContext(ctx, `
		INSERT INTO call_records (id, tenant_id, session_token, carrier_call_id, from_number, to_number, direction,
			disposition, start_time, answer_time, end_time, billed_seconds, raw_payload, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now(), now())
		ON CONFLICT (tenant_id, carrier_call_id) DO UPDATE SET
			session_token = EXCLUDED.session_token, from_number = EXCLUDED.from_number, to_number = EXCLUDED.to_number,
			direction = EXCLUDED.direction, disposition = EXCLUDED.disposition, start_time = EXCLUDED.start_time,
			answer_time = EXCLUDED.answer_time, end_time = EXCLUDED.end_time, billed_seconds = EXCLUDED.billed_seconds,
			raw_payload = EXCLUDED.raw_payload, updated_at = now()`,
		rec.ID, rec.TenantID, rec.SessionToken, rec.CarrierCallID, rec.From, rec.To, rec.Direction,
		rec.Disposition, rec.StartTime, rec.AnswerTime, rec.EndTime, rec.BilledSecs, raw)
	if err != nil {
		return fmt.Errorf("upsert call record: %w", err)
	}
	return nil
}

// AppendEvent inserts an immutable audit row for a webhook delivery.
func (r *CDRRepo) AppendEvent(ctx context.Context, e *models.CallEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	headers, err := json.Marshal(e.Headers)
	if err != nil {
		return fmt.Errorf("marshal event headers: %w", err)
	}
	_, err = r.db.sql.ExecContext(ctx, `
		INSERT INTO call_events (id, tenant_id, session_token, kind, payload, headers, occurred_at, outcome)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.TenantID, e.SessionToken, e.Kind, payload, headers, e.OccurredAt, e.Outcome)
	if err != nil {
		return fmt.Errorf("append call event: %w", err)
	}
	return nil
}

// EventsForSession returns the audit trail for one session, oldest first.
func (r *CDRRepo) EventsForSession(ctx context.Context, tenantID, sessionToken string) ([]models.CallEvent, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT id, tenant_id, session_token, kind, payload, headers, occurred_at, outcome
		FROM call_events WHERE tenant_id = $1 AND session_token = $2 ORDER BY occurred_at ASC`, tenantID, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("list call events: %w", err)
	}
	defer rows.Close()

	var events []models.CallEvent
	for rows.Next() {
		var e models.CallEvent
		var payload, headers []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SessionToken, &e.Kind, &payload, &headers, &e.OccurredAt, &e.Outcome); err != nil {
			return nil, fmt.Errorf("scan call event: %w", err)
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &e.Payload)
		}
		if len(headers) > 0 {
			_ = json.Unmarshal(headers, &e.Headers)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
