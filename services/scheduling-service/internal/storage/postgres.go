package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

const appointmentColumns = `id, tenant_id, salon_id, staff_id, service_id, customer_id, start_time, end_time,
	status, cancelled_at, cancel_reason, reminder_sent, COALESCE(idempotency_key, ''), version, created_at, updated_at`

type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) LoadStaff(ctx context.Context, tenantID, staffID string) (model.StaffMember, error) {
	var st model.StaffMember
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, salon_id, status, timezone
		FROM staff_members
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, staffID).Scan(&st.ID, &st.TenantID, &st.SalonID, &st.Status, &st.Timezone)
	if err != nil {
		return model.StaffMember{}, classify(err)
	}
	return st, nil
}

func (s *Postgres) LoadService(ctx context.Context, tenantID, serviceID string) (model.Service, error) {
	var svc model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, duration_minutes, price::text
		FROM services
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, serviceID).Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.Price)
	if err != nil {
		return model.Service{}, classify(err)
	}
	return svc, nil
}

func (s *Postgres) LoadWorkingCalendar(ctx context.Context, tenantID, staffID string, date calendar.Date) (calendar.WorkingCalendar, error) {
	var cal calendar.WorkingCalendar

	var rec calendar.RecurringAvailability
	var bs, be *int
	err := s.pool.QueryRow(ctx, `
		SELECT start_minute, end_minute, break_start_minute, break_end_minute
		FROM recurring_availability
		WHERE tenant_id = $1 AND staff_id = $2 AND weekday = $3
	`, tenantID, staffID, int(date.Weekday())).Scan(&rec.Start, &rec.End, &bs, &be)
	switch {
	case err == nil:
		rec.StaffID = staffID
		rec.Weekday = date.Weekday()
		rec.Break = breakOf(bs, be)
		cal.Recurring = &rec
	case !errors.Is(err, pgx.ErrNoRows):
		return calendar.WorkingCalendar{}, err
	}

	var ov calendar.DateOverride
	err = s.pool.QueryRow(ctx, `
		SELECT active, start_minute, end_minute, break_start_minute, break_end_minute
		FROM date_overrides
		WHERE tenant_id = $1 AND staff_id = $2 AND on_date = $3::date
	`, tenantID, staffID, date.String()).Scan(&ov.Active, &ov.Start, &ov.End, &bs, &be)
	switch {
	case err == nil:
		ov.StaffID = staffID
		ov.Date = date
		ov.Break = breakOf(bs, be)
		cal.Override = &ov
	case !errors.Is(err, pgx.ErrNoRows):
		return calendar.WorkingCalendar{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, staff_id, type, start_date, end_date, start_minute, end_minute, status
		FROM time_off
		WHERE tenant_id = $1 AND staff_id = $2 AND start_date <= $3::date AND end_date >= $3::date
		ORDER BY id
	`, tenantID, staffID, date.String())
	if err != nil {
		return calendar.WorkingCalendar{}, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanTimeOff(rows)
		if err != nil {
			return calendar.WorkingCalendar{}, err
		}
		cal.TimeOff = append(cal.TimeOff, p)
	}
	return cal, rows.Err()
}

func (s *Postgres) LoadActiveAppointments(ctx context.Context, tenantID, staffID string, within calendar.Interval) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
			AND staff_id = $2
			AND status = ANY($3)
			AND start_time < $5
			AND end_time > $4
		ORDER BY start_time ASC
	`, tenantID, staffID, activeStatusStrings(), within.Start, within.End)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Postgres) LoadBlockedIntervals(ctx context.Context, tenantID, staffID string, within calendar.Interval) ([]model.BlockedInterval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, staff_id, start_time, end_time, reason, created_at
		FROM blocked_intervals
		WHERE tenant_id = $1 AND staff_id = $2 AND start_time < $4 AND end_time > $3
		ORDER BY start_time ASC
	`, tenantID, staffID, within.Start, within.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlockedInterval
	for rows.Next() {
		var b model.BlockedInterval
		if err := rows.Scan(&b.ID, &b.TenantID, &b.StaffID, &b.StartTime, &b.EndTime, &b.Reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Postgres) GetAppointment(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	a, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return a, nil
}

func (s *Postgres) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
	a, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return a, nil
}

// CommitAppointment serializes on a per-staff advisory lock for the transaction, re-checks
// overlap when asked, then inserts or version-checked updates. The EXCLUDE constraint on
// appointments stays as the last line; its violation is reported as ErrOverlap.
func (s *Postgres) CommitAppointment(ctx context.Context, appt model.Appointment, opts CommitOptions) (model.Appointment, error) {
	var out model.Appointment
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockStaff(ctx, tx, appt.TenantID, appt.StaffID); err != nil {
			return err
		}
		if opts.ExpectNoConflict && appt.Status.Active() {
			busy, err := overlaps(ctx, tx, appt.TenantID, appt.StaffID, appt.Interval(), appt.ID)
			if err != nil {
				return err
			}
			if busy {
				return ErrOverlap
			}
		}

		if appt.ID == "" {
			appt.ID = uuid.NewString()
			row := tx.QueryRow(ctx, `
				INSERT INTO appointments
					(id, tenant_id, salon_id, staff_id, service_id, customer_id, start_time, end_time,
					 status, cancel_reason, reminder_sent, idempotency_key, version)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), 1)
				RETURNING `+appointmentColumns,
				appt.ID, appt.TenantID, appt.SalonID, appt.StaffID, appt.ServiceID, appt.CustomerID,
				appt.StartTime, appt.EndTime, appt.Status, appt.CancelReason, appt.ReminderSent, appt.IdempotencyKey)
			var err error
			out, err = scanAppointment(row)
			return err
		}

		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET staff_id = $3,
				start_time = $4,
				end_time = $5,
				status = $6,
				cancelled_at = $7,
				cancel_reason = $8,
				reminder_sent = $9,
				version = version + 1,
				updated_at = now()
			WHERE tenant_id = $1 AND id = $2 AND version = $10
			RETURNING `+appointmentColumns,
			appt.TenantID, appt.ID, appt.StaffID, appt.StartTime, appt.EndTime, appt.Status,
			appt.CancelledAt, appt.CancelReason, appt.ReminderSent, opts.ExpectedVersion)
		var err error
		out, err = scanAppointment(row)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE tenant_id = $1 AND id = $2)`, appt.TenantID, appt.ID).Scan(&exists); err != nil {
				return err
			}
			if exists {
				return ErrStale
			}
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.Appointment{}, classify(err)
	}
	return out, nil
}

func (s *Postgres) MarkReminderSent(ctx context.Context, tenantID, id string) (model.Appointment, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE appointments
		SET reminder_sent = true, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND reminder_sent = false AND status = ANY($3)
		RETURNING `+appointmentColumns, tenantID, id, activeStatusStrings())
	a, err := scanAppointment(row)
	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, false, err
	}
	a, err = s.GetAppointment(ctx, tenantID, id)
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, false, nil
}

func (s *Postgres) ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	var from, to *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
			AND ($2 = '' OR staff_id = $2)
			AND ($3::timestamptz IS NULL OR end_time > $3)
			AND ($4::timestamptz IS NULL OR start_time < $4)
		ORDER BY start_time ASC, id ASC
		LIMIT $5
	`, f.TenantID, f.StaffID, from, to, f.limit())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Postgres) ListDueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE reminder_sent = false
			AND status = ANY($1)
			AND start_time >= $2
			AND start_time < $3
		ORDER BY start_time ASC
		LIMIT $4
	`, activeStatusStrings(), from, to, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (s *Postgres) ApproveTimeOff(ctx context.Context, tenantID, id string) (calendar.TimeOffPeriod, error) {
	var out calendar.TimeOffPeriod
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		p, err := scanTimeOff(tx.QueryRow(ctx, `
			SELECT id, staff_id, type, start_date, end_date, start_minute, end_minute, status
			FROM time_off
			WHERE tenant_id = $1 AND id = $2
			FOR UPDATE
		`, tenantID, id))
		if err != nil {
			return err
		}
		if p.Status != calendar.ApprovalRequested {
			return ErrTimeOffState
		}
		if err := lockStaff(ctx, tx, tenantID, p.StaffID); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT id, staff_id, type, start_date, end_date, start_minute, end_minute, status
			FROM time_off
			WHERE tenant_id = $1 AND staff_id = $2 AND id <> $3 AND status = 'approved'
				AND start_date <= $5::date AND end_date >= $4::date
		`, tenantID, p.StaffID, id, p.StartDate.String(), p.EndDate.String())
		if err != nil {
			return err
		}
		var others []calendar.TimeOffPeriod
		for rows.Next() {
			o, err := scanTimeOff(rows)
			if err != nil {
				rows.Close()
				return err
			}
			others = append(others, o)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		span := p.Span(time.UTC)
		for _, o := range others {
			if o.Span(time.UTC).Overlaps(span) {
				return ErrTimeOffOverlap
			}
		}

		if _, err := tx.Exec(ctx, `UPDATE time_off SET status = 'approved', updated_at = now() WHERE tenant_id = $1 AND id = $2`, tenantID, id); err != nil {
			return err
		}
		p.Status = calendar.ApprovalApproved
		out = p
		return nil
	})
	if err != nil {
		return calendar.TimeOffPeriod{}, classify(err)
	}
	return out, nil
}

func (s *Postgres) CreateBlockedInterval(ctx context.Context, b model.BlockedInterval) (model.BlockedInterval, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockStaff(ctx, tx, b.TenantID, b.StaffID); err != nil {
			return err
		}
		var busy bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE tenant_id = $1 AND staff_id = $2 AND status = ANY($3)
					AND start_time < $5 AND end_time > $4
			)
		`, b.TenantID, b.StaffID, activeStatusStrings(), b.StartTime, b.EndTime).Scan(&busy)
		if err != nil {
			return err
		}
		if busy {
			return ErrOverlap
		}
		return tx.QueryRow(ctx, `
			INSERT INTO blocked_intervals (id, tenant_id, staff_id, start_time, end_time, reason)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`, b.ID, b.TenantID, b.StaffID, b.StartTime, b.EndTime, b.Reason).Scan(&b.CreatedAt)
	})
	if err != nil {
		return model.BlockedInterval{}, classify(err)
	}
	return b, nil
}

// lockStaff takes a transaction-scoped advisory lock so concurrent commits for the same
// staff member run one after another, including across replicas.
func lockStaff(ctx context.Context, tx pgx.Tx, tenantID, staffID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, tenantID+"/"+staffID)
	return err
}

func overlaps(ctx context.Context, tx pgx.Tx, tenantID, staffID string, iv calendar.Interval, excludeID string) (bool, error) {
	var busy bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE tenant_id = $1 AND staff_id = $2 AND id <> $3 AND status = ANY($4)
				AND start_time < $6 AND end_time > $5
		) OR EXISTS (
			SELECT 1 FROM blocked_intervals
			WHERE tenant_id = $1 AND staff_id = $2 AND start_time < $6 AND end_time > $5
		)
	`, tenantID, staffID, excludeID, activeStatusStrings(), iv.Start, iv.End).Scan(&busy)
	return busy, err
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.SalonID,
		&a.StaffID,
		&a.ServiceID,
		&a.CustomerID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.CancelledAt,
		&a.CancelReason,
		&a.ReminderSent,
		&a.IdempotencyKey,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanTimeOff(row pgx.Row) (calendar.TimeOffPeriod, error) {
	var p calendar.TimeOffPeriod
	var startDate, endDate time.Time
	var startMin, endMin *int
	if err := row.Scan(&p.ID, &p.StaffID, &p.Type, &startDate, &endDate, &startMin, &endMin, &p.Status); err != nil {
		return calendar.TimeOffPeriod{}, err
	}
	p.StartDate = calendar.DateOf(startDate, time.UTC)
	p.EndDate = calendar.DateOf(endDate, time.UTC)
	if startMin != nil {
		c := calendar.Clock(*startMin)
		p.StartClock = &c
	}
	if endMin != nil {
		c := calendar.Clock(*endMin)
		p.EndClock = &c
	}
	return p, nil
}

func breakOf(start, end *int) *calendar.Break {
	if start == nil || end == nil {
		return nil
	}
	return &calendar.Break{Start: calendar.Clock(*start), End: calendar.Clock(*end)}
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			return ErrOverlap
		case "23505":
			return ErrDuplicateKey
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrStale, pgErr.Message)
		}
	}
	return err
}
