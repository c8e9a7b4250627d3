package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

type tenantKey struct {
	tenant string
	id     string
}

type storedTimeOff struct {
	tenant string
	period calendar.TimeOffPeriod
}

// Memory keeps everything in maps behind one mutex. Commits re-check overlap while
// holding the write lock, which makes CommitAppointment atomic.
type Memory struct {
	mu sync.RWMutex

	staff     map[tenantKey]model.StaffMember
	services  map[tenantKey]model.Service
	recurring map[tenantKey][]calendar.RecurringAvailability
	overrides map[tenantKey]map[calendar.Date]calendar.DateOverride
	timeOff   map[string]storedTimeOff
	appts     map[string]model.Appointment
	idem      map[tenantKey]string
	blocks    map[string]model.BlockedInterval

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		staff:     map[tenantKey]model.StaffMember{},
		services:  map[tenantKey]model.Service{},
		recurring: map[tenantKey][]calendar.RecurringAvailability{},
		overrides: map[tenantKey]map[calendar.Date]calendar.DateOverride{},
		timeOff:   map[string]storedTimeOff{},
		appts:     map[string]model.Appointment{},
		idem:      map[tenantKey]string{},
		blocks:    map[string]model.BlockedInterval{},
		now:       time.Now,
	}
}

// WithClock replaces the timestamp source used for CreatedAt/UpdatedAt.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) PutStaff(s model.StaffMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[tenantKey{s.TenantID, s.ID}] = s
}

func (m *Memory) PutService(s model.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[tenantKey{s.TenantID, s.ID}] = s
}

// PutRecurring replaces the rule for r.Weekday.
func (m *Memory) PutRecurring(tenantID string, r calendar.RecurringAvailability) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantKey{tenantID, r.StaffID}
	rules := slices.DeleteFunc(m.recurring[k], func(x calendar.RecurringAvailability) bool { return x.Weekday == r.Weekday })
	m.recurring[k] = append(rules, r)
	return nil
}

func (m *Memory) PutOverride(tenantID string, o calendar.DateOverride) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantKey{tenantID, o.StaffID}
	if m.overrides[k] == nil {
		m.overrides[k] = map[calendar.Date]calendar.DateOverride{}
	}
	m.overrides[k][o.Date] = o
	return nil
}

// PutTimeOff stores a period in its given status; use ApproveTimeOff to move it to approved.
func (m *Memory) PutTimeOff(tenantID string, p calendar.TimeOffPeriod) (calendar.TimeOffPeriod, error) {
	if err := p.Validate(); err != nil {
		return calendar.TimeOffPeriod{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.timeOff[p.ID] = storedTimeOff{tenant: tenantID, period: p}
	return p, nil
}

func (m *Memory) LoadStaff(_ context.Context, tenantID, staffID string) (model.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.staff[tenantKey{tenantID, staffID}]
	if !ok {
		return model.StaffMember{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) LoadService(_ context.Context, tenantID, serviceID string) (model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[tenantKey{tenantID, serviceID}]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) LoadWorkingCalendar(_ context.Context, tenantID, staffID string, date calendar.Date) (calendar.WorkingCalendar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k := tenantKey{tenantID, staffID}

	var cal calendar.WorkingCalendar
	for _, r := range m.recurring[k] {
		if r.Weekday == date.Weekday() {
			cal.Recurring = &r
			break
		}
	}
	if o, ok := m.overrides[k][date]; ok {
		cal.Override = &o
	}
	for _, t := range m.timeOff {
		if t.tenant == tenantID && t.period.StaffID == staffID && t.period.Covers(date) {
			cal.TimeOff = append(cal.TimeOff, t.period)
		}
	}
	slices.SortFunc(cal.TimeOff, func(a, b calendar.TimeOffPeriod) int { return strings.Compare(a.ID, b.ID) })
	return cal, nil
}

func (m *Memory) LoadActiveAppointments(_ context.Context, tenantID, staffID string, within calendar.Interval) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.TenantID == tenantID && a.StaffID == staffID && a.Status.Active() && a.Interval().Overlaps(within) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) LoadBlockedIntervals(_ context.Context, tenantID, staffID string, within calendar.Interval) ([]model.BlockedInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.BlockedInterval
	for _, b := range m.blocks {
		if b.TenantID == tenantID && b.StaffID == staffID && b.Interval().Overlaps(within) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.BlockedInterval) int { return a.StartTime.Compare(b.StartTime) })
	return out, nil
}

func (m *Memory) GetAppointment(_ context.Context, tenantID, id string) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appts[id]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) FindByIdempotencyKey(_ context.Context, tenantID, key string) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.idem[tenantKey{tenantID, key}]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return m.appts[id], nil
}

// CommitAppointment inserts appt when ID is empty, otherwise updates it if the stored
// version still equals opts.ExpectedVersion. The returned value is what was stored.
func (m *Memory) CommitAppointment(_ context.Context, appt model.Appointment, opts CommitOptions) (model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	insert := appt.ID == ""
	if !insert {
		cur, ok := m.appts[appt.ID]
		if !ok || cur.TenantID != appt.TenantID {
			return model.Appointment{}, ErrNotFound
		}
		if cur.Version != opts.ExpectedVersion {
			return model.Appointment{}, ErrStale
		}
		appt.IdempotencyKey = cur.IdempotencyKey
		appt.CreatedAt = cur.CreatedAt
	} else if appt.IdempotencyKey != "" {
		if _, dup := m.idem[tenantKey{appt.TenantID, appt.IdempotencyKey}]; dup {
			return model.Appointment{}, ErrDuplicateKey
		}
	}

	if opts.ExpectNoConflict && appt.Status.Active() && m.overlapsLocked(appt.TenantID, appt.StaffID, appt.Interval(), appt.ID) {
		return model.Appointment{}, ErrOverlap
	}

	if insert {
		appt.ID = uuid.NewString()
		appt.Version = 1
		appt.CreatedAt = now
		if appt.IdempotencyKey != "" {
			m.idem[tenantKey{appt.TenantID, appt.IdempotencyKey}] = appt.ID
		}
	} else {
		appt.Version = opts.ExpectedVersion + 1
	}
	appt.UpdatedAt = now
	m.appts[appt.ID] = appt
	return appt, nil
}

// MarkReminderSent flips the flag once on an active appointment. changed is false when
// it was already set or the appointment is no longer active.
func (m *Memory) MarkReminderSent(_ context.Context, tenantID, id string) (model.Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.TenantID != tenantID {
		return model.Appointment{}, false, ErrNotFound
	}
	if a.ReminderSent || !a.Status.Active() {
		return a, false, nil
	}
	a.ReminderSent = true
	a.Version++
	a.UpdatedAt = m.now()
	m.appts[id] = a
	return a, true, nil
}

func (m *Memory) ListAppointments(_ context.Context, f ListFilter) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.TenantID != f.TenantID {
			continue
		}
		if f.StaffID != "" && a.StaffID != f.StaffID {
			continue
		}
		if !f.From.IsZero() && !a.EndTime.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.StartTime.Before(f.To) {
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

// ListDueReminders returns active appointments of every tenant starting in [from, to)
// whose reminder has not been sent.
func (m *Memory) ListDueReminders(_ context.Context, from, to time.Time, limit int) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.ReminderSent || !a.Status.Active() {
			continue
		}
		if a.StartTime.Before(from) || !a.StartTime.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ApproveTimeOff(_ context.Context, tenantID, id string) (calendar.TimeOffPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timeOff[id]
	if !ok || t.tenant != tenantID {
		return calendar.TimeOffPeriod{}, ErrNotFound
	}
	if t.period.Status != calendar.ApprovalRequested {
		return calendar.TimeOffPeriod{}, ErrTimeOffState
	}
	span := t.period.Span(time.UTC)
	for otherID, o := range m.timeOff {
		if otherID == id || o.tenant != tenantID || o.period.StaffID != t.period.StaffID {
			continue
		}
		if o.period.Status == calendar.ApprovalApproved && o.period.Span(time.UTC).Overlaps(span) {
			return calendar.TimeOffPeriod{}, ErrTimeOffOverlap
		}
	}
	t.period.Status = calendar.ApprovalApproved
	m.timeOff[id] = t
	return t.period, nil
}

// CreateBlockedInterval stores a hold, refusing it when an active appointment overlaps.
func (m *Memory) CreateBlockedInterval(_ context.Context, b model.BlockedInterval) (model.BlockedInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.TenantID == b.TenantID && a.StaffID == b.StaffID && a.Status.Active() && a.Interval().Overlaps(b.Interval()) {
			return model.BlockedInterval{}, ErrOverlap
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = m.now()
	m.blocks[b.ID] = b
	return b, nil
}

func (m *Memory) overlapsLocked(tenantID, staffID string, iv calendar.Interval, excludeID string) bool {
	for _, a := range m.appts {
		if a.ID == excludeID || a.TenantID != tenantID || a.StaffID != staffID || !a.Status.Active() {
			continue
		}
		if a.Interval().Overlaps(iv) {
			return true
		}
	}
	for _, b := range m.blocks {
		if b.TenantID == tenantID && b.StaffID == staffID && b.Interval().Overlaps(iv) {
			return true
		}
	}
	return false
}

func sortByStart(appts []model.Appointment) {
	slices.SortFunc(appts, func(a, b model.Appointment) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
