package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

// seedFile is the JSON document read by LoadSeed. Times of day are "HH:MM", dates
// "YYYY-MM-DD" and weekdays English names ("monday").
type seedFile struct {
	Staff []struct {
		TenantID string `json:"tenant_id"`
		ID       string `json:"id"`
		SalonID  string `json:"salon_id"`
		Status   string `json:"status"`
		Timezone string `json:"timezone"`
	} `json:"staff"`
	Services []struct {
		TenantID        string `json:"tenant_id"`
		ID              string `json:"id"`
		Name            string `json:"name"`
		DurationMinutes int    `json:"duration_minutes"`
		Price           string `json:"price"`
	} `json:"services"`
	Recurring []struct {
		TenantID string `json:"tenant_id"`
		StaffID  string `json:"staff_id"`
		Weekday  string `json:"weekday"`
		seedHours
	} `json:"recurring"`
	Overrides []struct {
		TenantID string `json:"tenant_id"`
		StaffID  string `json:"staff_id"`
		Date     string `json:"date"`
		Active   bool   `json:"active"`
		seedHours
	} `json:"overrides"`
	TimeOff []struct {
		TenantID  string `json:"tenant_id"`
		ID        string `json:"id"`
		StaffID   string `json:"staff_id"`
		Type      string `json:"type"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		Status    string `json:"status"`
	} `json:"time_off"`
}

type seedHours struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	BreakStart string `json:"break_start"`
	BreakEnd   string `json:"break_end"`
}

func (h seedHours) dayHours() (calendar.DayHours, error) {
	var (
		out calendar.DayHours
		err error
	)
	if out.Start, err = calendar.ParseClock(h.Start); err != nil {
		return out, err
	}
	if out.End, err = calendar.ParseClock(h.End); err != nil {
		return out, err
	}
	if h.BreakStart == "" && h.BreakEnd == "" {
		return out, nil
	}
	var b calendar.Break
	if b.Start, err = calendar.ParseClock(h.BreakStart); err != nil {
		return out, err
	}
	if b.End, err = calendar.ParseClock(h.BreakEnd); err != nil {
		return out, err
	}
	out.Break = &b
	return out, nil
}

// SeedCounts reports how many records LoadSeed stored.
type SeedCounts struct {
	Staff, Services, Recurring, Overrides, TimeOff int
}

// LoadSeedFile opens path and passes it to LoadSeed.
func (m *Memory) LoadSeedFile(path string) (SeedCounts, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedCounts{}, err
	}
	defer f.Close()
	return m.LoadSeed(f)
}

// LoadSeed fills the store from a JSON document. Records are validated the same way the
// Put* methods validate them; the first bad record stops the load.
func (m *Memory) LoadSeed(r io.Reader) (SeedCounts, error) {
	var (
		doc    seedFile
		counts SeedCounts
	)
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return counts, fmt.Errorf("decode seed: %w", err)
	}

	for i, s := range doc.Staff {
		if s.TenantID == "" || s.ID == "" {
			return counts, fmt.Errorf("staff[%d]: tenant_id and id are required", i)
		}
		status := model.EmploymentStatus(s.Status)
		if status == "" {
			status = model.EmploymentActive
		}
		staff := model.StaffMember{ID: s.ID, TenantID: s.TenantID, SalonID: s.SalonID, Status: status, Timezone: s.Timezone}
		if _, err := staff.Location(); err != nil {
			return counts, fmt.Errorf("staff[%d]: %w", i, err)
		}
		m.PutStaff(staff)
		counts.Staff++
	}

	for i, s := range doc.Services {
		if s.TenantID == "" || s.ID == "" {
			return counts, fmt.Errorf("services[%d]: tenant_id and id are required", i)
		}
		svc := model.Service{ID: s.ID, TenantID: s.TenantID, Name: s.Name, DurationMinutes: s.DurationMinutes, Price: s.Price}
		if err := svc.Validate(); err != nil {
			return counts, fmt.Errorf("services[%d]: %w", i, err)
		}
		m.PutService(svc)
		counts.Services++
	}

	for i, rec := range doc.Recurring {
		wd, err := parseWeekday(rec.Weekday)
		if err != nil {
			return counts, fmt.Errorf("recurring[%d]: %w", i, err)
		}
		hours, err := rec.dayHours()
		if err != nil {
			return counts, fmt.Errorf("recurring[%d]: %w", i, err)
		}
		if err := m.PutRecurring(rec.TenantID, calendar.RecurringAvailability{StaffID: rec.StaffID, Weekday: wd, DayHours: hours}); err != nil {
			return counts, fmt.Errorf("recurring[%d]: %w", i, err)
		}
		counts.Recurring++
	}

	for i, o := range doc.Overrides {
		date, err := calendar.ParseDate(o.Date)
		if err != nil {
			return counts, fmt.Errorf("overrides[%d]: %w", i, err)
		}
		var hours calendar.DayHours
		if o.Active {
			if hours, err = o.dayHours(); err != nil {
				return counts, fmt.Errorf("overrides[%d]: %w", i, err)
			}
		}
		if err := m.PutOverride(o.TenantID, calendar.DateOverride{StaffID: o.StaffID, Date: date, Active: o.Active, DayHours: hours}); err != nil {
			return counts, fmt.Errorf("overrides[%d]: %w", i, err)
		}
		counts.Overrides++
	}

	for i, t := range doc.TimeOff {
		p := calendar.TimeOffPeriod{
			ID:      t.ID,
			StaffID: t.StaffID,
			Type:    calendar.TimeOffType(t.Type),
			Status:  calendar.ApprovalStatus(t.Status),
		}
		if p.Type == "" {
			p.Type = calendar.TimeOffOther
		}
		if p.Status == "" {
			p.Status = calendar.ApprovalRequested
		}
		var err error
		if p.StartDate, err = calendar.ParseDate(t.StartDate); err != nil {
			return counts, fmt.Errorf("time_off[%d]: %w", i, err)
		}
		if p.EndDate, err = calendar.ParseDate(t.EndDate); err != nil {
			return counts, fmt.Errorf("time_off[%d]: %w", i, err)
		}
		if p.StartClock, err = optionalClock(t.StartTime); err != nil {
			return counts, fmt.Errorf("time_off[%d]: %w", i, err)
		}
		if p.EndClock, err = optionalClock(t.EndTime); err != nil {
			return counts, fmt.Errorf("time_off[%d]: %w", i, err)
		}
		if _, err := m.PutTimeOff(t.TenantID, p); err != nil {
			return counts, fmt.Errorf("time_off[%d]: %w", i, err)
		}
		counts.TimeOff++
	}
	return counts, nil
}

func optionalClock(s string) (*calendar.Clock, error) {
	if s == "" {
		return nil, nil
	}
	c, err := calendar.ParseClock(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(s, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
