package model

import (
	"fmt"
	"time"
)

type EmploymentStatus string

const (
	EmploymentInvited    EmploymentStatus = "invited"
	EmploymentActive     EmploymentStatus = "active"
	EmploymentInactive   EmploymentStatus = "inactive"
	EmploymentOnLeave    EmploymentStatus = "on_leave"
	EmploymentTerminated EmploymentStatus = "terminated"
)

type StaffMember struct {
	ID       string
	TenantID string
	SalonID  string
	Status   EmploymentStatus
	// Timezone is the IANA zone the staff member's schedule is written in.
	Timezone string
}

// Schedulable reports whether the staff member may receive bookings.
func (s StaffMember) Schedulable() bool { return s.Status == EmploymentActive }

// Location resolves Timezone, defaulting to UTC when empty.
func (s StaffMember) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("staff %s timezone: %w", s.ID, err)
	}
	return loc, nil
}

// MaxServiceDuration bounds slot enumeration.
const MaxServiceDuration = 24 * time.Hour

type Service struct {
	ID              string
	TenantID        string
	Name            string
	DurationMinutes int
	Price           string
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

func (s Service) Validate() error {
	d := s.Duration()
	if d <= 0 || d > MaxServiceDuration {
		return fmt.Errorf("service %s duration must be in (0, 24h], got %d minutes", s.ID, s.DurationMinutes)
	}
	return nil
}
