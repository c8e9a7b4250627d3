package policy

import "strings"

// Permission keys understood by the scheduling surface.
const (
	PermBookAppointments   = "appointments.book"
	PermManageAppointments = "appointments.manage"
	PermManageSchedules    = "schedules.manage"
	PermApproveTimeOff     = "time_off.approve"
)

// RoleSnapshot is the caller's role as handed to us by the identity layer.
type RoleSnapshot struct {
	Name        string
	Permissions []string
	// Owner roles implicitly hold every permission.
	Owner bool
}

// HasPermission reports whether role grants key. A grant of "area.*" covers every key
// in that area.
func HasPermission(role RoleSnapshot, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	if role.Owner {
		return true
	}
	for _, p := range role.Permissions {
		p = strings.TrimSpace(p)
		if p == key || p == "*" {
			return true
		}
		if area, ok := strings.CutSuffix(p, ".*"); ok && strings.HasPrefix(key, area+".") {
			return true
		}
	}
	return false
}
