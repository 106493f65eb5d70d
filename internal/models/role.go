package models

import (
	"encoding/json"
	"fmt"

	"concord-backend/internal/apperr"
)

// Role is a totally ordered hierarchy: a higher role dominates the
// capabilities of every lower one. Comparisons must always use the role as
// currently stored, never one cached across a session.
type Role uint8

const (
	RoleGuest Role = iota
	RoleModerator
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleGuest:     "GUEST",
	RoleModerator: "MODERATOR",
	RoleAdmin:     "ADMIN",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r dominates other in the GUEST < MODERATOR < ADMIN
// order.
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

// Outranks reports strict dominance.
func (r Role) Outranks(other Role) bool {
	return r > other
}

func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return 0, apperr.Validation("unknown_role")
}

func (r Role) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown_role")
	}
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	role, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = role
	return nil
}
