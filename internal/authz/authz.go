// Package authz decides, for every mutating action, whether the acting
// member is allowed to perform it. It is pure: no I/O, no side effects, so
// policy stays centrally auditable and testable as a function of
// (role, action, ownership) tuples.
package authz

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/models"
)

type Action uint8

const (
	ActionDeleteServer Action = iota
	ActionRenameServer
	ActionRegenerateInvite
	ActionCreateChannel
	ActionRenameChannel
	ActionDeleteChannel
	ActionChangeRole
	ActionKickMember
	ActionPostMessage
	ActionEditMessage
	ActionDeleteMessage
)

// Reason enumerates every possible denial so callers can render or localize
// deterministically. Never free-text.
type Reason string

const (
	ReasonNotMember         Reason = "not_member"
	ReasonWrongServer       Reason = "wrong_server"
	ReasonRequiresAdmin     Reason = "requires_admin"
	ReasonRequiresModerator Reason = "requires_moderator"
	ReasonTargetOutranks    Reason = "target_outranks"
	ReasonRoleOutranks      Reason = "role_outranks"
	ReasonSelfTarget        Reason = "self_target"
	ReasonNotAuthor         Reason = "not_author"
	ReasonReservedChannel   Reason = "reserved_channel"
	ReasonUnknownAction     Reason = "unknown_action"
)

// Target describes what the action operates on. ServerID is always required;
// the remaining fields matter only for the action kinds that use them.
type Target struct {
	ServerID int64

	// Member is the member being kicked or re-roled, with its current stored
	// role. Required for ActionChangeRole and ActionKickMember.
	Member *models.Member

	// NewRole is the role being assigned. Required for ActionChangeRole.
	NewRole models.Role

	// AuthorMemberID identifies the message author for edit/delete actions.
	AuthorMemberID int64

	// ReservedChannel marks channel actions aimed at the protected default
	// channel.
	ReservedChannel bool
}

type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Err converts a denial into the error taxonomy: self-targeting is a
// Conflict (the dedicated leave path exists for that), everything else is
// Unauthorized.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonSelfTarget {
		return apperr.Conflict(string(d.Reason))
	}
	return apperr.Unauthorized(string(d.Reason))
}

// Authorize evaluates the policy table for actor performing action on t.
// actor carries the current stored role; callers must re-read it from the
// repository for every request, never reuse one across a session.
func Authorize(actor *models.Member, action Action, t Target) Decision {
	if actor == nil {
		return deny(ReasonNotMember)
	}
	if actor.ServerID != t.ServerID {
		return deny(ReasonWrongServer)
	}

	switch action {
	case ActionDeleteServer, ActionRenameServer, ActionRegenerateInvite:
		if actor.Role != models.RoleAdmin {
			return deny(ReasonRequiresAdmin)
		}
		return allow()

	case ActionCreateChannel:
		if !actor.Role.AtLeast(models.RoleModerator) {
			return deny(ReasonRequiresModerator)
		}
		return allow()

	case ActionRenameChannel, ActionDeleteChannel:
		if !actor.Role.AtLeast(models.RoleModerator) {
			return deny(ReasonRequiresModerator)
		}
		// Reserved outranks role: not even an admin touches "general".
		if t.ReservedChannel {
			return deny(ReasonReservedChannel)
		}
		return allow()

	case ActionChangeRole, ActionKickMember:
		if t.Member == nil {
			return deny(ReasonNotMember)
		}
		if t.Member.ID == actor.ID {
			return deny(ReasonSelfTarget)
		}
		if t.Member.ServerID != actor.ServerID {
			return deny(ReasonWrongServer)
		}
		if !actor.Role.AtLeast(models.RoleModerator) {
			return deny(ReasonRequiresModerator)
		}
		// A target of equal or higher rank is untouchable, which also means
		// acting on a moderator or admin requires the admin role.
		if !actor.Role.Outranks(t.Member.Role) {
			return deny(ReasonTargetOutranks)
		}
		// The assigned role is bounded the same way: nobody hands out their
		// own rank or above, so ADMIN is never assignable (the owner holds it
		// from server creation).
		if action == ActionChangeRole && !actor.Role.Outranks(t.NewRole) {
			return deny(ReasonRoleOutranks)
		}
		return allow()

	case ActionPostMessage:
		return allow()

	case ActionEditMessage, ActionDeleteMessage:
		if actor.ID == t.AuthorMemberID {
			return allow()
		}
		if !actor.Role.AtLeast(models.RoleModerator) {
			return deny(ReasonNotAuthor)
		}
		return allow()
	}

	return deny(ReasonUnknownAction)
}
