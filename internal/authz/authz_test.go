package authz_test

import (
	"testing"

	"concord-backend/internal/apperr"
	"concord-backend/internal/authz"
	"concord-backend/internal/models"
)

func member(id int64, serverID int64, role models.Role) *models.Member {
	return &models.Member{ID: id, ServerID: serverID, ProfileID: id * 100, Role: role}
}

func TestAuthorizeServerActions(t *testing.T) {
	tests := []struct {
		name           string
		actor          *models.Member
		action         authz.Action
		target         authz.Target
		expectAllowed  bool
		expectedReason authz.Reason
	}{
		{
			name:          "Admin can delete server",
			actor:         member(1, 10, models.RoleAdmin),
			action:        authz.ActionDeleteServer,
			target:        authz.Target{ServerID: 10},
			expectAllowed: true,
		},
		{
			name:          "Admin can rename server",
			actor:         member(1, 10, models.RoleAdmin),
			action:        authz.ActionRenameServer,
			target:        authz.Target{ServerID: 10},
			expectAllowed: true,
		},
		{
			name:          "Admin can regenerate invite",
			actor:         member(1, 10, models.RoleAdmin),
			action:        authz.ActionRegenerateInvite,
			target:        authz.Target{ServerID: 10},
			expectAllowed: true,
		},
		{
			name:           "Moderator cannot delete server",
			actor:          member(1, 10, models.RoleModerator),
			action:         authz.ActionDeleteServer,
			target:         authz.Target{ServerID: 10},
			expectedReason: authz.ReasonRequiresAdmin,
		},
		{
			name:           "Guest cannot rename server",
			actor:          member(1, 10, models.RoleGuest),
			action:         authz.ActionRenameServer,
			target:         authz.Target{ServerID: 10},
			expectedReason: authz.ReasonRequiresAdmin,
		},
		{
			name:           "Admin of another server cannot delete",
			actor:          member(1, 11, models.RoleAdmin),
			action:         authz.ActionDeleteServer,
			target:         authz.Target{ServerID: 10},
			expectedReason: authz.ReasonWrongServer,
		},
		{
			name:           "Nil actor is not a member",
			actor:          nil,
			action:         authz.ActionDeleteServer,
			target:         authz.Target{ServerID: 10},
			expectedReason: authz.ReasonNotMember,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := authz.Authorize(tc.actor, tc.action, tc.target)
			if decision.Allowed != tc.expectAllowed {
				t.Fatalf("Authorize() allowed = %t, want %t (reason %q)", decision.Allowed, tc.expectAllowed, decision.Reason)
			}
			if !tc.expectAllowed && decision.Reason != tc.expectedReason {
				t.Errorf("Authorize() reason = %q, want %q", decision.Reason, tc.expectedReason)
			}
		})
	}
}

func TestAuthorizeChannelActions(t *testing.T) {
	tests := []struct {
		name           string
		actor          *models.Member
		action         authz.Action
		target         authz.Target
		expectAllowed  bool
		expectedReason authz.Reason
	}{
		{
			name:          "Moderator can create channel",
			actor:         member(1, 10, models.RoleModerator),
			action:        authz.ActionCreateChannel,
			target:        authz.Target{ServerID: 10},
			expectAllowed: true,
		},
		{
			name:          "Admin can delete regular channel",
			actor:         member(1, 10, models.RoleAdmin),
			action:        authz.ActionDeleteChannel,
			target:        authz.Target{ServerID: 10},
			expectAllowed: true,
		},
		{
			name:           "Guest cannot create channel",
			actor:          member(1, 10, models.RoleGuest),
			action:         authz.ActionCreateChannel,
			target:         authz.Target{ServerID: 10},
			expectedReason: authz.ReasonRequiresModerator,
		},
		{
			name:           "Admin cannot delete reserved channel",
			actor:          member(1, 10, models.RoleAdmin),
			action:         authz.ActionDeleteChannel,
			target:         authz.Target{ServerID: 10, ReservedChannel: true},
			expectedReason: authz.ReasonReservedChannel,
		},
		{
			name:           "Admin cannot rename reserved channel",
			actor:          member(1, 10, models.RoleAdmin),
			action:         authz.ActionRenameChannel,
			target:         authz.Target{ServerID: 10, ReservedChannel: true},
			expectedReason: authz.ReasonReservedChannel,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := authz.Authorize(tc.actor, tc.action, tc.target)
			if decision.Allowed != tc.expectAllowed {
				t.Fatalf("Authorize() allowed = %t, want %t (reason %q)", decision.Allowed, tc.expectAllowed, decision.Reason)
			}
			if !tc.expectAllowed && decision.Reason != tc.expectedReason {
				t.Errorf("Authorize() reason = %q, want %q", decision.Reason, tc.expectedReason)
			}
		})
	}
}

// Kicks follow one rule: the actor must be at least a moderator and must
// strictly outrank the target, and nobody targets themself through the
// admin path.
func TestAuthorizeKickMember(t *testing.T) {
	roles := []models.Role{models.RoleGuest, models.RoleModerator, models.RoleAdmin}

	for _, actorRole := range roles {
		for _, targetRole := range roles {
			actor := member(1, 10, actorRole)
			target := member(2, 10, targetRole)

			decision := authz.Authorize(actor, authz.ActionKickMember, authz.Target{ServerID: 10, Member: target})

			wantAllowed := actorRole.AtLeast(models.RoleModerator) && actorRole.Outranks(targetRole)
			if decision.Allowed != wantAllowed {
				t.Errorf("actor %s kicking %s: allowed = %t, want %t (reason %q)",
					actorRole, targetRole, decision.Allowed, wantAllowed, decision.Reason)
			}
		}
	}
}

// Role changes bound both sides: the actor must outrank the target's current
// role AND the role being assigned, so nobody can hand out their own rank.
func TestAuthorizeChangeRole(t *testing.T) {
	roles := []models.Role{models.RoleGuest, models.RoleModerator, models.RoleAdmin}

	for _, actorRole := range roles {
		for _, targetRole := range roles {
			for _, newRole := range roles {
				actor := member(1, 10, actorRole)
				target := member(2, 10, targetRole)

				decision := authz.Authorize(actor, authz.ActionChangeRole, authz.Target{
					ServerID: 10,
					Member:   target,
					NewRole:  newRole,
				})

				wantAllowed := actorRole.AtLeast(models.RoleModerator) &&
					actorRole.Outranks(targetRole) &&
					actorRole.Outranks(newRole)
				if decision.Allowed != wantAllowed {
					t.Errorf("actor %s assigning %s to %s: allowed = %t, want %t (reason %q)",
						actorRole, newRole, targetRole, decision.Allowed, wantAllowed, decision.Reason)
				}
			}
		}
	}
}

// A moderator who outranks a guest still cannot promote them past the
// moderator's own rank.
func TestAuthorizeChangeRoleEscalation(t *testing.T) {
	moderator := member(1, 10, models.RoleModerator)
	guest := member(2, 10, models.RoleGuest)

	decision := authz.Authorize(moderator, authz.ActionChangeRole, authz.Target{
		ServerID: 10,
		Member:   guest,
		NewRole:  models.RoleAdmin,
	})
	if decision.Allowed {
		t.Fatal("moderator promoted a guest to admin")
	}
	if decision.Reason != authz.ReasonRoleOutranks {
		t.Errorf("Authorize() reason = %q, want %q", decision.Reason, authz.ReasonRoleOutranks)
	}

	// promoting to your own rank is just as far as escalation gets denied
	decision = authz.Authorize(moderator, authz.ActionChangeRole, authz.Target{
		ServerID: 10,
		Member:   guest,
		NewRole:  models.RoleModerator,
	})
	if decision.Allowed {
		t.Fatal("moderator promoted a guest to moderator")
	}

	// demotion-direction changes below the actor's rank stay allowed
	decision = authz.Authorize(member(1, 10, models.RoleAdmin), authz.ActionChangeRole, authz.Target{
		ServerID: 10,
		Member:   guest,
		NewRole:  models.RoleModerator,
	})
	if !decision.Allowed {
		t.Errorf("admin was denied promoting a guest to moderator: %q", decision.Reason)
	}
}

func TestAuthorizeSelfTarget(t *testing.T) {
	actor := member(1, 10, models.RoleAdmin)

	decision := authz.Authorize(actor, authz.ActionKickMember, authz.Target{ServerID: 10, Member: actor})
	if decision.Allowed {
		t.Fatal("self-kick through the admin path passed unexpectedly")
	}
	if decision.Reason != authz.ReasonSelfTarget {
		t.Errorf("Authorize() reason = %q, want %q", decision.Reason, authz.ReasonSelfTarget)
	}

	// self-targeting surfaces as a conflict, not a permission denial
	if kind := apperr.KindOf(decision.Err()); kind != apperr.KindConflict {
		t.Errorf("Err() kind = %s, want %s", kind, apperr.KindConflict)
	}
}

func TestAuthorizeMessageActions(t *testing.T) {
	const authorID = 7

	tests := []struct {
		name           string
		actor          *models.Member
		action         authz.Action
		expectAllowed  bool
		expectedReason authz.Reason
	}{
		{
			name:          "Guest can post",
			actor:         member(1, 10, models.RoleGuest),
			action:        authz.ActionPostMessage,
			expectAllowed: true,
		},
		{
			name:          "Author can edit own message",
			actor:         member(authorID, 10, models.RoleGuest),
			action:        authz.ActionEditMessage,
			expectAllowed: true,
		},
		{
			name:          "Author can delete own message",
			actor:         member(authorID, 10, models.RoleGuest),
			action:        authz.ActionDeleteMessage,
			expectAllowed: true,
		},
		{
			name:          "Moderator can delete someone else's message",
			actor:         member(1, 10, models.RoleModerator),
			action:        authz.ActionDeleteMessage,
			expectAllowed: true,
		},
		{
			name:          "Admin can edit someone else's message",
			actor:         member(1, 10, models.RoleAdmin),
			action:        authz.ActionEditMessage,
			expectAllowed: true,
		},
		{
			name:           "Guest cannot delete someone else's message",
			actor:          member(1, 10, models.RoleGuest),
			action:         authz.ActionDeleteMessage,
			expectedReason: authz.ReasonNotAuthor,
		},
		{
			name:           "Guest cannot edit someone else's message",
			actor:          member(1, 10, models.RoleGuest),
			action:         authz.ActionEditMessage,
			expectedReason: authz.ReasonNotAuthor,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := authz.Authorize(tc.actor, tc.action, authz.Target{ServerID: 10, AuthorMemberID: authorID})
			if decision.Allowed != tc.expectAllowed {
				t.Fatalf("Authorize() allowed = %t, want %t (reason %q)", decision.Allowed, tc.expectAllowed, decision.Reason)
			}
			if !tc.expectAllowed && decision.Reason != tc.expectedReason {
				t.Errorf("Authorize() reason = %q, want %q", decision.Reason, tc.expectedReason)
			}
		})
	}
}

// A member with a higher role can do everything a lower role can, against
// targets below their own rank.
func TestRoleDominance(t *testing.T) {
	actions := []authz.Action{
		authz.ActionDeleteServer,
		authz.ActionRenameServer,
		authz.ActionRegenerateInvite,
		authz.ActionCreateChannel,
		authz.ActionRenameChannel,
		authz.ActionDeleteChannel,
		authz.ActionPostMessage,
		authz.ActionEditMessage,
		authz.ActionDeleteMessage,
	}

	roles := []models.Role{models.RoleGuest, models.RoleModerator, models.RoleAdmin}

	for _, action := range actions {
		for i, lower := range roles {
			for _, higher := range roles[i:] {
				lowerDecision := authz.Authorize(member(1, 10, lower), action, authz.Target{ServerID: 10, AuthorMemberID: 99})
				higherDecision := authz.Authorize(member(1, 10, higher), action, authz.Target{ServerID: 10, AuthorMemberID: 99})

				if lowerDecision.Allowed && !higherDecision.Allowed {
					t.Errorf("action %d: allowed for %s but denied for %s", action, lower, higher)
				}
			}
		}
	}
}
