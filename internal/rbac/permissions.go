package rbac

// Permission constants define the available permissions in the portal.
// They use resource.action naming and are granted to roles through the
// minimum-role table in model.go.
const (
	// PermContentRead allows reading published portal content.
	PermContentRead = "content.read"
	// PermContentWrite allows creating and editing portal content.
	PermContentWrite = "content.write"

	// PermChatRead allows reading group chat channels.
	PermChatRead = "chat.read"
	// PermChatWrite allows posting to group chat channels.
	PermChatWrite = "chat.write"
	// PermChatModerate allows removing messages and muting participants.
	PermChatModerate = "chat.moderate"

	// PermEventView allows viewing the event calendar.
	PermEventView = "event.view"
	// PermEventCreate allows creating events.
	PermEventCreate = "event.create"
	// PermEventManage allows editing and cancelling any event.
	PermEventManage = "event.manage"

	// PermInviteSend allows sending membership invitations.
	PermInviteSend = "invite.send"
	// PermInviteManage allows revoking and auditing invitations.
	PermInviteManage = "invite.manage"

	// PermProfileEdit allows editing one's own profile.
	PermProfileEdit = "profile.edit"

	// PermUserManage allows managing member accounts (roles, status, flags).
	PermUserManage = "user.manage"
	// PermUserImport allows bulk-importing accounts from external rosters.
	PermUserImport = "user.import"

	// PermAnalyticsView allows viewing portal usage analytics.
	PermAnalyticsView = "analytics.view"
)

// AllPermissions returns every permission known to the model.
func AllPermissions() []string {
	perms := make([]string, 0, len(minimumRole))
	for perm := range minimumRole {
		perms = append(perms, perm)
	}

	return perms
}
