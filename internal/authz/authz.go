// Package authz implements role-based access control. Roles map to
// static permission sets, and callable assistant functions map to the
// permission required to invoke them. All checks fail closed: an
// unrecognized role grants nothing.
package authz

import (
	"fmt"

	"github.com/aura-assist/gateway/types"
)

// Permission is an enumerable capability tag.
type Permission string

// Permissions understood by the system.
const (
	// Conversation and memory.
	PermChat         Permission = "chat"
	PermViewMemory   Permission = "view_memory"
	PermSearchMemory Permission = "search_memory"

	// Calendar and scheduling.
	PermCreateCalendarEvent Permission = "create_calendar_event"
	PermViewCalendarEvents  Permission = "view_calendar_events"
	PermEditCalendarEvent   Permission = "edit_calendar_event"
	PermDeleteCalendarEvent Permission = "delete_calendar_event"

	// Reminders.
	PermCreateReminder Permission = "create_reminder"
	PermViewReminders  Permission = "view_reminders"
	PermEditReminder   Permission = "edit_reminder"
	PermDeleteReminder Permission = "delete_reminder"

	// Todos.
	PermCreateTodo Permission = "create_todo"
	PermViewTodos  Permission = "view_todos"
	PermEditTodo   Permission = "edit_todo"
	PermDeleteTodo Permission = "delete_todo"

	// Time and information.
	PermGetTime    Permission = "get_time"
	PermGetWeather Permission = "get_weather"

	// Administration.
	PermManageUsers  Permission = "manage_users"
	PermManageRoles  Permission = "manage_roles"
	PermViewLogs     Permission = "view_logs"
	PermRevokeTokens Permission = "revoke_tokens"
)

// Role names. Roles are static configuration, not created per-request.
const (
	RoleAdmin      = "admin"
	RoleUser       = "user"
	RoleGuest      = "guest"
	RoleRestricted = "restricted"
)

// WildcardAll grants every permission. It appears only in synthetic
// contexts (admin, auth-disabled mode), never in role tables.
const WildcardAll = "*:*"

var standardUserPermissions = []Permission{
	PermChat, PermViewMemory, PermSearchMemory,
	PermCreateCalendarEvent, PermViewCalendarEvents, PermEditCalendarEvent, PermDeleteCalendarEvent,
	PermCreateReminder, PermViewReminders, PermEditReminder, PermDeleteReminder,
	PermCreateTodo, PermViewTodos, PermEditTodo, PermDeleteTodo,
	PermGetTime, PermGetWeather,
}

// rolePermissions maps each role to its permission set.
var rolePermissions = map[string]map[Permission]struct{}{
	RoleAdmin: permSet(append(standardUserPermissions,
		PermManageUsers, PermManageRoles, PermViewLogs, PermRevokeTokens)),
	RoleUser: permSet(standardUserPermissions),
	RoleGuest: permSet([]Permission{
		PermChat, PermViewMemory,
		PermViewCalendarEvents, PermViewReminders, PermViewTodos,
		PermGetTime, PermGetWeather,
	}),
	RoleRestricted: permSet([]Permission{PermChat, PermGetTime}),
}

// functionPermissions maps callable assistant function names to the
// permission they require. Functions absent from this map are allowed
// for every authenticated caller.
var functionPermissions = map[string]Permission{
	"search_memories":       PermSearchMemory,
	"create_calendar_event": PermCreateCalendarEvent,
	"list_calendar_events":  PermViewCalendarEvents,
	"create_reminder":       PermCreateReminder,
	"list_reminders":        PermViewReminders,
	"create_todo":           PermCreateTodo,
	"list_todos":            PermViewTodos,
	"get_current_time":      PermGetTime,
	"get_weather":           PermGetWeather,
}

func permSet(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether the named role grants the permission.
// Unknown roles grant nothing.
func HasPermission(role string, perm Permission) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// RolePermissions returns the permission names granted to a role, or nil
// for an unknown role.
func RolePermissions(role string) []string {
	set, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, string(p))
	}
	return perms
}

// CanCallFunction reports whether the role may invoke the named
// function. Functions without a mapped permission are allowed.
func CanCallFunction(role, function string) bool {
	required, ok := functionPermissions[function]
	if !ok {
		return true
	}
	return HasPermission(role, required)
}

// FunctionPermission returns the permission required to call the named
// function, if one is mapped.
func FunctionPermission(function string) (Permission, bool) {
	p, ok := functionPermissions[function]
	return p, ok
}

// ContextHasPermission checks a connection context's resolved permission
// list, honoring wildcard entries: "resource:*" matches any
// "resource:<action>", and "*:*" (or the admin flag) matches everything.
func ContextHasPermission(ctx types.ConnectionContext, permission string) bool {
	if ctx.IsAdmin {
		return true
	}
	for _, held := range ctx.Permissions {
		if MatchPermission(held, permission) {
			return true
		}
	}
	return false
}

// MatchPermission reports whether a held permission entry grants the
// requested one, including wildcard prefix matching.
func MatchPermission(held, requested string) bool {
	if held == WildcardAll || held == requested {
		return true
	}
	if len(held) > 2 && held[len(held)-2:] == ":*" {
		prefix := held[:len(held)-1] // keep the colon
		return len(requested) > len(prefix) && requested[:len(prefix)] == prefix
	}
	return false
}

// PermissionDeniedError is raised when a user attempts an action without
// the required permission. It carries the acting user, the attempted
// action, and the missing permission for audit logging.
type PermissionDeniedError struct {
	UserID   string
	Action   string
	Required Permission
}

func (e *PermissionDeniedError) Error() string {
	if e.Required != "" {
		return fmt.Sprintf("user %s denied permission for action %q (requires %s)", e.UserID, e.Action, e.Required)
	}
	return fmt.Sprintf("user %s denied permission for action %q", e.UserID, e.Action)
}

// RequirePermission returns a PermissionDeniedError unless the role
// grants the permission.
func RequirePermission(userID, role string, perm Permission) error {
	if HasPermission(role, perm) {
		return nil
	}
	return &PermissionDeniedError{UserID: userID, Action: string(perm), Required: perm}
}

// RequireFunctionPermission returns a PermissionDeniedError unless the
// role may invoke the named function.
func RequireFunctionPermission(userID, role, function string) error {
	if CanCallFunction(role, function) {
		return nil
	}
	required, _ := functionPermissions[function]
	return &PermissionDeniedError{
		UserID:   userID,
		Action:   fmt.Sprintf("call function %q", function),
		Required: required,
	}
}
