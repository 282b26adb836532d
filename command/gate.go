// Package command turns chat events into admin operations and gated actions.
//
// A Dispatcher owns the action snapshot, the cooldown ledger and the current session.
// Events are handled one at a time in arrival order, with precedence reload, then
// enable/disable, then viewer commands. Trusted users are matched case-insensitively
// against the snapshot in effect when the event is handled.
package command

import (
	"strings"

	"github.com/onnwee/livecue/config"
)

// IsTrusted reports whether user may issue admin commands under actions.
func IsTrusted(user string, actions *config.Actions) bool {
	user = strings.TrimSpace(user)
	if user == "" || actions == nil {
		return false
	}
	for _, u := range actions.TrustedUsers {
		if strings.EqualFold(strings.TrimSpace(u), user) {
			return true
		}
	}
	return false
}
