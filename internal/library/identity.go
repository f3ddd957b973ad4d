package library

import (
	"strings"

	"github.com/ariefcatur/go-digital-library/internal/config"
	"github.com/ariefcatur/go-digital-library/internal/orders"
)

// Resolver maps an order onto the user whose library receives its items.
// The demo fallback only applies when explicitly enabled in configuration.
type Resolver struct {
	Demo config.DemoConfig
}

// ForOrder returns the target user id. viaDemo reports use of the demo fallback;
// ok is false when no identity can be derived.
func (r Resolver) ForOrder(o orders.Order) (userID string, viaDemo, ok bool) {
	if id := strings.TrimSpace(o.UserID); id != "" {
		return id, false, true
	}
	if r.Demo.Enabled && r.Demo.UserID != "" && r.Demo.Email != "" &&
		strings.EqualFold(strings.TrimSpace(o.CustomerEmail), r.Demo.Email) {
		return r.Demo.UserID, true, true
	}
	return "", false, false
}

// EmailFor returns the extra customer email whose unlinked orders belong to userID.
func (r Resolver) EmailFor(userID string) string {
	if r.Demo.Enabled && userID != "" && userID == r.Demo.UserID {
		return r.Demo.Email
	}
	return ""
}
