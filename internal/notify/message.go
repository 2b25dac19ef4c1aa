// Package notify fans out capsule opened notifications to owners and recipients.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/time-capsule/internal/model"
)

// Notifier delivers one message to one address.
type Notifier interface {
	Send(ctx context.Context, address, subject, body string) error
}

// Message is a rendered notification for a single address.
type Message struct {
	Address string
	Role    model.Role
	Subject string
	Body    string
}

// NeedsOwner reports whether the owner is notified when c opens.
func NeedsOwner(c model.Capsule) bool {
	return c.SendToSelf || len(c.Recipients) == 0
}

// BuildMessages renders the owner message (when NeedsOwner and ownerEmail is known)
// followed by one message per recipient. A recipient equal to ownerEmail is not messaged twice.
func BuildMessages(c model.Capsule, openedAt time.Time, ownerEmail, viewURL string) []Message {
	out := make([]Message, 0, len(c.Recipients)+1)
	link := ""
	if viewURL != "" {
		link = strings.TrimRight(viewURL, "/") + "/capsules/" + c.ID.String()
	}
	owner := strings.ToLower(strings.TrimSpace(ownerEmail))
	if NeedsOwner(c) && owner != "" {
		out = append(out, Message{
			Address: owner,
			Role:    model.RoleOwner,
			Subject: fmt.Sprintf("Your time capsule %q is open", c.Title),
			Body:    body("The time capsule you sealed", c, openedAt, link),
		})
	}
	for _, r := range c.Recipients {
		if r == owner && NeedsOwner(c) {
			continue
		}
		out = append(out, Message{
			Address: r,
			Role:    model.RoleRecipient,
			Subject: fmt.Sprintf("A time capsule was opened for you: %q", c.Title),
			Body:    body("A time capsule shared with you", c, openedAt, link),
		})
	}
	return out
}

func body(lead string, c model.Capsule, openedAt time.Time, link string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %q, opened on %s.\n", lead, c.Title, openedAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	fmt.Fprintf(&b, "It was scheduled for %s.\n", c.OpenAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST"))
	if link != "" {
		fmt.Fprintf(&b, "\nRead it at %s\n", link)
	}
	return b.String()
}
