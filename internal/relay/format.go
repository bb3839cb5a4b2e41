package relay

import (
	"fmt"
	"time"
)

// FormatConversation renders a line of conversation the way pollers see it:
// "(conversation) (15:04:05) who: body". The clock is printed in the
// location of when.
func FormatConversation(conversation string, when time.Time, who, body string) string {
	if who == "" {
		return fmt.Sprintf("(%s) (%s) %s", conversation, when.Format("15:04:05"), body)
	}
	return fmt.Sprintf("(%s) (%s) %s: %s", conversation, when.Format("15:04:05"), who, body)
}

// FormatEmail renders a new-mail notification.
func FormatEmail(from, subject string) string {
	return fmt.Sprintf("~~ email ~~ %s: %s", from, subject)
}

// FormatSignedOn renders an account sign-on notice.
func FormatSignedOn(username, protocol string) string {
	return fmt.Sprintf("Account connected: %s %s", username, protocol)
}
