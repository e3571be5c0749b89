// Package notify posts deploy outcomes to a chat.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorewood/briefship/internal/config"
	"github.com/gorewood/briefship/internal/history"
)

// maxMessageLen is Telegram's limit on message text.
const maxMessageLen = 4096

// Message is one notification.
type Message struct {
	Text    string
	Success bool
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Nop drops every message.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Message) error { return nil }

// ShouldNotify applies a notify.when mode to a deploy outcome.
func ShouldNotify(mode string, success bool) bool {
	switch mode {
	case config.NotifyAlways:
		return true
	case config.NotifyFailure:
		return !success
	default:
		return false
	}
}

// FormatDeploy renders rec as plain text.
func FormatDeploy(rec *history.Record) Message {
	var b strings.Builder
	if rec.Succeeded() {
		fmt.Fprintf(&b, "✅ deploy ok: %s\n", rec.InstanceID)
	} else {
		fmt.Fprintf(&b, "❌ deploy failed (%s): %s\n", rec.Outcome(), rec.InstanceID)
	}
	fmt.Fprintf(&b, "%s/%s @ %s\n", rec.Remote, rec.Branch, short(rec.Commit))

	if n := len(rec.Pushed); n > 0 {
		fmt.Fprintf(&b, "pushed %d commit%s, %d files (+%d -%d)\n",
			n, plural(n), rec.Changes.Files, rec.Changes.Insertions, rec.Changes.Deletions)
		for _, c := range rec.Pushed {
			fmt.Fprintf(&b, "  • %s %s\n", short(c.SHA), c.Subject)
		}
	}
	if rec.Status != "" {
		fmt.Fprintf(&b, "status %s, exit %d", rec.Status, rec.ResponseCode)
	} else {
		b.WriteString("not sent")
	}
	fmt.Fprintf(&b, ", took %s\n", rec.Duration().Round(time.Second))
	fmt.Fprintf(&b, "record %s\n", rec.ID)

	if !rec.Succeeded() {
		if rec.Error != "" {
			fmt.Fprintf(&b, "\n%s\n", rec.Error)
		}
		if tail := history.Tail(rec.StderrTail, 10); tail != "" {
			fmt.Fprintf(&b, "\n%s", tail)
		}
	}
	return Message{Text: truncate(b.String(), maxMessageLen), Success: rec.Succeeded()}
}

func short(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const marker = "\n…"
	cut := n - len(marker)
	// Back off to a rune boundary.
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + marker
}
