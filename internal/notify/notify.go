// Package notify posts run progress to Slack when a bot token and
// channel are configured. Everything is best-effort: a failed post is
// logged, never propagated.
package notify

import (
	"log"

	"github.com/slack-go/slack"
)

type Notifier struct {
	api       *slack.Client
	channelID string
}

// New returns a Notifier, or nil when Slack is not configured. A nil
// Notifier is safe to call.
func New(botToken, channelID string) *Notifier {
	if botToken == "" || channelID == "" {
		return nil
	}
	return &Notifier{api: slack.New(botToken), channelID: channelID}
}

func (n *Notifier) Post(text string) {
	if n == nil {
		return
	}
	_, _, err := n.api.PostMessage(n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("notify post error: %v", err)
	}
}
