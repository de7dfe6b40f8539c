// Package slack implements a monitor.Notifier that renders alerts as Slack
// messages, translated from original_source/src/plugins/slack/slack.py and
// original_source/src/plugins/slack/notifications/slack_notification.py.
package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/aristath/sentinel/internal/domain"
)

// resendErrors lists the Slack API error strings that mean a previously
// sent message is gone (deleted, or the channel's history rolled past it)
// and update must fall back to sending a fresh message instead, matching
// the original's RESEND_ERRORS.
var resendErrors = map[string]bool{
	"message_not_found":   true,
	"cant_update_message": true,
}

// priorityColor maps an alert priority to the attachment color Slack
// renders down its left edge, matching the original's PRIORITY_COLOR.
var priorityColor = map[domain.AlertPriority]string{
	domain.PriorityCritical:      "#ff4d4d",
	domain.PriorityHigh:          "#ff9900",
	domain.PriorityModerate:      "#ffcc00",
	domain.PriorityLow:           "#4d94ff",
	domain.PriorityInformational: "#a0a0a0",
}

// solvedColor is the attachment color for an alert that has solved,
// matching the original's PRIORITY_COLOR["solved"].
const solvedColor = "#a0ffa0"

// ColorFor returns the attachment color for alert's current state:
// solvedColor once it has solved, otherwise its priority's color.
func ColorFor(alert domain.Alert) string {
	if alert.Status == domain.AlertSolved {
		return solvedColor
	}
	if c, ok := priorityColor[alert.Priority]; ok {
		return c
	}
	return priorityColor[domain.PriorityLow]
}

// MessageButton is one button in an actions block, mirroring the
// original's MessageButton dataclass.
type MessageButton struct {
	Text     string
	ActionID string
	Value    string
}

// api is the slice of *slack.Client this package drives - narrowed to an
// interface so tests can swap in a fake instead of hitting the network.
type api interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	DeleteMessageContext(ctx context.Context, channelID, timestamp string) (string, string, error)
	AddReactionContext(ctx context.Context, name string, item slack.ItemRef) error
}

// Client wraps a Slack API token, the Go analogue of slack.py's module
// level AsyncWebClient built from os.environ["SLACK_TOKEN"].
type Client struct {
	api api
}

// NewClient builds a Client bound to token.
func NewClient(token string) *Client {
	return &Client{api: slack.New(token)}
}

// newClientWithAPI builds a Client around an arbitrary api implementation -
// used by tests to avoid real Slack calls.
func newClientWithAPI(a api) *Client {
	return &Client{api: a}
}

// HeaderBlock renders a bold header line, or nil if text is empty -
// mirrors get_header_block.
func HeaderBlock(text string) slack.Block {
	if text == "" {
		return nil
	}
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, false, false))
}

// ContextBlock renders one or more small context lines, or nil if none
// are given - mirrors get_context_block.
func ContextBlock(elementsTexts ...string) slack.Block {
	if len(elementsTexts) == 0 {
		return nil
	}
	elements := make([]slack.MixedElement, 0, len(elementsTexts))
	for _, text := range elementsTexts {
		if text == "" {
			continue
		}
		elements = append(elements, slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
	}
	if len(elements) == 0 {
		return nil
	}
	return slack.NewContextBlock("", elements...)
}

// SectionBlock renders a single markdown section, or nil if text is empty
// - mirrors get_section_block.
func SectionBlock(text string) slack.Block {
	if text == "" {
		return nil
	}
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

// ActionsBlock renders a row of buttons, or nil if none are given -
// mirrors get_actions_block.
func ActionsBlock(buttons ...MessageButton) slack.Block {
	if len(buttons) == 0 {
		return nil
	}
	elements := make([]slack.BlockElement, 0, len(buttons))
	for _, b := range buttons {
		elements = append(elements, slack.NewButtonBlockElement(b.ActionID, b.Value,
			slack.NewTextBlockObject(slack.PlainTextType, b.Text, false, false)))
	}
	return slack.NewActionBlock("", elements...)
}

// BuildAttachment wraps blocks (dropping any nils get_*_block returned) in
// a single colored attachment, mirroring build_attachments.
func BuildAttachment(blocks []slack.Block, color, fallback string) slack.Attachment {
	var kept []slack.Block
	for _, b := range blocks {
		if b != nil {
			kept = append(kept, b)
		}
	}
	if color == "" {
		color = "#4d4d4d"
	}
	return slack.Attachment{
		Color:    color,
		Blocks:   slack.Blocks{BlockSet: kept},
		Fallback: fallback,
	}
}

// Send posts a new message, returning the channel id and timestamp Slack
// assigned it - mirrors slack.py's send().
func (c *Client) Send(ctx context.Context, channel, text string, attachments []slack.Attachment, threadTS string) (string, string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false), slack.MsgOptionAttachments(attachments...)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	respChannel, ts, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return "", "", fmt.Errorf("slack send: %w", err)
	}
	return respChannel, ts, nil
}

// Update edits an existing message in place - mirrors slack.py's update().
func (c *Client) Update(ctx context.Context, channel, ts, text string, attachments []slack.Attachment) error {
	_, _, _, err := c.api.UpdateMessageContext(ctx, channel, ts,
		slack.MsgOptionText(text, false), slack.MsgOptionAttachments(attachments...))
	if err != nil {
		return fmt.Errorf("slack update: %w", err)
	}
	return nil
}

// Delete removes a previously sent message - mirrors slack.py's delete().
func (c *Client) Delete(ctx context.Context, channel, ts string) error {
	_, _, err := c.api.DeleteMessageContext(ctx, channel, ts)
	if err != nil {
		return fmt.Errorf("slack delete: %w", err)
	}
	return nil
}

// AddReaction reacts to a message with an emoji - mirrors slack.py's
// add_reaction().
func (c *Client) AddReaction(ctx context.Context, channel, ts, reaction string) error {
	if err := c.api.AddReactionContext(ctx, reaction, slack.NewRefToMessage(channel, ts)); err != nil {
		return fmt.Errorf("slack add reaction: %w", err)
	}
	return nil
}

// IsResendError reports whether err's message names one of resendErrors,
// meaning Update should fall back to sending a fresh message.
func IsResendError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for code := range resendErrors {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
