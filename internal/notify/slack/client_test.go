package slack

import (
	"context"
	"errors"
	"testing"

	slackapi "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/domain"
)

// fakeAPI is an in-memory stand-in for *slack.Client, recording every call
// instead of reaching the network.
type fakeAPI struct {
	posts   []string
	updates []string
	deletes []string
	reacted []string

	postErr, updateErr, deleteErr, reactErr error
	postTS                                  string
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, _ ...slackapi.MsgOption) (string, string, error) {
	f.posts = append(f.posts, channelID)
	if f.postErr != nil {
		return "", "", f.postErr
	}
	ts := f.postTS
	if ts == "" {
		ts = "111.111"
	}
	return channelID, ts, nil
}

func (f *fakeAPI) UpdateMessageContext(_ context.Context, channelID, timestamp string, _ ...slackapi.MsgOption) (string, string, string, error) {
	f.updates = append(f.updates, channelID+":"+timestamp)
	if f.updateErr != nil {
		return "", "", "", f.updateErr
	}
	return channelID, timestamp, "", nil
}

func (f *fakeAPI) DeleteMessageContext(_ context.Context, channelID, timestamp string) (string, string, error) {
	f.deletes = append(f.deletes, channelID+":"+timestamp)
	if f.deleteErr != nil {
		return "", "", f.deleteErr
	}
	return channelID, timestamp, nil
}

func (f *fakeAPI) AddReactionContext(_ context.Context, name string, _ slackapi.ItemRef) error {
	f.reacted = append(f.reacted, name)
	return f.reactErr
}

func TestClientSendReturnsChannelAndTimestamp(t *testing.T) {
	fake := &fakeAPI{postTS: "123.456"}
	client := newClientWithAPI(fake)

	channel, ts, err := client.Send(context.Background(), "C1", "hello", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "C1", channel)
	assert.Equal(t, "123.456", ts)
	assert.Equal(t, []string{"C1"}, fake.posts)
}

func TestClientUpdateWrapsAPIError(t *testing.T) {
	fake := &fakeAPI{updateErr: errors.New("message_not_found")}
	client := newClientWithAPI(fake)

	err := client.Update(context.Background(), "C1", "111.111", "hi", nil)
	require.Error(t, err)
	assert.True(t, IsResendError(err), "message_not_found must be recognized as a resend error")
}

func TestIsResendErrorOnlyMatchesKnownCodes(t *testing.T) {
	assert.False(t, IsResendError(nil))
	assert.False(t, IsResendError(errors.New("rate_limited")))
	assert.True(t, IsResendError(errors.New("cant_update_message")))
}

func TestColorForPrefersSolvedOverPriority(t *testing.T) {
	alert := domain.Alert{Status: domain.AlertSolved, Priority: domain.PriorityCritical}
	assert.Equal(t, solvedColor, ColorFor(alert))

	alert = domain.Alert{Status: domain.AlertActive, Priority: domain.PriorityCritical}
	assert.Equal(t, priorityColor[domain.PriorityCritical], ColorFor(alert))
}

func TestBuildAttachmentDropsNilBlocks(t *testing.T) {
	blocks := []slackapi.Block{HeaderBlock(""), SectionBlock("body"), nil}
	attachment := BuildAttachment(blocks, "", "fallback")

	assert.Len(t, attachment.Blocks.BlockSet, 1, "empty header and explicit nil must be dropped")
	assert.Equal(t, "#4d4d4d", attachment.Color, "empty color falls back to the default")
	assert.Equal(t, "fallback", attachment.Fallback)
}

func TestActionsBlockNilWithoutButtons(t *testing.T) {
	assert.Nil(t, ActionsBlock())
	assert.NotNil(t, ActionsBlock(MessageButton{Text: "Ack", ActionID: "a", Value: "1"}))
}
