package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(caps chat.Capabilities) *Validator {
	return NewValidator(newMemMessages(), newMemThreads(), caps, MaxLengthRule(100))
}

func TestValidateChannelReasons(t *testing.T) {
	member := uuid.New()
	caps := &fakeCaps{
		members: map[uuid.UUID]bool{member: true},
		staff:   map[uuid.UUID]bool{},
		canDM:   true,
	}
	v := newTestValidator(caps)
	ctx := context.Background()

	tests := []struct {
		name    string
		status  chat.ChannelStatus
		user    uuid.UUID
		reason  string
		allowed bool
	}{
		{"open channel member", chat.ChannelOpen, member, "", true},
		{"open channel non-member", chat.ChannelOpen, uuid.New(), ReasonChannelPostingDisallowed, false},
		{"read-only non-staff", chat.ChannelReadOnly, member, ReasonReadOnly, false},
		{"closed", chat.ChannelClosed, member, ReasonClosed, false},
		{"archived", chat.ChannelArchived, member, ReasonArchived, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			channel := &chat.Channel{ID: uuid.New(), Status: tc.status}
			err := v.ValidateChannel(ctx, tc.user, channel)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.reason, errors.ReasonOf(err))
		})
	}
}

func TestValidateChannelDirectMessageDenied(t *testing.T) {
	user := uuid.New()
	caps := &fakeCaps{members: map[uuid.UUID]bool{}, canDM: false}
	v := newTestValidator(caps)

	channel := &chat.Channel{ID: uuid.New(), Status: chat.ChannelOpen, Direct: true}
	err := v.ValidateChannel(context.Background(), user, channel)
	require.Error(t, err)
	assert.Equal(t, ReasonDirectMessageDisallowed, errors.ReasonOf(err))
}

func TestValidateContent(t *testing.T) {
	v := newTestValidator(&fakeCaps{})

	assert.NoError(t, v.ValidateContent("hello", 0))
	assert.NoError(t, v.ValidateContent("", 2), "uploads alone satisfy the presence rule")

	err := v.ValidateContent("  \n ", 0)
	require.Error(t, err)
	assert.Equal(t, ReasonInvalidContent, errors.ReasonOf(err))

	long := make([]rune, 101)
	for i := range long {
		long[i] = 'x'
	}
	err = v.ValidateContent(string(long), 0)
	require.Error(t, err)
	assert.Equal(t, ReasonInvalidContent, errors.ReasonOf(err))
}

func TestValidateChainImpliedThreadNearestRootWins(t *testing.T) {
	msgs := newMemMessages()
	threads := newMemThreads()
	v := NewValidator(msgs, threads, &fakeCaps{})
	channel := &chat.Channel{ID: uuid.New(), Status: chat.ChannelOpen}

	rootThread := uuid.New()
	midThread := uuid.New()
	root := msgs.add(&chat.Message{ChannelID: channel.ID, Content: "root", ThreadID: &rootThread})
	mid := msgs.add(&chat.Message{ChannelID: channel.ID, Content: "mid", ReplyToID: &root.ID, ThreadID: &midThread})
	leaf := msgs.add(&chat.Message{ChannelID: channel.ID, Content: "leaf", ReplyToID: &mid.ID})

	info, err := v.ValidateChain(context.Background(), nil, channel, &leaf.ID, nil, 100)
	require.NoError(t, err)
	require.NotNil(t, info.ImpliedThread)
	assert.Equal(t, rootThread, *info.ImpliedThread)
	assert.Equal(t, root.ID, info.Root().ID)
	assert.Len(t, info.Entries, 3)
}

func TestValidateChainDepthCap(t *testing.T) {
	msgs := newMemMessages()
	v := NewValidator(msgs, newMemThreads(), &fakeCaps{})
	channel := &chat.Channel{ID: uuid.New(), Status: chat.ChannelOpen}

	// Build a chain longer than the cap.
	var prev *int64
	var last int64
	for i := 0; i < 10; i++ {
		m := msgs.add(&chat.Message{ChannelID: channel.ID, Content: "m", ReplyToID: prev})
		id := m.ID
		prev = &id
		last = m.ID
	}

	info, err := v.ValidateChain(context.Background(), nil, channel, &last, nil, 5)
	require.NoError(t, err)
	assert.Len(t, info.Entries, 5, "resolution stops at the depth cap")
}
