package ingest

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/infra/db"
)

// Failure reason strings surfaced to clients.
const (
	ReasonChannelPostingDisallowed = "channel_posting_disallowed"
	ReasonDirectMessageDisallowed  = "direct_message_disallowed"
	ReasonReadOnly                 = "read_only"
	ReasonClosed                   = "closed"
	ReasonArchived                 = "archived"
	ReasonInvalidContent           = "invalid_message_content"
	ReasonOriginalNotFound         = "original_message_not_found"
	ReasonThreadChannelMismatch    = "thread_channel_mismatch"
	ReasonThreadParentMismatch     = "thread_parent_mismatch"
)

// ContentRule checks one property of raw content and returns a violation
// message, or "" when satisfied. Rules beyond presence/length are supplied
// by the host application.
type ContentRule func(content string) string

func MaxLengthRule(max int) ContentRule {
	return func(content string) string {
		if utf8.RuneCountInString(content) > max {
			return fmt.Sprintf("content exceeds %d characters", max)
		}
		return ""
	}
}

// Validator enforces channel-status, content and thread-consistency
// invariants before persistence. It never mutates stored state.
type Validator struct {
	messages MessageStore
	threads  ThreadStore
	caps     chat.Capabilities
	rules    []ContentRule
}

func NewValidator(messages MessageStore, threads ThreadStore, caps chat.Capabilities, rules ...ContentRule) *Validator {
	return &Validator{
		messages: messages,
		threads:  threads,
		caps:     caps,
		rules:    rules,
	}
}

// ValidateChannel is the channel-status check. The capability predicate is
// consulted first; only when it denies do we distinguish why.
func (v *Validator) ValidateChannel(ctx context.Context, userID uuid.UUID, channel *chat.Channel) error {
	ok, err := v.caps.CanPost(ctx, userID, channel)
	if err != nil {
		return errors.Internal("capability check failed", err)
	}
	if ok {
		return nil
	}

	if channel.Direct {
		canDM, err := v.caps.CanDirectMessage(ctx, userID)
		if err != nil {
			return errors.Internal("capability check failed", err)
		}
		if !canDM {
			return errors.Forbidden("direct messaging is not allowed").
				WithReason(ReasonDirectMessageDisallowed)
		}
	}

	switch channel.Status {
	case chat.ChannelReadOnly:
		return errors.Forbidden("channel is read-only").WithReason(ReasonReadOnly)
	case chat.ChannelClosed:
		return errors.Forbidden("channel is closed").WithReason(ReasonClosed)
	case chat.ChannelArchived:
		return errors.Forbidden("channel is archived").WithReason(ReasonArchived)
	default:
		return errors.Forbidden("posting in this channel is not allowed").
			WithReason(ReasonChannelPostingDisallowed)
	}
}

// ValidateContent requires non-empty content or at least one upload, then
// applies the configured content rules. Violations are joined into one
// failure.
func (v *Validator) ValidateContent(content string, uploadCount int) error {
	if strings.TrimSpace(content) == "" && uploadCount == 0 {
		return errors.Invalid("message must have content or uploads").
			WithReason(ReasonInvalidContent)
	}

	var violations []string
	for _, rule := range v.rules {
		if msg := rule(content); msg != "" {
			violations = append(violations, msg)
		}
	}
	if len(violations) > 0 {
		return errors.Invalid(strings.Join(violations, "; ")).
			WithReason(ReasonInvalidContent)
	}
	return nil
}

// ChainInfo is the resolved reply chain plus the thread it implies, handed
// to the pipeline so the chain is only walked once per request.
type ChainInfo struct {
	Entries []chat.ChainEntry
	// ImpliedThread is the thread already carried by the chain, nearest to
	// the root winning. Nil when no ancestor has one.
	ImpliedThread *uuid.UUID
}

func (c *ChainInfo) Root() chat.ChainEntry {
	return c.Entries[len(c.Entries)-1]
}

// ValidateChain resolves the reply chain and checks reply-chain existence
// and thread consistency. replyToID may be nil when threadID is given alone.
func (v *Validator) ValidateChain(ctx context.Context, q db.Querier, channel *chat.Channel, replyToID *int64, threadID *uuid.UUID, depthLimit int) (*ChainInfo, error) {
	var info *ChainInfo

	if replyToID != nil {
		entries, err := v.messages.ResolveChain(ctx, q, *replyToID, depthLimit)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.NotFound("original message not found").
					WithReason(ReasonOriginalNotFound)
			}
			return nil, err
		}

		info = &ChainInfo{Entries: entries}
		root := info.Root()
		if root.DeletedAt != nil {
			return nil, errors.NotFound("original message not found").
				WithReason(ReasonOriginalNotFound)
		}

		// Nearest-to-root thread wins as the implied thread.
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].ThreadID != nil {
				info.ImpliedThread = entries[i].ThreadID
				break
			}
		}
	}

	if threadID != nil {
		thread, err := v.threads.GetByID(ctx, q, *threadID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.NotFound("thread not found")
			}
			return nil, err
		}
		if thread.ChannelID != channel.ID {
			return nil, errors.Conflict("thread belongs to a different channel").
				WithReason(ReasonThreadChannelMismatch)
		}
		if info != nil && info.ImpliedThread != nil && *info.ImpliedThread != *threadID {
			return nil, errors.Conflict("thread does not match the reply chain").
				WithReason(ReasonThreadParentMismatch)
		}
	}

	return info, nil
}
