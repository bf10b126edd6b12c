package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/common/errors"
	"github.com/strand-chat/strand/internal/infra/cache"
)

// MembershipCapabilities is the default capability predicate: posting
// requires membership, read-only channels accept staff only, closed and
// archived channels accept nobody. Membership lookups go through the
// cache-aside layer when one is configured.
type MembershipCapabilities struct {
	repo  *Repository
	cache *cache.AsidePattern
}

func NewMembershipCapabilities(repo *Repository, aside *cache.AsidePattern) *MembershipCapabilities {
	return &MembershipCapabilities{repo: repo, cache: aside}
}

const memberTTL = 30 * time.Second

// membershipEntry is the cached envelope. Member is nil for cached
// non-membership so negative lookups also skip the database.
type membershipEntry struct {
	Member *Member `json:"member"`
}

func (c *MembershipCapabilities) member(ctx context.Context, channelID, userID uuid.UUID) (*Member, error) {
	key := fmt.Sprintf("m:%s:%s", channelID.String(), userID.String())

	if c.cache != nil {
		entry, err := cache.GetOrLoad(ctx, c.cache, key, memberTTL, func() (*membershipEntry, error) {
			m, err := c.repo.GetMember(ctx, channelID, userID)
			if err != nil {
				if errors.IsNotFound(err) {
					return &membershipEntry{}, nil
				}
				return nil, err
			}
			return &membershipEntry{Member: m}, nil
		})
		if err == nil {
			return entry.Member, nil
		}
		// Cache trouble is not a reason to reject a post; fall through to
		// the direct lookup.
	}

	m, err := c.repo.GetMember(ctx, channelID, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (c *MembershipCapabilities) CanPost(ctx context.Context, userID uuid.UUID, channel *chat.Channel) (bool, error) {
	m, err := c.member(ctx, channel.ID, userID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}

	switch channel.Status {
	case chat.ChannelOpen:
		return true, nil
	case chat.ChannelReadOnly:
		return m.Staff, nil
	default:
		return false, nil
	}
}

func (c *MembershipCapabilities) CanDirectMessage(ctx context.Context, userID uuid.UUID) (bool, error) {
	return true, nil
}

func (c *MembershipCapabilities) IsStaff(ctx context.Context, userID, channelID uuid.UUID) (bool, error) {
	m, err := c.member(ctx, channelID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Staff, nil
}

var _ chat.Capabilities = (*MembershipCapabilities)(nil)
