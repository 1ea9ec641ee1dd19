package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"sort"
	"sync"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/wire"
)

// localID generates a client-side id for send operations so the echoed
// event can be matched back to the request.
func localID() string {
	var b [8]byte
	rand.Read(b[:])
	return "local-" + hex.EncodeToString(b[:])
}

// GetSelfUserStatus returns the calling user's identity.
func (c *Client) GetSelfUserStatus(ctx context.Context) (*wire.UserStatus, error) {
	body, err := c.call(ctx, wire.EndpointSelfUserStatus, wire.EncodeSelfUserStatus())
	if err != nil {
		return nil, err
	}
	return wire.DecodeSelfUserStatus(body)
}

// ListConversations returns the joined spaces and DMs.
func (c *Client) ListConversations(ctx context.Context, pageSize int) ([]wire.Conversation, error) {
	body, err := c.call(ctx, wire.EndpointPaginatedWorld, wire.EncodePaginatedWorld(pageSize))
	if err != nil {
		return nil, err
	}
	return wire.DecodeWorld(body)
}

// GetGroup looks up a single conversation.
func (c *Client) GetGroup(ctx context.Context, conversationID, kind string) (*wire.Conversation, error) {
	body, err := c.call(ctx, wire.EndpointGetGroup, wire.EncodeGetGroup(conversationID, kind))
	if err != nil {
		return nil, err
	}
	return wire.DecodeGroup(body)
}

// ListTopics fetches one raw topic-listing page. The index-keyed JSON
// request form is used whenever any cursor field is set; cursor
// pagination is unreliable in the binary form.
func (c *Client) ListTopics(ctx context.Context, p wire.ListTopicsParams) (*wire.TopicsPage, error) {
	var payload any
	if p.SortTimeCursor > 0 || p.TimestampCursor > 0 || p.AnchorTimestamp > 0 {
		payload = wire.EncodeListTopicsIndexed(p)
	} else {
		payload = wire.EncodeListTopicsBinary(p)
	}
	body, err := c.call(ctx, wire.EndpointListTopics, payload)
	if err != nil {
		return nil, err
	}
	return wire.DecodeTopicsPage(body)
}

// ListThreadMessages fetches one topic with its full reply sequence.
func (c *Client) ListThreadMessages(ctx context.Context, conversationID, kind, topicID string, pageSize int) (*wire.Topic, error) {
	body, err := c.call(ctx, wire.EndpointListMessages,
		wire.EncodeListThreadMessages(conversationID, kind, topicID, pageSize))
	if err != nil {
		return nil, err
	}
	return wire.DecodeThreadMessages(body)
}

// GetMembers returns the members of a conversation.
func (c *Client) GetMembers(ctx context.Context, conversationID, kind string) ([]wire.Sender, error) {
	body, err := c.call(ctx, wire.EndpointGetMembers, wire.EncodeGetMembers(conversationID, kind))
	if err != nil {
		return nil, err
	}
	return wire.DecodeMembers(body)
}

// CreateTopic sends a new top-level message to a conversation.
func (c *Client) CreateTopic(ctx context.Context, conversationID, kind, text string) (*wire.Topic, error) {
	body, err := c.call(ctx, wire.EndpointCreateTopic,
		wire.EncodeCreateTopic(conversationID, kind, text, localID()))
	if err != nil {
		return nil, err
	}
	return wire.DecodeCreateTopic(body)
}

// CreateMessage sends a reply into an existing topic.
func (c *Client) CreateMessage(ctx context.Context, conversationID, kind, topicID, text string) (*wire.Message, error) {
	body, err := c.call(ctx, wire.EndpointCreateMessage,
		wire.EncodeCreateMessage(conversationID, kind, topicID, text, localID()))
	if err != nil {
		return nil, err
	}
	return wire.DecodeCreateMessage(body)
}

// MarkGroupRead advances the conversation's read marker.
func (c *Client) MarkGroupRead(ctx context.Context, conversationID, kind string, lastReadMicros int64) error {
	_, err := c.call(ctx, wire.EndpointMarkGroupRead,
		wire.EncodeMarkGroupRead(conversationID, kind, lastReadMicros))
	return err
}

// GetPresence looks up presence for a set of users.
func (c *Client) GetPresence(ctx context.Context, userIDs []string) ([]wire.PresenceRecord, error) {
	body, err := c.call(ctx, wire.EndpointGetUserPresence, wire.EncodeGetPresence(userIDs))
	if err != nil {
		return nil, err
	}
	return wire.DecodePresence(body)
}

// CatchUpGroup fetches topics server-filtered to the [from, to]
// microsecond window.
func (c *Client) CatchUpGroup(ctx context.Context, conversationID, kind string, fromMicros, toMicros int64, pageSize int) ([]wire.Topic, error) {
	body, err := c.call(ctx, wire.EndpointCatchUpGroup,
		wire.EncodeCatchUpGroup(conversationID, kind, fromMicros, toMicros, pageSize))
	if err != nil {
		return nil, err
	}
	return wire.DecodeCatchUpGroup(body)
}

// PresenceAcrossConversations resolves the member sets of the given
// conversations concurrently, bounded by Config.Parallelism, then issues
// one presence lookup over the deduplicated user ids. A member lookup
// failure for one conversation skips that conversation.
func (c *Client) PresenceAcrossConversations(ctx context.Context, conversations []wire.Conversation) ([]wire.PresenceRecord, error) {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]bool)
	)
	sem := make(chan struct{}, c.config.Parallelism)

	for _, conversation := range conversations {
		wg.Add(1)
		go func(conv wire.Conversation) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			members, err := c.GetMembers(ctx, conv.ID, conv.Kind)
			if err != nil {
				log.Printf("⚠️  Failed to fetch members of %s: %v", conv.ID, err)
				return
			}
			mu.Lock()
			for _, m := range members {
				if m.ID != "" {
					seen[m.ID] = true
				}
			}
			mu.Unlock()
		}(conversation)
	}
	wg.Wait()

	if len(seen) == 0 {
		return nil, nil
	}
	userIDs := make([]string, 0, len(seen))
	for id := range seen {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	return c.GetPresence(ctx, userIDs)
}
