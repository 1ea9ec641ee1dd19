package client

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Schachte/gchat-api-reverse-engineer-sub003/pkg/wire"
)

// DefaultPageSize is the topic page size used when callers leave it zero.
const DefaultPageSize = 30

// PageOptions parameterizes one fetched page. Cursor and window fields
// are microsecond sort timestamps; zero means unset.
type PageOptions struct {
	PageSize        int
	RepliesPerTopic int
	SortTimeCursor  int64
	TimestampCursor int64
	AnchorTimestamp int64
	SinceMicros     int64 // oldest instant of interest, inclusive
	UntilMicros     int64 // newest instant of interest, inclusive
}

// Pagination carries the cursor state to request the following page.
type Pagination struct {
	NextSortTimeCursor   int64
	NextTimestampCursor  int64
	AnchorTimestamp      int64
	HasMore              bool
	ReachedSinceBoundary bool
}

// Page is one filtered page of topics, with replies also flattened into
// a single message slice.
type Page struct {
	Topics     []wire.Topic
	Messages   []wire.Message
	Pagination Pagination
}

func flattenMessages(topics []wire.Topic) []wire.Message {
	var messages []wire.Message
	for _, t := range topics {
		messages = append(messages, t.Replies...)
	}
	return messages
}

// FetchPage fetches one topic-listing page and applies the since/until
// window. Topics newer than until are skipped without halting; the first
// topic older than since stops the page and forces HasMore off. The
// next sort-time cursor is the last included topic's sort time minus
// one: the server-side cursor is inclusive, so reusing the boundary
// value would re-return the topic already consumed.
func (c *Client) FetchPage(ctx context.Context, conversationID, kind string, opts PageOptions) (*Page, error) {
	if opts.SinceMicros > 0 && opts.UntilMicros > 0 && opts.SinceMicros > opts.UntilMicros {
		return nil, &PaginationError{Reason: fmt.Sprintf(
			"since (%d) is newer than until (%d)", opts.SinceMicros, opts.UntilMicros)}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	cursor := opts.SortTimeCursor
	if cursor == 0 && opts.UntilMicros > 0 {
		// No cursor yet: start the sequence at the until instant so the
		// first page does not waste its budget on topics we will skip.
		cursor = opts.UntilMicros
	}

	raw, err := c.ListTopics(ctx, wire.ListTopicsParams{
		ConversationID:  conversationID,
		Kind:            kind,
		PageSize:        opts.PageSize,
		RepliesPerTopic: opts.RepliesPerTopic,
		SortTimeCursor:  cursor,
		TimestampCursor: opts.TimestampCursor,
		AnchorTimestamp: opts.AnchorTimestamp,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{}
	var lastIncluded, lastProcessed int64
	reachedSince := false

	for _, topic := range raw.Topics {
		if opts.SinceMicros > 0 && topic.SortTimeMicros < opts.SinceMicros {
			reachedSince = true
			break
		}
		lastProcessed = topic.SortTimeMicros
		if opts.UntilMicros > 0 && topic.SortTimeMicros > opts.UntilMicros {
			continue
		}
		lastIncluded = topic.SortTimeMicros
		page.Topics = append(page.Topics, topic)
	}
	page.Messages = flattenMessages(page.Topics)

	// The first page establishes the anchor; later pages echo the one
	// they were given, never a recomputed value.
	anchor := opts.AnchorTimestamp
	if anchor == 0 {
		anchor = raw.AnchorTimestamp
	}

	// An empty raw page ends the sequence even when the server claims
	// more pages exist: with no topic to advance the cursor past, the
	// next request would repeat this one verbatim.
	hasMore := len(raw.Topics) > 0 && !raw.ContainsLastTopic && !reachedSince
	page.Pagination = Pagination{
		AnchorTimestamp:      anchor,
		NextTimestampCursor:  opts.TimestampCursor,
		HasMore:              hasMore,
		ReachedSinceBoundary: reachedSince,
	}
	if hasMore {
		if lastIncluded > 0 {
			page.Pagination.NextSortTimeCursor = lastIncluded - 1
		} else {
			// Every topic on this page was filtered out; advance past the
			// last raw topic so the sequence still makes progress.
			page.Pagination.NextSortTimeCursor = lastProcessed - 1
		}
	}
	return page, nil
}

// ExportOptions parameterizes a multi-page export.
type ExportOptions struct {
	PageSize        int
	RepliesPerTopic int
	SinceMicros     int64
	UntilMicros     int64
	MaxPages        int  // zero means unbounded
	ExpandReplies   bool // fetch full threads for truncated topics
}

// Batch is one page of exported topics handed to the export callback.
type Batch struct {
	PageNumber int
	Topics     []wire.Topic
	Messages   []wire.Message
}

// ExportChatBatches drives FetchPage across a conversation's history,
// invoking onBatch once per page. It stops when the server has no more
// pages, the since boundary is reached, MaxPages is hit, or onBatch
// returns an error. The context is checked before every fetch; a
// cancelled context fails with ErrAborted without issuing the call.
func (c *Client) ExportChatBatches(ctx context.Context, conversationID, kind string, opts ExportOptions, onBatch func(*Batch) error) error {
	pageNumber := 0
	pageOpts := PageOptions{
		PageSize:        opts.PageSize,
		RepliesPerTopic: opts.RepliesPerTopic,
		SinceMicros:     opts.SinceMicros,
		UntilMicros:     opts.UntilMicros,
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}

		page, err := c.FetchPage(ctx, conversationID, kind, pageOpts)
		if err != nil {
			return err
		}
		pageNumber++

		if opts.ExpandReplies {
			c.expandTruncatedTopics(ctx, conversationID, kind, page.Topics)
			page.Messages = flattenMessages(page.Topics)
		}

		if onBatch != nil {
			if err := onBatch(&Batch{PageNumber: pageNumber, Topics: page.Topics, Messages: page.Messages}); err != nil {
				return err
			}
		}

		if !page.Pagination.HasMore || page.Pagination.ReachedSinceBoundary {
			return nil
		}
		if opts.MaxPages > 0 && pageNumber >= opts.MaxPages {
			return nil
		}
		pageOpts.SortTimeCursor = page.Pagination.NextSortTimeCursor
		pageOpts.TimestampCursor = page.Pagination.NextTimestampCursor
		pageOpts.AnchorTimestamp = page.Pagination.AnchorTimestamp
	}
}

// expandTruncatedTopics replaces each truncated topic's reply prefix
// with the full thread. A failed expansion keeps the topic as returned,
// MoreReplies still set, and does not abort the batch.
func (c *Client) expandTruncatedTopics(ctx context.Context, conversationID, kind string, topics []wire.Topic) {
	for i := range topics {
		if !topics[i].MoreReplies {
			continue
		}
		full, err := c.ListThreadMessages(ctx, conversationID, kind, topics[i].ID, topics[i].ReplyCount)
		if err != nil {
			log.Printf("⚠️  Failed to expand topic %s: %v", topics[i].ID, err)
			continue
		}
		topics[i].Replies = full.Replies
		topics[i].MoreReplies = false
	}
}

// ThreadQuery parameterizes GetThreads.
type ThreadQuery struct {
	PageSize        int
	SinceMicros     int64
	UntilMicros     int64
	MaxPages        int
	DisableFallback bool // skip the client-side fallback on empty results
}

// GetThreads lists topics for a conversation. With a time window set it
// prefers the server-filtered catch-up listing; when that returns zero
// topics it falls back to fetching unfiltered pages and applying the
// window locally, unless the caller disabled the fallback.
func (c *Client) GetThreads(ctx context.Context, conversationID, kind string, q ThreadQuery) ([]wire.Topic, error) {
	if q.SinceMicros > 0 && q.UntilMicros > 0 && q.SinceMicros > q.UntilMicros {
		return nil, &PaginationError{Reason: fmt.Sprintf(
			"since (%d) is newer than until (%d)", q.SinceMicros, q.UntilMicros)}
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}

	if q.SinceMicros > 0 || q.UntilMicros > 0 {
		until := q.UntilMicros
		if until == 0 {
			until = time.Now().UnixMicro()
		}
		topics, err := c.CatchUpGroup(ctx, conversationID, kind, q.SinceMicros, until, q.PageSize)
		if err != nil {
			return nil, err
		}
		if len(topics) > 0 || q.DisableFallback {
			return topics, nil
		}
	}

	var topics []wire.Topic
	err := c.ExportChatBatches(ctx, conversationID, kind, ExportOptions{
		PageSize:    q.PageSize,
		SinceMicros: q.SinceMicros,
		UntilMicros: q.UntilMicros,
		MaxPages:    q.MaxPages,
	}, func(batch *Batch) error {
		topics = append(topics, batch.Topics...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return topics, nil
}
