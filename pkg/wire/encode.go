package wire

import (
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
)

// API endpoint names. These are externally imposed; do not rename.
const (
	EndpointSelfUserStatus  = "get_self_user_status"
	EndpointPaginatedWorld  = "paginated_world"
	EndpointGetGroup        = "get_group"
	EndpointListTopics      = "list_topics"
	EndpointListMessages    = "list_messages"
	EndpointGetMembers      = "get_members"
	EndpointCreateTopic     = "create_topic"
	EndpointCreateMessage   = "create_message"
	EndpointMarkGroupRead   = "mark_group_read_state"
	EndpointGetUserPresence = "get_user_presence"
	EndpointCatchUpGroup    = "catch_up_group"
)

// Request header constants, captured from the web client. client_version
// changes over time but old values keep working.
const (
	clientTypeWeb        = 1
	clientVersion        = 2440378181258
	spamInvitesSupported = 1
)

// World section types for the paginated world request.
const (
	sectionStarredRooms    = 2
	sectionNonStarredRooms = 5
	sectionAllDMPeople     = 7
	sectionAllRooms        = 8
)

// The schema is reverse-engineered and no .proto source exists, so
// requests are assembled field-by-field with protowire instead of
// generated message types. Field numbers below were captured from the
// web client's traffic and must not change.

func appendMessage(b []byte, num protowire.Number, inner []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendRequestHeader(b []byte) []byte {
	var caps []byte
	caps = protowire.AppendTag(caps, 1, protowire.VarintType)
	caps = protowire.AppendVarint(caps, spamInvitesSupported)

	var h []byte
	h = protowire.AppendTag(h, 1, protowire.VarintType)
	h = protowire.AppendVarint(h, clientTypeWeb)
	h = protowire.AppendTag(h, 2, protowire.VarintType)
	h = protowire.AppendVarint(h, clientVersion)
	h = appendMessage(h, 5, caps)

	return appendMessage(b, 1, h)
}

// requestHeaderIndexed is the index-keyed JSON rendering of the same
// header. 64-bit values are decimal strings, mirroring how the service
// itself serializes them.
func requestHeaderIndexed() map[string]any {
	return map[string]any{
		"1": clientTypeWeb,
		"2": strconv.FormatInt(clientVersion, 10),
		"5": map[string]any{"1": spamInvitesSupported},
	}
}

// appendGroupID encodes a conversation reference. Spaces and DMs use
// different oneof branches: space_id lives at field 1, dm_id at field 3.
func appendGroupID(b []byte, num protowire.Number, conversationID, kind string) []byte {
	var idMsg []byte
	idMsg = protowire.AppendTag(idMsg, 1, protowire.BytesType)
	idMsg = protowire.AppendString(idMsg, conversationID)

	var group []byte
	if kind == KindDM {
		group = appendMessage(group, 3, idMsg)
	} else {
		group = appendMessage(group, 1, idMsg)
	}
	return appendMessage(b, num, group)
}

func groupIDIndexed(conversationID, kind string) map[string]any {
	if kind == KindDM {
		return map[string]any{"3": map[string]any{"1": conversationID}}
	}
	return map[string]any{"1": map[string]any{"1": conversationID}}
}

// ===== LIST TOPICS =====

// ListTopicsParams parameterizes one topic-listing page. Cursor fields are
// microsecond sort timestamps; zero means unset.
type ListTopicsParams struct {
	ConversationID  string
	Kind            string
	PageSize        int
	RepliesPerTopic int
	SortTimeCursor  int64
	TimestampCursor int64
	AnchorTimestamp int64
}

// EncodeListTopicsBinary produces the binary schema-encoded request form.
// Works for plain (cursor-free) listing.
func EncodeListTopicsBinary(p ListTopicsParams) []byte {
	var b []byte
	b = appendRequestHeader(b)
	b = appendGroupID(b, 2, p.ConversationID, p.Kind)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.PageSize))
	if p.RepliesPerTopic > 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.RepliesPerTopic))
	}
	if p.SortTimeCursor > 0 {
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.SortTimeCursor))
	}
	if p.TimestampCursor > 0 {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.TimestampCursor))
	}
	if p.AnchorTimestamp > 0 {
		b = protowire.AppendTag(b, 7, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.AnchorTimestamp))
	}
	return b
}

// EncodeListTopicsIndexed produces the index-keyed JSON request form.
// Cursor pagination is unreliable in the binary form, so this form is
// required whenever any cursor field is set.
func EncodeListTopicsIndexed(p ListTopicsParams) map[string]any {
	req := map[string]any{
		"1": requestHeaderIndexed(),
		"2": groupIDIndexed(p.ConversationID, p.Kind),
		"3": p.PageSize,
	}
	if p.RepliesPerTopic > 0 {
		req["4"] = p.RepliesPerTopic
	}
	if p.SortTimeCursor > 0 {
		req["5"] = strconv.FormatInt(p.SortTimeCursor, 10)
	}
	if p.TimestampCursor > 0 {
		req["6"] = strconv.FormatInt(p.TimestampCursor, 10)
	}
	if p.AnchorTimestamp > 0 {
		req["7"] = strconv.FormatInt(p.AnchorTimestamp, 10)
	}
	return req
}

// ===== WORLD / GROUP =====

// EncodeSelfUserStatus builds the self-user lookup request.
func EncodeSelfUserStatus() []byte {
	var b []byte
	return appendRequestHeader(b)
}

// EncodePaginatedWorld builds the space/DM listing request covering all
// room sections plus DMs.
func EncodePaginatedWorld(pageSize int) []byte {
	var b []byte
	b = appendRequestHeader(b)

	for _, section := range []int{sectionAllRooms, sectionStarredRooms, sectionNonStarredRooms, sectionAllDMPeople} {
		var sectionMsg []byte
		sectionMsg = protowire.AppendTag(sectionMsg, 1, protowire.VarintType)
		sectionMsg = protowire.AppendVarint(sectionMsg, uint64(section))

		var req []byte
		req = protowire.AppendTag(req, 1, protowire.VarintType)
		req = protowire.AppendVarint(req, uint64(pageSize))
		req = appendMessage(req, 2, sectionMsg)

		b = appendMessage(b, 2, req)
	}

	// fetch_from_user_spaces + fetch_snippets_for_unnamed_rooms
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	return b
}

// EncodeGetGroup builds the single-conversation lookup request.
func EncodeGetGroup(conversationID, kind string) []byte {
	var b []byte
	b = appendRequestHeader(b)
	b = appendGroupID(b, 2, conversationID, kind)
	return b
}

// EncodeGetMembers builds the member lookup request.
func EncodeGetMembers(conversationID, kind string) []byte {
	var b []byte
	b = appendRequestHeader(b)
	b = appendGroupID(b, 2, conversationID, kind)
	return b
}

// ===== THREAD / SEND =====

// appendTopicID encodes a topic reference: group at field 1, topic string
// at field 2.
func appendTopicID(b []byte, num protowire.Number, conversationID, kind, topicID string) []byte {
	var t []byte
	t = appendGroupID(t, 1, conversationID, kind)
	t = protowire.AppendTag(t, 2, protowire.BytesType)
	t = protowire.AppendString(t, topicID)
	return appendMessage(b, num, t)
}

// EncodeListThreadMessages builds the full-thread message listing request.
func EncodeListThreadMessages(conversationID, kind, topicID string, pageSize int) []byte {
	var b []byte
	b = appendRequestHeader(b)
	b = appendTopicID(b, 2, conversationID, kind, topicID)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pageSize))
	return b
}

// EncodeCreateTopic builds the topic-creation (send) request.
func EncodeCreateTopic(conversationID, kind, text, localID string) []byte {
	var b []byte
	b = appendRequestHeader(b)
	b = appendGroupID(b, 2, conversationID, kind)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, text)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, localID)
	return b
}

// EncodeCreateMessage builds the reply-creation request.
func EncodeCreateMessage(conversationID, kind, topicID, text, localID string) []byte {
	var b []byte
	b = appendRequestHeader(b)
	b = appendTopicID(b, 2, conversationID, kind, topicID)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, text)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, localID)
	return b
}

// EncodeMarkGroupRead builds the mark-as-read request. lastReadMicros is
// the newest read timestamp.
func EncodeMarkGroupRead(conversationID, kind string, lastReadMicros int64) []byte {
	var b []byte
	b = appendRequestHeader(b)
	b = appendGroupID(b, 2, conversationID, kind)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(lastReadMicros))
	return b
}

// EncodeCatchUpGroup builds the server-filtered topic listing: the
// service returns topics whose sort time falls inside [from, to].
func EncodeCatchUpGroup(conversationID, kind string, fromMicros, toMicros int64, pageSize int) []byte {
	var b []byte
	b = appendRequestHeader(b)
	b = appendGroupID(b, 2, conversationID, kind)

	var window []byte
	window = protowire.AppendTag(window, 1, protowire.VarintType)
	window = protowire.AppendVarint(window, uint64(fromMicros))
	window = protowire.AppendTag(window, 2, protowire.VarintType)
	window = protowire.AppendVarint(window, uint64(toMicros))
	b = appendMessage(b, 3, window)

	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(pageSize))
	return b
}

// ===== STREAM =====

// EncodeStreamSubscribe builds the subscription frame covering a set of
// conversations. Stream frames always use the index-keyed JSON form.
func EncodeStreamSubscribe(conversations []Conversation) map[string]any {
	groups := make([]any, 0, len(conversations))
	for _, c := range conversations {
		groups = append(groups, groupIDIndexed(c.ID, c.Kind))
	}
	return map[string]any{
		"1": requestHeaderIndexed(),
		"2": groups,
	}
}

// EncodeStreamPing builds the application-level keep-alive frame.
func EncodeStreamPing() map[string]any {
	return map[string]any{
		"1": requestHeaderIndexed(),
		"3": 1,
	}
}

// ===== PRESENCE =====

// EncodeGetPresence builds the presence lookup request for a set of users.
func EncodeGetPresence(userIDs []string) []byte {
	var b []byte
	b = appendRequestHeader(b)
	for _, id := range userIDs {
		var u []byte
		u = protowire.AppendTag(u, 1, protowire.BytesType)
		u = protowire.AppendString(u, id)
		b = appendMessage(b, 2, u)
	}
	// include_user_statuses + include_active_until
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	return b
}
