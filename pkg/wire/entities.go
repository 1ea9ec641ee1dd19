package wire

// Conversation kinds
const (
	KindSpace = "space"
	KindDM    = "dm"
)

// Conversation is a group space or a direct message, as listed by the
// world endpoints. Immutable value.
type Conversation struct {
	ID   string
	Kind string // KindSpace or KindDM
	Name string
}

// Sender identifies a message author. Every field except ID is optional
// on the wire.
type Sender struct {
	ID        string
	Name      string
	AvatarURL string
	Email     string
}

// Message is a single chat message. Immutable once parsed.
type Message struct {
	ID              string
	TopicID         string
	SpaceID         string
	Sender          Sender
	CreateTimeMicros int64
	Text            string
	Attachments     []string
}

// Topic is a top-level thread within a conversation. Replies are ordered
// oldest first; the slice may be a truncated prefix when the server caps
// replies per topic (MoreReplies set). Expansion replaces the slice
// wholesale, never merges.
type Topic struct {
	ID             string
	SpaceID        string
	SortTimeMicros int64
	ReplyCount     int
	MoreReplies    bool
	Replies        []Message
}

// TopicsPage is the decoded form of one list-topics response, before any
// client-side filtering.
type TopicsPage struct {
	Topics            []Topic
	AnchorTimestamp   int64 // sort timestamp anchoring the pagination sequence
	ContainsLastTopic bool  // server reached the oldest topic
}

// UserStatus is the self-user lookup result.
type UserStatus struct {
	UserID string
}

// ===== PRESENCE =====

// Presence states
type Presence int

const (
	PresenceUndefined Presence = 0
	PresenceActive    Presence = 1
	PresenceInactive  Presence = 2
)

// Label returns the lowercase human label for the state.
func (p Presence) Label() string {
	switch p {
	case PresenceActive:
		return "active"
	case PresenceInactive:
		return "inactive"
	default:
		return "undefined"
	}
}

// Do-not-disturb states
type DnDState int

const (
	DnDUnknown   DnDState = 0
	DnDAvailable DnDState = 1
	DnDEnabled   DnDState = 2
)

func (d DnDState) Label() string {
	switch d {
	case DnDAvailable:
		return "available"
	case DnDEnabled:
		return "dnd"
	default:
		return "unknown"
	}
}

// CustomStatus is a user-set status line with optional expiry.
type CustomStatus struct {
	Text         string
	Emoji        string
	ExpiryMicros int64
}

// PresenceRecord is the normalized presence shape. The wire carries it in
// at least three structurally different wrappers; the decoder collapses
// all of them to this one record.
type PresenceRecord struct {
	UserID            string
	Presence          Presence
	PresenceLabel     string
	DnD               DnDState
	DnDLabel          string
	ActiveUntilMicros int64
	CustomStatus      *CustomStatus
}

// ===== STREAM FRAMES =====

// Stream frame event discriminators, as carried at position 0 of each
// push frame.
const (
	FrameMessage      = 1
	FrameTyping       = 2
	FrameReadReceipt  = 3
	FrameUserStatus   = 4
	FrameGroupChanged = 5
)

// StreamFrame is one decoded push frame from the realtime channel.
// Body holds the frame's raw payload positions for event-specific parsing.
type StreamFrame struct {
	Type    int
	GroupID string
	Body    Node
}
