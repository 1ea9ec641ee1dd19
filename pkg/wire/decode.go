package wire

// Observed pblite layout, field number N lives at array index N-1.
//
//	group ref:  g[0] = [spaceID] for spaces, g[2] = [dmID] for DMs
//	topic ref:  [groupRef, topicID]
//	topic:      t[0] topic ref, t[1] sort time µs, t[4] reply count,
//	            t[5] has-more-replies, t[6] messages
//	message:    m[0] topic ref + id, m[1] creator, m[2] create time µs,
//	            m[9] text body, m[10] attachment refs
//	creator:    [[userID], name, avatarURL, email]

func decodeGroupRef(g Node) (id, kind string) {
	if s := g.Index(0).Index(0).Str(); s != "" {
		return s, KindSpace
	}
	if s := g.Index(2).Index(0).Str(); s != "" {
		return s, KindDM
	}
	return "", ""
}

func decodeSender(n Node) Sender {
	return Sender{
		ID:        n.Index(0).Index(0).Str(),
		Name:      n.Index(1).Str(),
		AvatarURL: n.Index(2).Str(),
		Email:     n.Index(3).Str(),
	}
}

func decodeMessage(endpoint string, m Node, topicID, spaceID string) (Message, error) {
	id := m.Index(0).Index(1).Str()
	if id == "" {
		return Message{}, protocolErr(endpoint, "message without an id", ErrMissingField)
	}

	var attachments []string
	for _, a := range m.Index(10).List() {
		// Attachment refs arrive either as bare strings or as
		// single-element wrappers.
		if s := a.Str(); s != "" {
			attachments = append(attachments, s)
		} else if s := a.Index(0).Str(); s != "" {
			attachments = append(attachments, s)
		}
	}

	return Message{
		ID:               id,
		TopicID:          topicID,
		SpaceID:          spaceID,
		Sender:           decodeSender(m.Index(1)),
		CreateTimeMicros: m.Index(2).Int(),
		Text:             m.Index(9).Str(),
		Attachments:      attachments,
	}, nil
}

func decodeTopic(endpoint string, t Node) (Topic, error) {
	ref := t.Index(0)
	id := ref.Index(1).Str()
	if id == "" {
		return Topic{}, protocolErr(endpoint, "topic without an id", ErrMissingField)
	}
	spaceID, _ := decodeGroupRef(ref.Index(0))

	topic := Topic{
		ID:             id,
		SpaceID:        spaceID,
		SortTimeMicros: t.Index(1).Int(),
		ReplyCount:     int(t.Index(4).Int()),
		MoreReplies:    t.Index(5).Bool(),
	}

	for _, m := range t.Index(6).List() {
		if m.IsNull() {
			continue
		}
		msg, err := decodeMessage(endpoint, m, id, spaceID)
		if err != nil {
			return Topic{}, err
		}
		topic.Replies = append(topic.Replies, msg)
	}
	return topic, nil
}

// DecodeTopicsPage decodes one raw list-topics response into topics in
// server order (newest first), plus the page-level pagination fields.
func DecodeTopicsPage(body []byte) (*TopicsPage, error) {
	root, err := DecodeJSON(EndpointListTopics, body)
	if err != nil {
		return nil, err
	}

	wrapper := root.Index(0)
	page := &TopicsPage{
		AnchorTimestamp:   wrapper.Index(3).Int(),
		ContainsLastTopic: wrapper.Index(4).Bool(),
	}

	for _, t := range wrapper.Index(1).List() {
		if t.IsNull() {
			continue
		}
		topic, err := decodeTopic(EndpointListTopics, t)
		if err != nil {
			return nil, err
		}
		page.Topics = append(page.Topics, topic)
	}
	return page, nil
}

// DecodeCatchUpGroup decodes the server-filtered topic listing. Same
// wrapper layout as list_topics but without pagination fields.
func DecodeCatchUpGroup(body []byte) ([]Topic, error) {
	root, err := DecodeJSON(EndpointCatchUpGroup, body)
	if err != nil {
		return nil, err
	}
	var topics []Topic
	for _, t := range root.Index(0).Index(1).List() {
		if t.IsNull() {
			continue
		}
		topic, err := decodeTopic(EndpointCatchUpGroup, t)
		if err != nil {
			return nil, err
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

// DecodeThreadMessages decodes a single-thread listing: the response
// carries one topic entity with its full reply sequence.
func DecodeThreadMessages(body []byte) (*Topic, error) {
	root, err := DecodeJSON(EndpointListMessages, body)
	if err != nil {
		return nil, err
	}
	topic, err := decodeTopic(EndpointListMessages, root.Index(0))
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

// DecodeSelfUserStatus extracts the caller's user id. The id position
// arrives either bare or wrapped in a one-element array.
func DecodeSelfUserStatus(body []byte) (*UserStatus, error) {
	root, err := DecodeJSON(EndpointSelfUserStatus, body)
	if err != nil {
		return nil, err
	}
	status := root.Index(0).Index(1)
	id := status.Index(0).Index(0).Str()
	if id == "" {
		id = status.Index(0).Index(0).Index(0).Str()
	}
	if id == "" {
		return nil, protocolErr(EndpointSelfUserStatus, "self user status without a user id", ErrMissingField)
	}
	return &UserStatus{UserID: id}, nil
}

// DecodeWorld decodes the space/DM listing. Items without a resolvable
// conversation reference are skipped rather than failing the listing.
func DecodeWorld(body []byte) ([]Conversation, error) {
	root, err := DecodeJSON(EndpointPaginatedWorld, body)
	if err != nil {
		return nil, err
	}

	var conversations []Conversation
	seen := make(map[string]bool)
	for _, item := range root.Index(0).Index(1).List() {
		id, kind := decodeGroupRef(item.Index(0))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		conversations = append(conversations, Conversation{
			ID:   id,
			Kind: kind,
			Name: item.Index(1).Str(),
		})
	}
	return conversations, nil
}

// DecodeGroup decodes a single-conversation lookup.
func DecodeGroup(body []byte) (*Conversation, error) {
	root, err := DecodeJSON(EndpointGetGroup, body)
	if err != nil {
		return nil, err
	}
	info := root.Index(0).Index(1)
	id, kind := decodeGroupRef(info.Index(0))
	if id == "" {
		return nil, protocolErr(EndpointGetGroup, "group without an id", ErrMissingField)
	}
	return &Conversation{ID: id, Kind: kind, Name: info.Index(1).Str()}, nil
}

// DecodeMembers decodes a member lookup into sender records.
func DecodeMembers(body []byte) ([]Sender, error) {
	root, err := DecodeJSON(EndpointGetMembers, body)
	if err != nil {
		return nil, err
	}
	var members []Sender
	for _, m := range root.Index(0).Index(1).List() {
		if m.IsNull() {
			continue
		}
		members = append(members, decodeSender(m))
	}
	return members, nil
}

// DecodeCreateTopic decodes the topic-creation response.
func DecodeCreateTopic(body []byte) (*Topic, error) {
	root, err := DecodeJSON(EndpointCreateTopic, body)
	if err != nil {
		return nil, err
	}
	topic, err := decodeTopic(EndpointCreateTopic, root.Index(0))
	if err != nil {
		return nil, err
	}
	return &topic, nil
}

// DecodeCreateMessage decodes the reply-creation response.
func DecodeCreateMessage(body []byte) (*Message, error) {
	root, err := DecodeJSON(EndpointCreateMessage, body)
	if err != nil {
		return nil, err
	}
	m := root.Index(0)
	ref := m.Index(0)
	spaceID, _ := decodeGroupRef(ref.Index(0).Index(0))
	msg, err := decodeMessage(EndpointCreateMessage, m, ref.Index(0).Index(1).Str(), spaceID)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
