package wire

// Presence responses arrive in at least three wrapper shapes, depending
// on which backend variant serves the call:
//
//	shape A: [status, [item, item, ...]]     (single envelope)
//	shape B: [[status, [item, item, ...]]]   (doubly wrapped)
//	shape C: [item, item, ...]               (bare array)
//
// All three carry the same item layout and normalize to PresenceRecord:
//
//	item: p[0] = [userID], p[1] presence enum, p[2] dnd enum,
//	      p[3] active-until µs, p[4] = [text, emoji, expiry µs]
//
// Enum positions arrive as a number or its decimal-string form.

func looksLikePresenceItem(n Node) bool {
	return n.Index(0).Index(0).Str() != ""
}

func decodePresenceItem(p Node) (PresenceRecord, error) {
	userID := p.Index(0).Index(0).Str()
	if userID == "" {
		return PresenceRecord{}, protocolErr(EndpointGetUserPresence, "unrecognized presence shape", ErrMissingField)
	}

	presence := Presence(p.Index(1).Int())
	dnd := DnDState(p.Index(2).Int())

	record := PresenceRecord{
		UserID:            userID,
		Presence:          presence,
		PresenceLabel:     presence.Label(),
		DnD:               dnd,
		DnDLabel:          dnd.Label(),
		ActiveUntilMicros: p.Index(3).Int(),
	}

	if custom := p.Index(4); !custom.IsNull() && custom.Len() > 0 {
		record.CustomStatus = &CustomStatus{
			Text:         custom.Index(0).Str(),
			Emoji:        custom.Index(1).Str(),
			ExpiryMicros: custom.Index(2).Int(),
		}
	}
	return record, nil
}

// presenceItems locates the item list inside whichever wrapper shape the
// response used. Attempted in order: bare array, single envelope, doubly
// wrapped envelope.
func presenceItems(root Node) ([]Node, bool) {
	if items := root.List(); len(items) > 0 && looksLikePresenceItem(items[0]) {
		return items, true
	}
	if items := root.Index(1).List(); len(items) > 0 && looksLikePresenceItem(items[0]) {
		return items, true
	}
	if items := root.Index(0).Index(1).List(); len(items) > 0 && looksLikePresenceItem(items[0]) {
		return items, true
	}
	return nil, false
}

// DecodePresence normalizes a presence lookup response to one record per
// user, regardless of which wrapper shape the service chose.
func DecodePresence(body []byte) ([]PresenceRecord, error) {
	root, err := DecodeJSON(EndpointGetUserPresence, body)
	if err != nil {
		return nil, err
	}

	items, ok := presenceItems(root)
	if !ok {
		return nil, protocolErr(EndpointGetUserPresence, "unrecognized presence shape", ErrMalformedBody)
	}

	records := make([]PresenceRecord, 0, len(items))
	for _, item := range items {
		record, err := decodePresenceItem(item)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// DecodeStreamFrame decodes one push frame from the realtime channel:
// f[0] event type, f[1] group ref, remainder event payload.
func DecodeStreamFrame(data []byte) (*StreamFrame, error) {
	root, err := DecodeJSON("stream", data)
	if err != nil {
		return nil, err
	}

	frameType := int(root.Index(0).Int())
	if frameType == 0 {
		return nil, protocolErr("stream", "frame without a type discriminator", ErrMissingField)
	}
	groupID, _ := decodeGroupRef(root.Index(1))

	return &StreamFrame{
		Type:    frameType,
		GroupID: groupID,
		Body:    root.Index(2),
	}, nil
}
