package wire

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestEncodeListTopicsIndexedCursors(t *testing.T) {
	req := EncodeListTopicsIndexed(ListTopicsParams{
		ConversationID:  "AAAAspace01",
		Kind:            KindSpace,
		PageSize:        25,
		RepliesPerTopic: 10,
		SortTimeCursor:  1700000004999999,
		AnchorTimestamp: 1700000009000000,
	})

	// 64-bit cursor values must be decimal strings, not JSON numbers.
	if got := req["5"]; got != "1700000004999999" {
		t.Errorf("sort time cursor = %v (%T), want string", got, got)
	}
	if got := req["7"]; got != "1700000009000000" {
		t.Errorf("anchor timestamp = %v (%T), want string", got, got)
	}
	if _, ok := req["6"]; ok {
		t.Error("unset timestamp cursor must be omitted")
	}

	header, ok := req["1"].(map[string]any)
	if !ok {
		t.Fatalf("request header = %T, want map", req["1"])
	}
	if header["2"] != "2440378181258" {
		t.Errorf("client version = %v", header["2"])
	}

	group, ok := req["2"].(map[string]any)
	if !ok {
		t.Fatalf("group id = %T, want map", req["2"])
	}
	space, ok := group["1"].(map[string]any)
	if !ok || space["1"] != "AAAAspace01" {
		t.Errorf("group id = %v", group)
	}
}

func TestEncodeListTopicsBinaryFields(t *testing.T) {
	b := EncodeListTopicsBinary(ListTopicsParams{
		ConversationID: "AAAAspace01",
		Kind:           KindSpace,
		PageSize:       25,
		SortTimeCursor: 1700000004999999,
	})

	fields := make(map[protowire.Number]bool)
	for len(b) > 0 {
		num, _, n := protowire.ConsumeField(b)
		if n < 0 {
			t.Fatalf("invalid wire data at offset")
		}
		fields[num] = true
		b = b[n:]
	}

	for _, want := range []protowire.Number{1, 2, 3, 5} {
		if !fields[want] {
			t.Errorf("field %d missing from encoded request", want)
		}
	}
	if fields[4] || fields[6] || fields[7] {
		t.Errorf("unset optional fields must be omitted, got %v", fields)
	}
}

func TestEncodeGroupIDKinds(t *testing.T) {
	space := groupIDIndexed("AAAAspace01", KindSpace)
	if _, ok := space["1"]; !ok {
		t.Error("space id must use field 1")
	}
	dm := groupIDIndexed("123456789012345678901", KindDM)
	if _, ok := dm["3"]; !ok {
		t.Error("dm id must use field 3")
	}
}
