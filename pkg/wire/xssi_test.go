package wire

import (
	"errors"
	"testing"
)

func TestStripXSSIVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "prefix with newline", body: ")]}'\n{\"a\":1}"},
		{name: "prefix without newline", body: ")]}'{\"a\":1}"},
		{name: "bare json", body: "{\"a\":1}"},
		{name: "prefix with crlf", body: ")]}'\r\n{\"a\":1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := DecodeJSON("test", []byte(tt.body))
			if err != nil {
				t.Fatalf("DecodeJSON() error = %v", err)
			}
			m, ok := node.Raw().(map[string]any)
			if !ok {
				t.Fatalf("parsed value is %T, want object", node.Raw())
			}
			if m["a"] != float64(1) {
				t.Errorf("parsed object = %v, want {a: 1}", m)
			}
		})
	}
}

func TestStripXSSIIdempotent(t *testing.T) {
	body := []byte(")]}'\n[1,2,3]")
	once := StripXSSI(body)
	twice := StripXSSI(once)
	if string(once) != string(twice) {
		t.Errorf("second strip changed body: %q -> %q", once, twice)
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	_, err := DecodeJSON("list_topics", []byte(")]}'\n{broken"))
	if err == nil {
		t.Fatal("expected error for malformed body")
	}
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %T, want *ProtocolError", err)
	}
	if perr.Endpoint != "list_topics" {
		t.Errorf("Endpoint = %q, want list_topics", perr.Endpoint)
	}
}
