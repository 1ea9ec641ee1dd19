package wire

import (
	"bytes"
	"encoding/json"
)

// xssiPrefix is the anti-hijacking literal the service prepends to every
// protojson response body. It appears with or without a trailing newline.
const xssiPrefix = ")]}'"

// StripXSSI removes the anti-hijacking prefix from a response body.
// Stripping is idempotent: a body without the prefix is returned unchanged.
func StripXSSI(body []byte) []byte {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte(xssiPrefix)) {
		trimmed = trimmed[len(xssiPrefix):]
		trimmed = bytes.TrimLeft(trimmed, "\r\n")
	}
	return trimmed
}

// DecodeJSON strips the XSSI prefix and parses the remaining body as JSON.
func DecodeJSON(endpoint string, body []byte) (Node, error) {
	cleaned := StripXSSI(body)

	var v any
	if err := json.Unmarshal(cleaned, &v); err != nil {
		return Node{}, protocolErr(endpoint, "unparseable body after prefix strip", err)
	}
	return Node{v: v}, nil
}
