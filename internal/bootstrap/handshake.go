// Package bootstrap implements the §6 bootstrap handshake: the small JSON
// object a freshly started host prints to stdout so an `ssh` invocation can
// discover how to join the session it just created.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema is the current bootstrap JSON schema version. Bump it on any
// breaking field change; readers of an older schema should still be able to
// parse the fields they understand, since unknown/absent fields are not
// errors.
const Schema = 1

// Handshake is the stable, versioned JSON object a host prints on stdout
// after starting, and an `ssh` invocation parses to discover how to join.
type Handshake struct {
	Schema             int      `json:"schema"`
	SessionID          string   `json:"session_id"`
	JoinCode           *string  `json:"join_code"`
	SessionServer      string   `json:"session_server"`
	ActiveTransport    string   `json:"active_transport"`
	Transports         []string `json:"transports"`
	PreferredTransport string   `json:"preferred_transport"`
	HostBinary         string   `json:"host_binary"`
	HostVersion        string   `json:"host_version"`
	Timestamp          int64    `json:"timestamp"`
	Command            []string `json:"command"`
	WaitForPeer        bool     `json:"wait_for_peer"`
}

// Encode marshals h as the single JSON line a host prints to stdout when
// invoked with --bootstrap-output=json.
func Encode(h Handshake) ([]byte, error) {
	if h.Schema == 0 {
		h.Schema = Schema
	}
	return json.Marshal(h)
}

// Parse extracts and decodes the handshake object from raw, which may
// contain surrounding noise (login-shell banners, MOTD, shell prompts)
// before and after the JSON object itself. It locates the first '{' and its
// matching closing '}' and decodes only that span; fields the decoder
// doesn't recognize are ignored rather than rejected, so a newer host talking
// to an older `ssh` client degrades gracefully.
func Parse(raw []byte) (*Handshake, error) {
	span, err := extractObject(raw)
	if err != nil {
		return nil, err
	}
	var h Handshake
	dec := json.NewDecoder(strings.NewReader(span))
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("bootstrap: decode handshake: %w", err)
	}
	return &h, nil
}

// extractObject returns the substring spanning the first '{' and its
// brace-matched closing '}', accounting for braces inside quoted strings so
// a string value like "{not json}" doesn't throw off the match.
func extractObject(raw []byte) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, b := range raw {
		if start == -1 {
			if b == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return string(raw[start : i+1]), nil
			}
		}
	}
	return "", fmt.Errorf("bootstrap: no complete JSON object found in input")
}
