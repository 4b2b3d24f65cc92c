package handshake

import (
	"encoding/json"
	"strings"
)

// DisconnectMessage is a structured disconnect reason. Redial asks the
// client to reconnect through its launcher so it picks up fresh server
// parameters. Values carries diagnostic properties.
type DisconnectMessage struct {
	Reason string            `json:"reason"`
	Redial bool              `json:"redial,omitempty"`
	Values map[string]string `json:"values,omitempty"`
}

// Encode returns the wire form of m. Messages without redial or values are
// sent as plain text.
func (m DisconnectMessage) Encode() string {
	if !m.Redial && len(m.Values) == 0 {
		return m.Reason
	}
	b, err := json.Marshal(m)
	if err != nil {
		return m.Reason
	}
	return string(b)
}

// ParseDisconnect decodes a disconnect reason. Anything that is not a
// structured message is returned as a plain Reason.
func ParseDisconnect(s string) DisconnectMessage {
	if strings.HasPrefix(s, "{") {
		var m DisconnectMessage
		if err := json.Unmarshal([]byte(s), &m); err == nil && m.Reason != "" {
			return m
		}
	}
	return DisconnectMessage{Reason: s}
}
