package udrone

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// MaxDatagram bounds a single encoded Message, matching the protocol's
// 32 KiB datagram ceiling.
const MaxDatagram = 32 * 1024

// Message is the self-describing envelope exchanged over the wire. Types
// beginning with "!" are control messages; all others are user commands.
type Message struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
	Seq  uint32 `json:"seq"`
	Data Data   `json:"data,omitempty"`
}

// IsControl reports whether the message type is a control verb rather than
// a user command.
func (m Message) IsControl() bool {
	return len(m.Type) > 0 && m.Type[0] == '!'
}

// encodeMessage serialises a Message to compact single-line JSON: no
// indentation, no HTML-escaping of payload bytes, no trailing newline. The
// protocol calls for a textual encoding, which is why this uses JSON rather
// than a binary codec such as cbor (see DESIGN.md).
func encodeMessage(m Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, errors.Wrap(err, "encode message")
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	if len(out) > MaxDatagram {
		return nil, errors.Errorf("encoded message exceeds max datagram size (%d > %d)", len(out), MaxDatagram)
	}
	return out, nil
}

// decodeMessage parses a datagram payload into a Message. Malformed
// payloads are reported via the ok return so callers can silently drop
// them, as required by the protocol (garbage on a multicast segment is
// routine, not exceptional).
func decodeMessage(payload []byte) (Message, bool) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, false
	}
	if m.From == "" || m.Type == "" {
		return Message{}, false
	}
	return m, true
}
