// Package hub fans websocket messages out to every connected viewer of the
// vision app's screen: state snapshots, preview frames and captured images.
package hub

import "github.com/gofiber/websocket/v2"

// MessageType selects the websocket frame used for a message.
type MessageType int

const (
	JSONMessage   MessageType = iota // text frame
	BinaryMessage                    // binary frame, JPEG bytes
)

// frameType maps the message type onto a websocket opcode.
func (t MessageType) frameType() int {
	if t == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Message is one broadcast payload. Data is shared by all clients and must
// not be modified after Broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps already encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps a binary payload such as a JPEG frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
