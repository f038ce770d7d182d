package wsnotify

import "fmt"

// MessageType mirrors the websocket opcode of a frame.
type MessageType byte

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
	CloseMessage  MessageType = 8
	PingMessage   MessageType = 9
	PongMessage   MessageType = 10
)

func (t MessageType) Is(other MessageType) bool {
	return t == other
}

func (t MessageType) IsText() bool {
	return t.Is(TextMessage)
}

func (t MessageType) IsControl() bool {
	return t >= CloseMessage
}

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "TEXT"
	case BinaryMessage:
		return "BIN"
	case CloseMessage:
		return "CLOSE"
	case PingMessage:
		return "PING"
	case PongMessage:
		return "PONG"
	default:
		return fmt.Sprintf("OPCODE(%d)", byte(t))
	}
}

// Message is a single frame as seen by the transport.
type Message interface {
	Type() MessageType
	Data() []byte
	String() string
}

type message struct {
	MessageType MessageType
	MessageData []byte
}

func (m message) Type() MessageType {
	return m.MessageType
}

func (m message) Data() []byte {
	return m.MessageData
}

func (m message) String() string {
	return fmt.Sprintf("Message{type=%s,data=%s}", m.MessageType, m.MessageData)
}

func NewMessage(mt MessageType, data []byte) Message {
	return message{MessageType: mt, MessageData: data}
}

func NewTextMessage(data []byte) Message {
	return NewMessage(TextMessage, data)
}

func NewBinaryMessage(data []byte) Message {
	return NewMessage(BinaryMessage, data)
}
