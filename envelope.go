package wsnotify

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// EnvelopeKind is the value of the "type" field of a frame.
type EnvelopeKind string

const (
	KindConnected    EnvelopeKind = "connected"
	KindPong         EnvelopeKind = "pong"
	KindSubscribed   EnvelopeKind = "subscribed"
	KindError        EnvelopeKind = "error"
	KindNotification EnvelopeKind = "notification"

	KindPing      EnvelopeKind = "ping"
	KindSubscribe EnvelopeKind = "subscribe"
)

type (
	// Envelope is one decoded inbound frame.
	Envelope interface {
		Kind() EnvelopeKind
	}

	ConnectedEnvelope struct {
		Message string
		UserID  string
	}

	PongEnvelope struct{}

	SubscribedEnvelope struct {
		Types []string
	}

	ErrorEnvelope struct {
		Message string
	}

	DataEnvelope struct {
		Payload Payload
	}

	// UnknownEnvelope carries a well formed frame of a kind this client does not handle.
	UnknownEnvelope struct {
		Type string
	}
)

func (ConnectedEnvelope) Kind() EnvelopeKind  { return KindConnected }
func (PongEnvelope) Kind() EnvelopeKind       { return KindPong }
func (SubscribedEnvelope) Kind() EnvelopeKind { return KindSubscribed }
func (ErrorEnvelope) Kind() EnvelopeKind      { return KindError }
func (DataEnvelope) Kind() EnvelopeKind       { return KindNotification }
func (e UnknownEnvelope) Kind() EnvelopeKind  { return EnvelopeKind(e.Type) }

// Payload is the raw JSON application payload of a notification.
type Payload []byte

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	if len(p) == 0 {
		return errors.Wrap(ErrDecode, "empty payload")
	}
	if err := json.Unmarshal(p, v); err != nil {
		return errors.Wrap(ErrDecode, err.Error())
	}
	return nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

func (p Payload) String() string {
	return string(p)
}

// DecodePayload decodes p into a fresh T.
func DecodePayload[T any](p Payload) (T, error) {
	var v T
	err := p.Decode(&v)
	return v, err
}

type inboundFrame struct {
	Type              string   `json:"type"`
	Message           *string  `json:"message"`
	UserID            *string  `json:"user_id"`
	NotificationTypes []string `json:"notification_types"`
	Data              Payload  `json:"data"`
}

// DecodeEnvelope parses one text frame. Unrecognized kinds decode to UnknownEnvelope.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	if len(bytes.TrimSpace(frame)) == 0 {
		return nil, errors.Wrap(ErrDecode, "empty frame")
	}

	var in inboundFrame
	if err := json.Unmarshal(frame, &in); err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}

	switch EnvelopeKind(in.Type) {
	case "":
		return nil, errors.Wrap(ErrDecode, "missing type field")
	case KindConnected:
		return ConnectedEnvelope{Message: deref(in.Message), UserID: deref(in.UserID)}, nil
	case KindPong:
		return PongEnvelope{}, nil
	case KindSubscribed:
		return SubscribedEnvelope{Types: in.NotificationTypes}, nil
	case KindError:
		return ErrorEnvelope{Message: deref(in.Message)}, nil
	case KindNotification:
		return DataEnvelope{Payload: in.Data}, nil
	default:
		return UnknownEnvelope{Type: in.Type}, nil
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type (
	pingFrame struct {
		Type EnvelopeKind `json:"type"`
	}

	subscribeFrame struct {
		Type  EnvelopeKind `json:"type"`
		Types []string     `json:"types"`
	}
)

func EncodePing() ([]byte, error) {
	return encodeFrame(pingFrame{Type: KindPing})
}

func EncodeSubscribe(types []string) ([]byte, error) {
	if types == nil {
		types = []string{}
	}
	return encodeFrame(subscribeFrame{Type: KindSubscribe, Types: types})
}

// EncodeMessage serializes an arbitrary outbound value. Raw bytes are sent as is.
func EncodeMessage(v any) ([]byte, error) {
	switch raw := v.(type) {
	case []byte:
		return raw, nil
	case Payload:
		return raw, nil
	}
	return encodeFrame(v)
}

func encodeFrame(v any) ([]byte, error) {
	bts, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(ErrEncode, err.Error())
	}
	return bts, nil
}
