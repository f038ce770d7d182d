package wsnotify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Envelope
	}{
		{
			name:  "connected",
			frame: `{"type":"connected","message":"hello","user_id":"42"}`,
			want:  ConnectedEnvelope{Message: "hello", UserID: "42"},
		},
		{
			name:  "connected without fields",
			frame: `{"type":"connected"}`,
			want:  ConnectedEnvelope{},
		},
		{
			name:  "pong",
			frame: `{"type":"pong"}`,
			want:  PongEnvelope{},
		},
		{
			name:  "subscribed",
			frame: `{"type":"subscribed","notification_types":["alerts","billing"]}`,
			want:  SubscribedEnvelope{Types: []string{"alerts", "billing"}},
		},
		{
			name:  "error",
			frame: `{"type":"error","message":"nope"}`,
			want:  ErrorEnvelope{Message: "nope"},
		},
		{
			name:  "notification",
			frame: `{"type":"notification","data":{"id":1,"tags":["x"]}}`,
			want:  DataEnvelope{Payload: Payload(`{"id":1,"tags":["x"]}`)},
		},
		{
			name:  "unknown kind",
			frame: `{"type":"presence","who":"bob"}`,
			want:  UnknownEnvelope{Type: "presence"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, env)
		})
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := map[string]string{
		"empty":        ``,
		"blank":        "  \n",
		"not json":     `{{{`,
		"missing type": `{"data":{"id":1}}`,
		"empty type":   `{"type":""}`,
		"wrong type":   `{"type":12}`,
		"array":        `[1,2]`,
	}

	for name, frame := range tests {
		t.Run(name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(frame))
			assert.ErrorIs(t, err, ErrDecode)
			assert.Nil(t, env)
		})
	}
}

func TestEncodeFrames(t *testing.T) {
	ping, err := EncodePing()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(ping))

	sub, err := EncodeSubscribe([]string{"a", "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","types":["a","b"]}`, string(sub))

	empty, err := EncodeSubscribe(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","types":[]}`, string(empty))
}

func TestEncodeMessage(t *testing.T) {
	raw, err := EncodeMessage([]byte(`{"already":"encoded"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"already":"encoded"}`, string(raw))

	text, err := EncodeMessage("hi")
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, string(text))

	obj, err := EncodeMessage(struct {
		Type string `json:"type"`
		N    int    `json:"n"`
	}{Type: "ack", N: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ack","n":3}`, string(obj))

	_, err = EncodeMessage(make(chan int))
	assert.ErrorIs(t, err, ErrEncode)
}

func TestPayload_Decode(t *testing.T) {
	type notification struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}

	p := Payload(`{"id":9,"title":"deploy finished"}`)

	got, err := DecodePayload[notification](p)
	require.NoError(t, err)
	assert.Equal(t, notification{ID: 9, Title: "deploy finished"}, got)

	var m map[string]any
	require.NoError(t, p.Decode(&m))
	assert.Equal(t, "deploy finished", m["title"])

	_, err = DecodePayload[notification](nil)
	assert.ErrorIs(t, err, ErrDecode)

	_, err = DecodePayload[notification](Payload(`[]`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestPayload_MarshalJSON(t *testing.T) {
	bts, err := Payload(nil).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(bts))

	bts, err = EncodeMessage(Event{Kind: EventData, Payload: Payload(`{"id":1}`)})
	require.NoError(t, err)
	assert.Contains(t, string(bts), `{"id":1}`)
}
