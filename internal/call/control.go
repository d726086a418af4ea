package call

import "github.com/vmihailenco/msgpack/v5"

// controlChannelLabel names the in-call data channel used for lightweight
// peer notices alongside the media tracks.
const controlChannelLabel = "control"

const controlTypeMuteState = "muteState"

// controlMessage is the envelope for all control channel traffic.
type controlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// muteStatePayload announces this side's current mute/camera flags.
type muteStatePayload struct {
	AudioMuted bool `msgpack:"audioMuted"`
	VideoOff   bool `msgpack:"videoOff"`
}

func encodeControl(t string, payload any) ([]byte, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(controlMessage{Type: t, Payload: b})
}

func decodeControl(data []byte) (*controlMessage, error) {
	var msg controlMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *controlMessage) decodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}
