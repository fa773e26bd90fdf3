// Package protocol implements the wire format for the `/xiaozhi/v1/`
// WebSocket subprotocol: JSON text frames (hello/listen/abort/iot/mcp/server)
// and binary audio frames, including the MQTT-gateway's 16-byte audio
// header when a session originates there.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeError is returned for malformed or unrecognized inbound frames. Per
// the engine's error taxonomy, callers log it and drop the frame — they do
// not tear the session down.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func badRequest(message string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message}
}

// AudioParams describes negotiated audio shape, carried in hello.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

// ClientHello is the client→server `hello` frame.
type ClientHello struct {
	Type        string         `json:"type"`
	AudioParams AudioParams    `json:"audio_params"`
	Features    map[string]any `json:"features,omitempty"`
}

// HasMCP reports whether the device opted into the device-side tool
// protocol via features.mcp.
func (h ClientHello) HasMCP() bool {
	v, ok := h.Features["mcp"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ClientListen is the client→server `listen` frame.
type ClientListen struct {
	Type  string `json:"type"`
	State string `json:"state"` // start | stop | detect
	Mode  string `json:"mode,omitempty"` // auto | manual | realtime
}

// ClientAbort is the client→server `abort` frame.
type ClientAbort struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ClientIOT is the client→server `iot` frame: device state descriptors and
// commands, passed through largely opaque to the tool layer.
type ClientIOT struct {
	Type       string         `json:"type"`
	Descriptor string         `json:"descriptor,omitempty"`
	State      map[string]any `json:"state,omitempty"`
}

// ClientMCP is the client→server `mcp` frame: a JSON-RPC-style envelope
// used when the device declared features.mcp.
type ClientMCP struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ClientServer is the client→server `server` administrative frame, e.g.
// requesting a mid-session agent config reload.
type ClientServer struct {
	Type string `json:"type"`
	Op   string `json:"op"`
	Args map[string]any `json:"args,omitempty"`
}

// DecodeClientMessage dispatches a text frame to its concrete type by its
// `type` discriminator.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type field")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame")
		}
		return msg, nil
	case "listen":
		var msg ClientListen
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid listen frame")
		}
		switch msg.State {
		case "start", "stop", "detect":
		default:
			return nil, badRequest("listen.state must be start, stop, or detect")
		}
		return msg, nil
	case "abort":
		var msg ClientAbort
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid abort frame")
		}
		return msg, nil
	case "iot":
		var msg ClientIOT
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid iot frame")
		}
		return msg, nil
	case "mcp":
		var msg ClientMCP
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid mcp frame")
		}
		return msg, nil
	case "server":
		var msg ClientServer
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid server frame")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type: " + typ)
	}
}

// ServerHello is the server's reply to hello, carrying negotiated audio
// params and a session token.
type ServerHello struct {
	Type        string      `json:"type"`
	SessionID   string      `json:"session_id"`
	AudioParams AudioParams `json:"audio_params"`
}

// ServerTTS carries a lifecycle marker (start/end) with optional sentence
// text, the outbound `tts` frame.
type ServerTTS struct {
	Type  string `json:"type"`
	State string `json:"state"` // start | end
	Text  string `json:"text,omitempty"`
}

// ServerSTT carries recognized user text, the outbound `stt` frame.
type ServerSTT struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerLLM carries LLM state (e.g. an emoji/state indicator), the outbound
// `llm` frame.
type ServerLLM struct {
	Type  string `json:"type"`
	State string `json:"state"`
	Emoji string `json:"emoji,omitempty"`
}

// ServerAudio frames audio when sent in a text envelope rather than binary.
type ServerAudio struct {
	Type     string `json:"type"`
	AudioB64 string `json:"audio_b64"`
}

// ServerNotice carries an administrative notice unrelated to the dialogue
// turn, e.g. a graceful-shutdown warning, the outbound `server` frame.
type ServerNotice struct {
	Type    string `json:"type"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// MQTTHeaderLen is the fixed length of the MQTT-gateway's binary audio
// frame header.
const MQTTHeaderLen = 16

// DecodeMQTTAudioFrame parses a binary audio frame that originated at the
// MQTT gateway: bytes [0:8) reserved, [8:12) big-endian timestamp
// (milliseconds), [12:16) big-endian audio length, audio payload follows.
// The exact layout of the reserved first 8 bytes is an open question (see
// SPEC_FULL.md / spec.md #9); this decoder does not interpret them.
func DecodeMQTTAudioFrame(frame []byte) (timestampMS uint32, audio []byte, err error) {
	if len(frame) < MQTTHeaderLen {
		return 0, nil, badRequest("mqtt audio frame shorter than header")
	}
	timestampMS = binary.BigEndian.Uint32(frame[8:12])
	audioLen := binary.BigEndian.Uint32(frame[12:16])
	if int(audioLen) > len(frame)-MQTTHeaderLen {
		return 0, nil, badRequest("mqtt audio frame length exceeds payload")
	}
	audio = frame[MQTTHeaderLen : MQTTHeaderLen+int(audioLen)]
	return timestampMS, audio, nil
}
