// Package lampproto defines the UTF-8 JSON payloads exchanged with LAN
// RGB lamps over IPv4/UDP datagrams, per the external interface table
// in spec section 6. There is no length framing beyond the datagram
// boundary: each datagram carries exactly one Envelope.
package lampproto

import "encoding/json"

// AccountTopicReserve is the fixed payload value for a discovery scan.
const AccountTopicReserve = "reserve"

// Envelope wraps every LAN lamp protocol message.
type Envelope struct {
	Msg Message `json:"msg"`
}

// Message carries a command name (omitted on replies) and its data.
type Message struct {
	Cmd  string `json:"cmd,omitempty"`
	Data Data   `json:"data"`
}

// Color is an RGB triple used by the colorwc command and devStatus replies.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Data is the union of every field any command or reply may carry.
// Outbound commands only ever populate the fields their own command
// needs; inbound replies are decoded with pointer fields so a field a
// firmware variant omits decodes as nil ("unknown"), never as a zero
// value — see spec section 9's open question on devStatus parsing.
type Data struct {
	// Discovery request.
	AccountTopic string `json:"account_topic,omitempty"`

	// Discovery reply.
	Device string `json:"device,omitempty"`
	IP     string `json:"ip,omitempty"`
	SKU    string `json:"sku,omitempty"`

	// turn / brightness command value.
	Value *int `json:"value,omitempty"`

	// colorwc command / devStatus reply.
	Color            *Color `json:"color,omitempty"`
	ColorTemInKelvin *int   `json:"colorTemInKelvin,omitempty"`

	// devStatus reply only.
	OnOff      *int `json:"onOff,omitempty"`
	Brightness *int `json:"brightness,omitempty"`
}

func intPtr(v int) *int { return &v }

// ScanRequest builds the discovery scan datagram payload.
func ScanRequest() Envelope {
	return Envelope{Msg: Message{
		Cmd:  "scan",
		Data: Data{AccountTopic: AccountTopicReserve},
	}}
}

// TurnRequest builds the power command payload. on=true sends value 1.
func TurnRequest(on bool) Envelope {
	v := 0
	if on {
		v = 1
	}
	return Envelope{Msg: Message{Cmd: "turn", Data: Data{Value: intPtr(v)}}}
}

// BrightnessRequest builds the brightness command payload. value must
// already be clamped to [1, 100] by the caller.
func BrightnessRequest(value int) Envelope {
	return Envelope{Msg: Message{Cmd: "brightness", Data: Data{Value: intPtr(value)}}}
}

// ColorRequest builds the colorwc command payload for an RGB color.
func ColorRequest(r, g, b uint8) Envelope {
	return Envelope{Msg: Message{Cmd: "colorwc", Data: Data{
		Color:            &Color{R: r, G: g, B: b},
		ColorTemInKelvin: intPtr(0),
	}}}
}

// ColorTempRequest builds the colorwc command payload for a color
// temperature in Kelvin. kelvin must already be clamped to [2000, 9000].
func ColorTempRequest(kelvin int) Envelope {
	return Envelope{Msg: Message{Cmd: "colorwc", Data: Data{
		Color:            &Color{},
		ColorTemInKelvin: intPtr(kelvin),
	}}}
}

// StatusRequest builds the devStatus query payload.
func StatusRequest() Envelope {
	return Envelope{Msg: Message{Cmd: "devStatus", Data: Data{}}}
}

// Marshal serializes an Envelope to the bytes sent in a single datagram.
func Marshal(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// ParseDiscoveryReply decodes a discovery reply datagram.
func ParseDiscoveryReply(b []byte) (device, ip, sku string, err error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return "", "", "", err
	}
	return e.Msg.Data.Device, e.Msg.Data.IP, e.Msg.Data.SKU, nil
}

// ParseStatusReply decodes a devStatus reply datagram into an Envelope
// so the caller can inspect which fields are present.
func ParseStatusReply(b []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(b, &e)
	return e, err
}
