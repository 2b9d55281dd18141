// Package codec implements the compact CBOR telemetry envelope exchanged with
// field devices, plus the greeting payload sent to freshly accepted connections.
package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Item tags understood by the dispatcher. Unknown tags are ignored upstream.
const (
	TagGNSS    = "GNSS"
	TagBattery = "BATTERY"
	TagSensor  = "Sensor"
	TagIOT     = "IOT"
)

// Envelope is one telemetry message from a device. Field names are kept short
// on the wire to match the firmware. The IMEI travels as a string so the full
// 15 digits survive without float precision loss.
type Envelope struct {
	Count  int    `cbor:"c"`
	IMEI   string `cbor:"i"`
	Uptime int64  `cbor:"t"`
	Items  []Item `cbor:"it"`
}

// Item is a tagged telemetry payload within an envelope. Data stays raw until
// the dispatcher knows the tag.
type Item struct {
	Tag  string          `cbor:"t"`
	Data cbor.RawMessage `cbor:"d"`
}

// GNSSData is the payload of a TagGNSS item. Time is device-reported unix seconds.
type GNSSData struct {
	Longitude float64 `cbor:"lo" json:"longitude"`
	Latitude  float64 `cbor:"la" json:"latitude"`
	Time      int64   `cbor:"t" json:"time"`
}

// BatteryData is the payload of a TagBattery item, percentage 0-100.
type BatteryData struct {
	Percent int `cbor:"b" json:"battery"`
}

// Greeting is pushed to every newly accepted connection.
type Greeting struct {
	Message string `cbor:"message" json:"message"`
	YourID  string `cbor:"yourId" json:"yourId"`
}

// DecodeError wraps a CBOR decode failure with enough context to log it
// without dumping the whole buffer.
type DecodeError struct {
	Len    int
	Prefix string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope (%d bytes, prefix %s): %v", e.Len, e.Prefix, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// encMode is configured once; deterministic map ordering so Encode output is
// stable across runs and round-trips through Decode.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient decoding: devices in the field may ship newer payloads.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// hexPrefixLen bounds how much of a bad buffer ends up in logs.
const hexPrefixLen = 16

func hexPrefix(data []byte) string {
	n := len(data)
	if n > hexPrefixLen {
		n = hexPrefixLen
	}
	return hex.EncodeToString(data[:n])
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decode parses one telemetry envelope. Failures come back as *DecodeError;
// trailing or truncated bytes are failures, never partial envelopes.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Len: len(data), Prefix: hexPrefix(data), Err: err}
	}
	return &env, nil
}

// Encode serializes an envelope for the reverse direction. Output round-trips
// through Decode.
func Encode(env *Envelope) ([]byte, error) {
	return encMode.Marshal(env)
}

// EncodeGreeting serializes the hello payload sent right after accept.
func EncodeGreeting(g *Greeting) ([]byte, error) {
	return encMode.Marshal(g)
}

// DecodeGreeting parses a greeting, used by device-role clients and tests.
func DecodeGreeting(data []byte) (*Greeting, error) {
	var g Greeting
	if err := decMode.Unmarshal(data, &g); err != nil {
		return nil, &DecodeError{Len: len(data), Prefix: hexPrefix(data), Err: err}
	}
	return &g, nil
}

// DecodeGNSS parses the payload of a TagGNSS item.
func (it *Item) DecodeGNSS() (*GNSSData, error) {
	var d GNSSData
	if err := decMode.Unmarshal(it.Data, &d); err != nil {
		return nil, fmt.Errorf("decode GNSS payload: %w", err)
	}
	return &d, nil
}

// DecodeBattery parses the payload of a TagBattery item.
func (it *Item) DecodeBattery() (*BatteryData, error) {
	var d BatteryData
	if err := decMode.Unmarshal(it.Data, &d); err != nil {
		return nil, fmt.Errorf("decode battery payload: %w", err)
	}
	return &d, nil
}

// NewItem builds a tagged item from an encodable payload. Used by the device
// simulator and tests.
func NewItem(tag string, payload any) (Item, error) {
	raw, err := encMode.Marshal(payload)
	if err != nil {
		return Item{}, fmt.Errorf("encode %s payload: %w", tag, err)
	}
	return Item{Tag: tag, Data: cbor.RawMessage(raw)}, nil
}
