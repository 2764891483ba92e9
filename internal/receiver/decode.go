package receiver

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/winghaptics/wwbridge/pkg/core"
)

// ErrMalformed marks a datagram that is not a valid telemetry packet.
var ErrMalformed = errors.New("malformed telemetry packet")

type wirePacket struct {
	Aircraft string                   `json:"aircraft"`
	Frame    *uint64                  `json:"frame"`
	Time     *float64                 `json:"time"`
	Leds     map[string]core.LedValue `json:"leds"`
	Payload  *core.Payload            `json:"payload"`
	Flight   *core.Flight             `json:"flight"`
	Engine   *core.Engine             `json:"engine"`
}

// Decode parses one datagram. frame and time are required; every sub-record is optional.
func Decode(data []byte) (*core.Packet, error) {
	var w wirePacket
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Frame == nil {
		return nil, fmt.Errorf("%w: missing frame", ErrMalformed)
	}
	if w.Time == nil {
		return nil, fmt.Errorf("%w: missing time", ErrMalformed)
	}

	return &core.Packet{
		Aircraft: w.Aircraft,
		Frame:    *w.Frame,
		Time:     *w.Time,
		Leds:     w.Leds,
		Payload:  w.Payload,
		Flight:   w.Flight,
		Engine:   w.Engine,
	}, nil
}
