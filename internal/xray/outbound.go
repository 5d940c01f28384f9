package xray

import (
	"encoding/json"
	"fmt"
)

const (
	DirectTag = "direct"
	BlockTag  = "block"
)

// Outbound is an upstream the engine forwards traffic to.
type Outbound struct {
	Tag            string
	Protocol       Protocol
	Settings       OutboundSettings
	StreamSettings StreamSettings
	Mux            *Mux

	unknownProtocol bool
}

type Mux struct {
	Enabled         bool   `json:"enabled"`
	Concurrency     int    `json:"concurrency"`
	XUDPConcurrency int    `json:"xudpConcurrency"`
	XUDPProxyUDP443 string `json:"xudpProxyUDP443"`
}

// DefaultMux returns multiplexing switched off with the engine's default limits.
func DefaultMux() *Mux {
	return &Mux{
		Concurrency:     8,
		XUDPConcurrency: 16,
		XUDPProxyUDP443: "reject",
	}
}

// NewOutbound returns an outbound whose protocol is derived from settings.
// The side effects of SetProtocol apply.
func NewOutbound(tag string, settings OutboundSettings) Outbound {
	out := Outbound{
		Tag:            tag,
		StreamSettings: DefaultStreamSettings(),
	}
	out.SetProtocol(settings.Protocol())
	out.Settings = settings
	return out
}

// DirectOutbound returns the freedom outbound tagged "direct".
func DirectOutbound() Outbound {
	return NewOutbound(DirectTag, FreedomOutboundSettings{})
}

// BlockOutbound returns the blackhole outbound tagged "block".
func BlockOutbound() Outbound {
	return NewOutbound(BlockTag, BlackholeOutboundSettings{})
}

// SetProtocol changes the discriminator and keeps dependent fields consistent:
//   - trojan forces raw transport with TLS security;
//   - a settings variant that belongs to another protocol is replaced by
//     the default variant of p.
func (o *Outbound) SetProtocol(p Protocol) {
	if p == ProtocolTrojan {
		o.StreamSettings.Network = NetworkRaw
		o.StreamSettings.Security = SecurityTLS
	}
	if o.Settings == nil || o.Settings.Protocol() != p {
		o.Settings = defaultOutboundSettings(p)
	}
	o.Protocol = p
	o.unknownProtocol = false
}

// Valid reports whether the outbound can be referenced by rules.
func (o Outbound) Valid() bool {
	return o.Tag != ""
}

type outboundWire struct {
	Tag            *string         `json:"tag"`
	Protocol       *Protocol       `json:"protocol"`
	StreamSettings *StreamSettings `json:"streamSettings,omitempty"`
	Settings       json.RawMessage `json:"settings,omitempty"`
	Mux            *Mux            `json:"mux,omitempty"`
}

func (o Outbound) MarshalJSON() ([]byte, error) {
	settings := o.Settings
	if settings == nil {
		settings = defaultOutboundSettings(o.Protocol)
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s settings: %w", o.Protocol, err)
	}

	return json.Marshal(outboundWire{
		Tag:            &o.Tag,
		Protocol:       &o.Protocol,
		StreamSettings: &o.StreamSettings,
		Settings:       raw,
		Mux:            o.Mux,
	})
}

func (o *Outbound) UnmarshalJSON(data []byte) error {
	var w outboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Tag == nil {
		return missingKey("outbound", "tag")
	}
	if w.Protocol == nil {
		return missingKey("outbound", "protocol")
	}

	settings, known, err := decodeOutboundSettings(*w.Protocol, w.Settings)
	if err != nil {
		return newDecodeError("outbound "+*w.Tag+": settings", err)
	}

	stream := DefaultStreamSettings()
	if w.StreamSettings != nil {
		stream = *w.StreamSettings
	}

	*o = Outbound{
		Tag:             *w.Tag,
		Protocol:        *w.Protocol,
		Settings:        settings,
		StreamSettings:  stream,
		Mux:             w.Mux,
		unknownProtocol: !known,
	}
	return nil
}
