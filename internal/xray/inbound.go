package xray

import (
	"encoding/json"
	"fmt"
)

const (
	DefaultListen       = "127.0.0.1"
	DefaultSocksPort    = 1080
	DefaultSocksTag     = "entry"
	DefaultDokodemoPort = 4433
)

// Inbound is a local listener.
type Inbound struct {
	Tag      string
	Protocol Protocol
	Listen   string
	Port     int
	Settings InboundSettings
	Sniffing *Sniffing

	// set by UnmarshalJSON when Protocol was not recognised
	unknownProtocol bool
}

type Sniffing struct {
	Enabled         bool     `json:"enabled,omitempty"`
	DestOverride    []string `json:"destOverride,omitempty"`
	MetadataOnly    bool     `json:"metadataOnly,omitempty"`
	DomainsExcluded []string `json:"domainsExcluded,omitempty"`
	RouteOnly       bool     `json:"routeOnly,omitempty"`
}

// DefaultSniffing returns sniffing enabled for http/tls/quic with push
// notification domains excluded.
func DefaultSniffing() *Sniffing {
	return &Sniffing{
		Enabled:      true,
		DestOverride: []string{"http", "tls", "quic"},
		DomainsExcluded: []string{
			"push.apple.com",
			"courier.push.apple.com",
			"dlg.io.mi.com",
		},
		RouteOnly: true,
	}
}

// NewSocksInbound returns the default local socks listener with UDP enabled.
func NewSocksInbound() Inbound {
	return Inbound{
		Tag:      DefaultSocksTag,
		Protocol: ProtocolSocks,
		Listen:   DefaultListen,
		Port:     DefaultSocksPort,
		Settings: SocksInboundSettings{UDP: true},
	}
}

// NewDokodemoInbound returns a dokodemo-door listener forwarding to localhost.
func NewDokodemoInbound() Inbound {
	return Inbound{
		Tag:      fmt.Sprintf("entry-%d", DefaultDokodemoPort),
		Protocol: ProtocolDokodemo,
		Listen:   DefaultListen,
		Port:     DefaultDokodemoPort,
		Settings: DokodemoInboundSettings{
			Address: DefaultListen,
			Network: "tcp",
		},
	}
}

// SetSettings replaces the payload and the discriminator together.
func (in *Inbound) SetSettings(s InboundSettings) {
	in.Settings = s
	in.Protocol = s.Protocol()
	in.unknownProtocol = false
}

type inboundWire struct {
	Tag      *string         `json:"tag"`
	Listen   *string         `json:"listen"`
	Port     *int            `json:"port"`
	Protocol *Protocol       `json:"protocol"`
	Settings json.RawMessage `json:"settings,omitempty"`
	Sniffing *Sniffing       `json:"sniffing,omitempty"`
}

func (in Inbound) MarshalJSON() ([]byte, error) {
	settings := in.Settings
	if settings == nil {
		settings = defaultInboundSettings(in.Protocol)
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s settings: %w", in.Protocol, err)
	}

	return json.Marshal(inboundWire{
		Tag:      &in.Tag,
		Listen:   &in.Listen,
		Port:     &in.Port,
		Protocol: &in.Protocol,
		Settings: raw,
		Sniffing: in.Sniffing,
	})
}

func (in *Inbound) UnmarshalJSON(data []byte) error {
	var w inboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch {
	case w.Tag == nil:
		return missingKey("inbound", "tag")
	case w.Listen == nil:
		return missingKey("inbound", "listen")
	case w.Port == nil:
		return missingKey("inbound", "port")
	case w.Protocol == nil:
		return missingKey("inbound", "protocol")
	}

	settings, known, err := decodeInboundSettings(*w.Protocol, w.Settings)
	if err != nil {
		return newDecodeError("inbound "+*w.Tag+": settings", err)
	}

	*in = Inbound{
		Tag:             *w.Tag,
		Protocol:        *w.Protocol,
		Listen:          *w.Listen,
		Port:            *w.Port,
		Settings:        settings,
		Sniffing:        w.Sniffing,
		unknownProtocol: !known,
	}
	return nil
}
