package xray

import "encoding/json"

// InboundSettings is the protocol-specific payload of an Inbound.
// Implementations: SocksInboundSettings, HTTPInboundSettings, VLESSInboundSettings,
// TrojanInboundSettings, DokodemoInboundSettings.
type InboundSettings interface {
	Protocol() Protocol
	isInboundSettings()
}

// SocksInboundSettings configures a socks listener.
// ip is only written when UDP is enabled.
type SocksInboundSettings struct {
	UDP bool
	IP  string
}

func (SocksInboundSettings) Protocol() Protocol { return ProtocolSocks }
func (SocksInboundSettings) isInboundSettings() {}

type socksInboundWire struct {
	UDP bool   `json:"udp,omitempty"`
	IP  string `json:"ip,omitempty"`
}

func (s SocksInboundSettings) MarshalJSON() ([]byte, error) {
	w := socksInboundWire{UDP: s.UDP}
	if s.UDP {
		w.IP = s.IP
	}
	return json.Marshal(w)
}

func (s *SocksInboundSettings) UnmarshalJSON(data []byte) error {
	var w socksInboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.UDP, s.IP = w.UDP, w.IP
	return nil
}

type HTTPInboundSettings struct {
	AllowTransparent bool          `json:"allowTransparent,omitempty"`
	UserLevel        int           `json:"userLevel,omitempty"`
	Accounts         []HTTPAccount `json:"accounts,omitempty"`
}

type HTTPAccount struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

func (HTTPInboundSettings) Protocol() Protocol { return ProtocolHTTP }
func (HTTPInboundSettings) isInboundSettings() {}

type VLESSInboundSettings struct {
	Decryption string          `json:"decryption,omitempty"`
	Clients    []VLESSClient   `json:"clients,omitempty"`
	Fallbacks  []VLESSFallback `json:"fallbacks,omitempty"`
}

type VLESSClient struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
	Email string `json:"email,omitempty"`
	Flow  string `json:"flow,omitempty"`
}

type VLESSFallback struct {
	Dest int    `json:"dest"`
	Xver int    `json:"xver,omitempty"`
	ALPN string `json:"alpn,omitempty"`
	Path string `json:"path,omitempty"`
}

func (VLESSInboundSettings) Protocol() Protocol { return ProtocolVLESS }
func (VLESSInboundSettings) isInboundSettings() {}

type TrojanInboundSettings struct {
	Clients   []TrojanClient   `json:"clients,omitempty"`
	Fallbacks []TrojanFallback `json:"fallbacks,omitempty"`
}

type TrojanClient struct {
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Level    int    `json:"level"`
}

type TrojanFallback struct {
	Dest int    `json:"dest"`
	Xver int    `json:"xver,omitempty"`
	ALPN string `json:"alpn,omitempty"`
}

func (TrojanInboundSettings) Protocol() Protocol { return ProtocolTrojan }
func (TrojanInboundSettings) isInboundSettings() {}

// DokodemoInboundSettings forwards everything to a fixed destination.
// The metrics pipeline listens through one of these.
type DokodemoInboundSettings struct {
	Address        string `json:"address,omitempty"`
	Port           int    `json:"port,omitempty"`
	Network        string `json:"network,omitempty"`
	FollowRedirect bool   `json:"followRedirect,omitempty"`
	UserLevel      int    `json:"userLevel,omitempty"`
}

func (DokodemoInboundSettings) Protocol() Protocol { return ProtocolDokodemo }
func (DokodemoInboundSettings) isInboundSettings() {}

// decodeInboundSettings dispatches on the discriminator. ok is false for a
// protocol outside the closed set, in which case the socks default is returned.
func decodeInboundSettings(p Protocol, raw json.RawMessage) (settings InboundSettings, ok bool, err error) {
	switch p {
	case ProtocolSocks:
		settings, err = decodeVariant[SocksInboundSettings](raw)
	case ProtocolHTTP:
		settings, err = decodeVariant[HTTPInboundSettings](raw)
	case ProtocolVLESS:
		settings, err = decodeVariant[VLESSInboundSettings](raw)
	case ProtocolTrojan:
		settings, err = decodeVariant[TrojanInboundSettings](raw)
	case ProtocolDokodemo:
		settings, err = decodeVariant[DokodemoInboundSettings](raw)
	default:
		return SocksInboundSettings{}, false, nil
	}
	return settings, true, err
}

// defaultInboundSettings returns the zero variant for p, socks when p is unknown.
func defaultInboundSettings(p Protocol) InboundSettings {
	settings, _, _ := decodeInboundSettings(p, nil)
	return settings
}

// decodeVariant decodes raw into T; an absent payload yields the zero value.
func decodeVariant[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
