package xray

import "encoding/json"

// Transport network names.
const (
	NetworkRaw         = "raw"
	NetworkTCP         = "tcp"
	NetworkWebSocket   = "ws"
	NetworkHTTPUpgrade = "httpupgrade"
)

// Security layer names.
const (
	SecurityNone    = "none"
	SecurityTLS     = "tls"
	SecurityReality = "reality"
)

// StreamSettings selects the transport and the security layer of an outbound.
// Only the sub-object matching Network and the one matching Security go on the wire.
type StreamSettings struct {
	Network             string
	Security            string
	RawSettings         RawSettings
	WSSettings          WebSocketSettings
	HTTPUpgradeSettings HTTPUpgradeSettings
	TLSSettings         TLSSettings
	RealitySettings     RealitySettings
}

// DefaultStreamSettings returns raw transport without security.
func DefaultStreamSettings() StreamSettings {
	return StreamSettings{
		Network:  NetworkRaw,
		Security: SecurityNone,
	}
}

func (s StreamSettings) usesRaw() bool {
	return s.Network == NetworkRaw || s.Network == NetworkTCP
}

type RawSettings struct {
	Header *RawHeader `json:"header,omitempty"`
}

type RawHeader struct {
	Type string `json:"type"`
}

type WebSocketSettings struct {
	AcceptProxyProtocol bool              `json:"acceptProxyProtocol,omitempty"`
	Path                string            `json:"path,omitempty"`
	Host                string            `json:"host,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	HeartbeatPeriod     int               `json:"heartbeatPeriod,omitempty"`
}

type HTTPUpgradeSettings struct {
	AcceptProxyProtocol bool              `json:"acceptProxyProtocol,omitempty"`
	Path                string            `json:"path,omitempty"`
	Host                string            `json:"host,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
}

type TLSSettings struct {
	ALPN          []string `json:"alpn,omitempty"`
	ServerName    string   `json:"serverName,omitempty"`
	Fingerprint   string   `json:"fingerprint,omitempty"`
	AllowInsecure bool     `json:"allowInsecure,omitempty"`
}

type RealitySettings struct {
	Show         bool     `json:"show,omitempty"`
	Target       string   `json:"target,omitempty"`
	Xver         int      `json:"xver,omitempty"`
	ServerNames  []string `json:"serverNames,omitempty"`
	PrivateKey   string   `json:"privateKey,omitempty"`
	MinClientVer string   `json:"minClientVer,omitempty"`
	MaxClientVer string   `json:"maxClientVer,omitempty"`
	ShortIDs     []string `json:"shortIds,omitempty"`
	Fingerprint  string   `json:"fingerprint,omitempty"`
	ServerName   string   `json:"serverName,omitempty"`
	PublicKey    string   `json:"publicKey,omitempty"`
	ShortID      string   `json:"shortId,omitempty"`
	SpiderX      string   `json:"spiderX,omitempty"`
}

type streamWire struct {
	Network             *string              `json:"network"`
	Security            *string              `json:"security"`
	RawSettings         *RawSettings         `json:"rawSettings,omitempty"`
	WSSettings          *WebSocketSettings   `json:"wsSettings,omitempty"`
	HTTPUpgradeSettings *HTTPUpgradeSettings `json:"httpupgradeSettings,omitempty"`
	TLSSettings         *TLSSettings         `json:"tlsSettings,omitempty"`
	RealitySettings     *RealitySettings     `json:"realitySettings,omitempty"`
}

func (s StreamSettings) MarshalJSON() ([]byte, error) {
	w := streamWire{
		Network:  &s.Network,
		Security: &s.Security,
	}

	switch {
	case s.usesRaw():
		w.RawSettings = &s.RawSettings
	case s.Network == NetworkWebSocket:
		w.WSSettings = &s.WSSettings
	case s.Network == NetworkHTTPUpgrade:
		w.HTTPUpgradeSettings = &s.HTTPUpgradeSettings
	}

	switch s.Security {
	case SecurityTLS:
		w.TLSSettings = &s.TLSSettings
	case SecurityReality:
		w.RealitySettings = &s.RealitySettings
	}

	return json.Marshal(w)
}

func (s *StreamSettings) UnmarshalJSON(data []byte) error {
	var w streamWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Network == nil {
		return missingKey("streamSettings", "network")
	}
	if w.Security == nil {
		return missingKey("streamSettings", "security")
	}

	decoded := StreamSettings{
		Network:  *w.Network,
		Security: *w.Security,
	}

	// sub-objects not selected by the discriminators are ignored
	switch {
	case decoded.usesRaw() && w.RawSettings != nil:
		decoded.RawSettings = *w.RawSettings
	case decoded.Network == NetworkWebSocket && w.WSSettings != nil:
		decoded.WSSettings = *w.WSSettings
	case decoded.Network == NetworkHTTPUpgrade && w.HTTPUpgradeSettings != nil:
		decoded.HTTPUpgradeSettings = *w.HTTPUpgradeSettings
	}

	switch {
	case decoded.Security == SecurityTLS && w.TLSSettings != nil:
		decoded.TLSSettings = *w.TLSSettings
	case decoded.Security == SecurityReality && w.RealitySettings != nil:
		decoded.RealitySettings = *w.RealitySettings
	}

	*s = decoded
	return nil
}
