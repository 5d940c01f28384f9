package xray

import "encoding/json"

// OutboundSettings is the protocol-specific payload of an Outbound.
// Implementations: HTTPOutboundSettings, SocksOutboundSettings, VLESSOutboundSettings,
// VMessOutboundSettings, TrojanOutboundSettings, ShadowsocksOutboundSettings,
// FreedomOutboundSettings, BlackholeOutboundSettings.
type OutboundSettings interface {
	Protocol() Protocol
	isOutboundSettings()
}

type HTTPOutboundSettings struct {
	Servers []HTTPServer `json:"servers,omitempty"`
}

type HTTPServer struct {
	Address string        `json:"address"`
	Port    int           `json:"port"`
	Users   []HTTPAccount `json:"users,omitempty"`
}

// NewHTTPSettings builds a single-server HTTP proxy upstream.
// Credentials are omitted when user is empty.
func NewHTTPSettings(host string, port int, user, pass string) HTTPOutboundSettings {
	server := HTTPServer{Address: host, Port: port}
	if user != "" {
		server.Users = append(server.Users, HTTPAccount{User: user, Pass: pass})
	}
	return HTTPOutboundSettings{Servers: []HTTPServer{server}}
}

func (HTTPOutboundSettings) Protocol() Protocol  { return ProtocolHTTP }
func (HTTPOutboundSettings) isOutboundSettings() {}

type SocksOutboundSettings struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []SocksUser `json:"users,omitempty"`
}

type SocksUser struct {
	User  string `json:"user"`
	Pass  string `json:"pass"`
	Level int    `json:"level"`
}

// NewSocksSettings builds a socks upstream; user may be empty for no auth.
func NewSocksSettings(host string, port int, user, pass string, level int) SocksOutboundSettings {
	settings := SocksOutboundSettings{Address: host, Port: port}
	if user != "" {
		settings.Users = append(settings.Users, SocksUser{User: user, Pass: pass, Level: level})
	}
	return settings
}

func (SocksOutboundSettings) Protocol() Protocol  { return ProtocolSocks }
func (SocksOutboundSettings) isOutboundSettings() {}

type VLESSOutboundSettings struct {
	VNext []VLESSServer `json:"vnext,omitempty"`
}

type VLESSServer struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []VLESSUser `json:"users,omitempty"`
}

type VLESSUser struct {
	ID         string `json:"id"`
	Encryption string `json:"encryption"`
	Flow       string `json:"flow,omitempty"`
	Level      int    `json:"level,omitempty"`
}

// NewVLESSSettings builds a single-user VLESS upstream. An empty encryption means "none".
func NewVLESSSettings(host string, port int, id, encryption, flow string, level int) VLESSOutboundSettings {
	if encryption == "" {
		encryption = "none"
	}
	return VLESSOutboundSettings{
		VNext: []VLESSServer{{
			Address: host,
			Port:    port,
			Users: []VLESSUser{{
				ID:         id,
				Encryption: encryption,
				Flow:       flow,
				Level:      level,
			}},
		}},
	}
}

func (VLESSOutboundSettings) Protocol() Protocol  { return ProtocolVLESS }
func (VLESSOutboundSettings) isOutboundSettings() {}

type VMessOutboundSettings struct {
	VNext []VMessServer `json:"vnext,omitempty"`
}

type VMessServer struct {
	Address string      `json:"address"`
	Port    int         `json:"port"`
	Users   []VMessUser `json:"users,omitempty"`
}

type VMessUser struct {
	ID          string `json:"id"`
	Security    string `json:"security"`
	Level       int    `json:"level"`
	Experiments string `json:"experiments,omitempty"`
}

// NewVMessSettings builds a single-user VMess upstream. An empty security means "auto".
func NewVMessSettings(host string, port int, id, security string) VMessOutboundSettings {
	if security == "" {
		security = "auto"
	}
	return VMessOutboundSettings{
		VNext: []VMessServer{{
			Address: host,
			Port:    port,
			Users:   []VMessUser{{ID: id, Security: security}},
		}},
	}
}

func (VMessOutboundSettings) Protocol() Protocol  { return ProtocolVMess }
func (VMessOutboundSettings) isOutboundSettings() {}

type TrojanOutboundSettings struct {
	Servers []TrojanServer `json:"servers,omitempty"`
}

type TrojanServer struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Level    int    `json:"level,omitempty"`
}

func NewTrojanSettings(host string, port int, password string) TrojanOutboundSettings {
	return TrojanOutboundSettings{
		Servers: []TrojanServer{{Address: host, Port: port, Password: password}},
	}
}

func (TrojanOutboundSettings) Protocol() Protocol  { return ProtocolTrojan }
func (TrojanOutboundSettings) isOutboundSettings() {}

type ShadowsocksOutboundSettings struct {
	Servers []ShadowsocksServer `json:"servers,omitempty"`
}

type ShadowsocksServer struct {
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	Method   string `json:"method"`
	UoT      bool   `json:"uot,omitempty"`
	Level    int    `json:"level,omitempty"`
}

// NewShadowsocksSettings builds a single-server shadowsocks upstream with UDP over TCP on.
func NewShadowsocksSettings(host string, port int, password, method string) ShadowsocksOutboundSettings {
	return ShadowsocksOutboundSettings{
		Servers: []ShadowsocksServer{{
			Address:  host,
			Port:     port,
			Password: password,
			Method:   method,
			UoT:      true,
		}},
	}
}

func (ShadowsocksOutboundSettings) Protocol() Protocol  { return ProtocolShadowsocks }
func (ShadowsocksOutboundSettings) isOutboundSettings() {}

type FreedomOutboundSettings struct {
	DomainStrategy string `json:"domainStrategy,omitempty"`
	Redirect       string `json:"redirect,omitempty"`
}

func (FreedomOutboundSettings) Protocol() Protocol  { return ProtocolFreedom }
func (FreedomOutboundSettings) isOutboundSettings() {}

type BlackholeOutboundSettings struct {
	Response *BlackholeResponse `json:"response,omitempty"`
}

type BlackholeResponse struct {
	Type string `json:"type"`
}

// NewBlackholeSettings answers blocked connections with the given response type ("none" or "http").
func NewBlackholeSettings(responseType string) BlackholeOutboundSettings {
	return BlackholeOutboundSettings{Response: &BlackholeResponse{Type: responseType}}
}

func (BlackholeOutboundSettings) Protocol() Protocol  { return ProtocolBlackhole }
func (BlackholeOutboundSettings) isOutboundSettings() {}

// decodeOutboundSettings dispatches on the discriminator. ok is false for a
// protocol outside the closed set, in which case the freedom default is returned.
func decodeOutboundSettings(p Protocol, raw json.RawMessage) (settings OutboundSettings, ok bool, err error) {
	switch p {
	case ProtocolHTTP:
		settings, err = decodeVariant[HTTPOutboundSettings](raw)
	case ProtocolSocks:
		settings, err = decodeVariant[SocksOutboundSettings](raw)
	case ProtocolVLESS:
		settings, err = decodeVariant[VLESSOutboundSettings](raw)
	case ProtocolVMess:
		settings, err = decodeVariant[VMessOutboundSettings](raw)
	case ProtocolTrojan:
		settings, err = decodeVariant[TrojanOutboundSettings](raw)
	case ProtocolShadowsocks:
		settings, err = decodeVariant[ShadowsocksOutboundSettings](raw)
	case ProtocolFreedom:
		settings, err = decodeVariant[FreedomOutboundSettings](raw)
	case ProtocolBlackhole:
		settings, err = decodeVariant[BlackholeOutboundSettings](raw)
	default:
		return FreedomOutboundSettings{}, false, nil
	}
	return settings, true, err
}

func defaultOutboundSettings(p Protocol) OutboundSettings {
	settings, _, _ := decodeOutboundSettings(p, nil)
	return settings
}
