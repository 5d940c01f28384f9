package subscription

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"xray-profile/internal/xray"
)

var ErrUnsupportedScheme = errors.New("unsupported share link scheme")

// ParseLink turns one vless://, vmess://, trojan:// or ss:// share link into an outbound.
// The tag is the link's display name, or protocol-host:port when it has none.
func ParseLink(link string) (xray.Outbound, error) {
	link = strings.TrimSpace(link)
	scheme, _, ok := strings.Cut(link, "://")
	if !ok {
		return xray.Outbound{}, fmt.Errorf("not a share link: %q", truncate(link))
	}

	switch strings.ToLower(scheme) {
	case "vless":
		return parseVLESS(link)
	case "trojan":
		return parseTrojan(link)
	case "ss":
		return parseShadowsocks(link)
	case "vmess":
		return parseVMess(link)
	default:
		return xray.Outbound{}, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

type endpoint struct {
	host  string
	port  int
	user  string
	name  string
	query url.Values
}

func parseURL(link string) (*endpoint, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("error parsing link: %w", err)
	}

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid host:port format in URL: %s", u.Host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port: %s", portStr)
	}
	if host == "" {
		return nil, fmt.Errorf("server address is required")
	}

	ep := &endpoint{
		host:  host,
		port:  port,
		name:  strings.TrimSpace(u.Fragment),
		query: u.Query(),
	}
	if u.User != nil {
		ep.user = u.User.Username()
	}
	return ep, nil
}

func (ep *endpoint) tag(p xray.Protocol) string {
	if ep.name != "" {
		return ep.name
	}
	return fmt.Sprintf("%s-%s:%d", p, ep.host, ep.port)
}

func parseVLESS(link string) (xray.Outbound, error) {
	ep, err := parseURL(link)
	if err != nil {
		return xray.Outbound{}, err
	}
	if _, err := uuid.Parse(ep.user); err != nil {
		return xray.Outbound{}, fmt.Errorf("invalid VLESS user id %q: %w", ep.user, err)
	}

	settings := xray.NewVLESSSettings(ep.host, ep.port, ep.user, ep.query.Get("encryption"), ep.query.Get("flow"), 0)
	out := xray.NewOutbound(ep.tag(xray.ProtocolVLESS), settings)
	out.StreamSettings = streamFromQuery(ep.query, xray.SecurityNone)
	return out, nil
}

func parseTrojan(link string) (xray.Outbound, error) {
	ep, err := parseURL(link)
	if err != nil {
		return xray.Outbound{}, err
	}
	if ep.user == "" {
		return xray.Outbound{}, fmt.Errorf("missing password in Trojan URL")
	}

	out := xray.NewOutbound(ep.tag(xray.ProtocolTrojan), xray.NewTrojanSettings(ep.host, ep.port, ep.user))
	out.StreamSettings = streamFromQuery(ep.query, xray.SecurityTLS)
	return out, nil
}

// parseShadowsocks accepts SIP002 (base64 or plain userinfo) and the legacy
// fully base64-encoded form.
func parseShadowsocks(link string) (xray.Outbound, error) {
	body := link[len("ss://"):]
	if !strings.Contains(strings.SplitN(body, "#", 2)[0], "@") {
		payload, fragment, _ := strings.Cut(body, "#")
		decoded, err := decodeBase64(payload)
		if err != nil {
			return xray.Outbound{}, fmt.Errorf("error decoding base64: %w", err)
		}
		link = "ss://" + string(decoded)
		if fragment != "" {
			link += "#" + fragment
		}
	}

	u, err := url.Parse(link)
	if err != nil {
		return xray.Outbound{}, fmt.Errorf("error parsing link: %w", err)
	}
	if u.User == nil {
		return xray.Outbound{}, fmt.Errorf("missing user info in Shadowsocks URL")
	}

	ep, err := parseURL(link)
	if err != nil {
		return xray.Outbound{}, err
	}

	method, password, ok := splitUserInfo(u.User)
	if !ok {
		return xray.Outbound{}, fmt.Errorf("invalid shadowsocks user info format")
	}

	settings := xray.NewShadowsocksSettings(ep.host, ep.port, password, method)
	return xray.NewOutbound(ep.tag(xray.ProtocolShadowsocks), settings), nil
}

func splitUserInfo(info *url.Userinfo) (method, password string, ok bool) {
	if pass, set := info.Password(); set {
		return info.Username(), pass, info.Username() != "" && pass != ""
	}
	raw := info.Username()
	if decoded, err := decodeBase64(raw); err == nil {
		raw = string(decoded)
	}
	method, password, ok = strings.Cut(raw, ":")
	return method, password, ok && method != "" && password != ""
}

type vmessLink struct {
	PS   string          `json:"ps"`
	Add  string          `json:"add"`
	Port json.RawMessage `json:"port"`
	ID   string          `json:"id"`
	Scy  string          `json:"scy"`
	Net  string          `json:"net"`
	Type string          `json:"type"`
	Host string          `json:"host"`
	Path string          `json:"path"`
	TLS  string          `json:"tls"`
	SNI  string          `json:"sni"`
	ALPN string          `json:"alpn"`
	FP   string          `json:"fp"`
}

// parseVMess reads the base64-wrapped JSON form. Port may be a number or a string.
func parseVMess(link string) (xray.Outbound, error) {
	decoded, err := decodeBase64(strings.TrimSpace(link[len("vmess://"):]))
	if err != nil {
		return xray.Outbound{}, fmt.Errorf("error decoding base64: %w", err)
	}

	var v vmessLink
	if err := json.Unmarshal(decoded, &v); err != nil {
		return xray.Outbound{}, fmt.Errorf("invalid vmess payload: %w", err)
	}

	port, err := strconv.Atoi(strings.Trim(string(v.Port), `"`))
	if err != nil || port <= 0 || port > 65535 {
		return xray.Outbound{}, fmt.Errorf("invalid port: %s", v.Port)
	}
	if v.Add == "" {
		return xray.Outbound{}, fmt.Errorf("server address is required")
	}
	if _, err := uuid.Parse(v.ID); err != nil {
		return xray.Outbound{}, fmt.Errorf("invalid VMess user id %q: %w", v.ID, err)
	}

	query := url.Values{}
	query.Set("type", v.Net)
	query.Set("headerType", v.Type)
	query.Set("host", v.Host)
	query.Set("path", v.Path)
	query.Set("security", v.TLS)
	query.Set("sni", v.SNI)
	query.Set("alpn", v.ALPN)
	query.Set("fp", v.FP)

	ep := &endpoint{host: v.Add, port: port, name: strings.TrimSpace(v.PS)}
	out := xray.NewOutbound(ep.tag(xray.ProtocolVMess), xray.NewVMessSettings(v.Add, port, v.ID, v.Scy))
	out.StreamSettings = streamFromQuery(query, xray.SecurityNone)
	return out, nil
}

// streamFromQuery maps the common share-link parameters onto stream settings.
func streamFromQuery(q url.Values, defaultSecurity string) xray.StreamSettings {
	s := xray.DefaultStreamSettings()

	if network := q.Get("type"); network != "" {
		s.Network = network
	}
	switch s.Network {
	case xray.NetworkRaw, xray.NetworkTCP:
		if header := q.Get("headerType"); header != "" && header != "none" {
			s.RawSettings.Header = &xray.RawHeader{Type: header}
		}
	case xray.NetworkWebSocket:
		s.WSSettings = xray.WebSocketSettings{Path: q.Get("path"), Host: q.Get("host")}
	case xray.NetworkHTTPUpgrade:
		s.HTTPUpgradeSettings = xray.HTTPUpgradeSettings{Path: q.Get("path"), Host: q.Get("host")}
	}

	s.Security = q.Get("security")
	if s.Security == "" {
		s.Security = defaultSecurity
	}
	switch s.Security {
	case xray.SecurityTLS:
		s.TLSSettings = xray.TLSSettings{
			ServerName:    q.Get("sni"),
			Fingerprint:   q.Get("fp"),
			AllowInsecure: q.Get("allowInsecure") == "1" || q.Get("allowInsecure") == "true",
		}
		if alpn := q.Get("alpn"); alpn != "" {
			s.TLSSettings.ALPN = strings.Split(alpn, ",")
		}
	case xray.SecurityReality:
		s.RealitySettings = xray.RealitySettings{
			ServerName:  q.Get("sni"),
			Fingerprint: q.Get("fp"),
			PublicKey:   q.Get("pbk"),
			ShortID:     q.Get("sid"),
			SpiderX:     q.Get("spx"),
		}
	}
	return s
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var err error
	for _, enc := range encodings {
		var decoded []byte
		if decoded, err = enc.DecodeString(s); err == nil {
			return decoded, nil
		}
	}
	return nil, err
}

func truncate(s string) string {
	const limit = 32
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
