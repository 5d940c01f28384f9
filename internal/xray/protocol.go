package xray

// Protocol is the discriminator of inbound and outbound entries.
// Values outside the known set are kept verbatim.
type Protocol string

const (
	ProtocolSocks       Protocol = "socks"
	ProtocolHTTP        Protocol = "http"
	ProtocolVLESS       Protocol = "vless"
	ProtocolVMess       Protocol = "vmess"
	ProtocolTrojan      Protocol = "trojan"
	ProtocolShadowsocks Protocol = "shadowsocks"
	ProtocolDokodemo    Protocol = "dokodemo-door"
	ProtocolFreedom     Protocol = "freedom"
	ProtocolBlackhole   Protocol = "blackhole"
)

// UnknownProtocolPolicy selects what decoding does with a protocol outside the closed set.
type UnknownProtocolPolicy int

const (
	// PolicyUseDefault substitutes the default variant (socks for inbounds,
	// freedom for outbounds) and reports a Warning.
	PolicyUseDefault UnknownProtocolPolicy = iota
	// PolicyReject fails the decode with ErrUnknownDiscriminator.
	PolicyReject
)

// ParsePolicy maps the settings spelling ("default", "reject") to a policy.
func ParsePolicy(s string) (UnknownProtocolPolicy, bool) {
	switch s {
	case "", "default":
		return PolicyUseDefault, true
	case "reject":
		return PolicyReject, true
	default:
		return PolicyUseDefault, false
	}
}

func (p UnknownProtocolPolicy) String() string {
	if p == PolicyReject {
		return "reject"
	}
	return "default"
}

// Warning describes a permissive fallback taken while decoding.
type Warning struct {
	Path     string   // e.g. "outbounds[2]"
	Tag      string   // tag of the entry that fell back
	Protocol Protocol // the unrecognised discriminator
	Fallback Protocol // the variant used instead
}

// DecodeOptions tune Decode.
type DecodeOptions struct {
	UnknownProtocol UnknownProtocolPolicy
	// Warn receives every fallback taken under PolicyUseDefault. May be nil.
	Warn func(Warning)
}

// DecodeOption modifies DecodeOptions.
type DecodeOption func(*DecodeOptions)

func WithUnknownProtocolPolicy(p UnknownProtocolPolicy) DecodeOption {
	return func(o *DecodeOptions) {
		o.UnknownProtocol = p
	}
}

func WithWarningHandler(fn func(Warning)) DecodeOption {
	return func(o *DecodeOptions) {
		o.Warn = fn
	}
}
