package xray

// DNSServer is the full form of a DNS server entry.
type DNSServer struct {
	Address      string   `json:"address"`
	Port         int      `json:"port"`
	Domains      []string `json:"domains,omitempty"`
	ExpectIPs    []string `json:"expectIPs,omitempty"`
	SkipFallback bool     `json:"skipFallback,omitempty"`
	ClientIP     string   `json:"clientIP,omitempty"`
}

// DNSServerEntry is either a bare address ("8.8.8.8") or a full DNSServer.
type DNSServerEntry = StringOrObject[DNSServer]

// HostMapping maps a host name to one address or a list of addresses.
type HostMapping = StringOrStringList

// SimpleServer returns the bare-address form.
func SimpleServer(address string) DNSServerEntry {
	return NewString[DNSServer](address)
}

// FullServer returns the full-record form.
func FullServer(server DNSServer) DNSServerEntry {
	return NewObject(server)
}

type DNS struct {
	Servers                []DNSServerEntry       `json:"servers,omitempty"`
	Hosts                  map[string]HostMapping `json:"hosts,omitempty"`
	ClientIP               string                 `json:"clientIP,omitempty"`
	QueryStrategy          string                 `json:"queryStrategy,omitempty"`
	DisableCache           bool                   `json:"disableCache,omitempty"`
	DisableFallback        bool                   `json:"disableFallback,omitempty"`
	DisableFallbackIfMatch bool                   `json:"disableFallbackIfMatch,omitempty"`
	Tag                    string                 `json:"tag,omitempty"`
}

// DefaultDNS returns two public resolvers tagged "dns-server".
func DefaultDNS() *DNS {
	return &DNS{
		Tag: "dns-server",
		Servers: []DNSServerEntry{
			SimpleServer("114.114.114.114"),
			SimpleServer("8.8.8.8"),
		},
	}
}
