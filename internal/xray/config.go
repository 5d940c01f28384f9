package xray

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
)

// Config is the aggregate root of an engine document. It exclusively owns
// every contained entity; cross references between them are plain tags.
type Config struct {
	Log       *Log       `json:"log,omitempty"`
	API       *API       `json:"api,omitempty"`
	DNS       *DNS       `json:"dns,omitempty"`
	Stats     *Stats     `json:"stats,omitempty"`
	Metrics   *Metrics   `json:"metrics,omitempty"`
	Policy    *Policy    `json:"policy,omitempty"`
	Routing   Routing    `json:"routing"`
	Inbounds  []Inbound  `json:"inbounds"`
	Outbounds []Outbound `json:"outbounds"`
}

type Log struct {
	Access   string `json:"access,omitempty"`
	Error    string `json:"error,omitempty"`
	LogLevel string `json:"loglevel,omitempty"`
	DNSLog   bool   `json:"dnsLog,omitempty"`
}

// NewLog writes access.log and error.log under dir at warning level.
func NewLog(dir string) *Log {
	return &Log{
		Access:   filepath.Join(dir, "access.log"),
		Error:    filepath.Join(dir, "error.log"),
		LogLevel: "warning",
	}
}

type API struct {
	Tag      string   `json:"tag"`
	Services []string `json:"services,omitempty"`
}

// Stats has no options; its presence switches traffic statistics on.
type Stats struct{}

type Metrics struct {
	Tag string `json:"tag"`
}

type Policy struct {
	Levels map[string]PolicyLevel `json:"levels,omitempty"`
	System *PolicySystem          `json:"system,omitempty"`
}

type PolicyLevel struct {
	Handshake         int  `json:"handshake,omitempty"`
	ConnIdle          int  `json:"connIdle,omitempty"`
	UplinkOnly        int  `json:"uplinkOnly,omitempty"`
	DownlinkOnly      int  `json:"downlinkOnly,omitempty"`
	StatsUserUplink   bool `json:"statsUserUplink,omitempty"`
	StatsUserDownlink bool `json:"statsUserDownlink,omitempty"`
}

type PolicySystem struct {
	StatsInboundUplink    bool `json:"statsInboundUplink,omitempty"`
	StatsInboundDownlink  bool `json:"statsInboundDownlink,omitempty"`
	StatsOutboundUplink   bool `json:"statsOutboundUplink,omitempty"`
	StatsOutboundDownlink bool `json:"statsOutboundDownlink,omitempty"`
}

// AllStatsEnabled returns a system policy with every traffic counter on.
func AllStatsEnabled() *PolicySystem {
	return &PolicySystem{
		StatsInboundUplink:    true,
		StatsInboundDownlink:  true,
		StatsOutboundUplink:   true,
		StatsOutboundDownlink: true,
	}
}

// New returns the default document: a local socks inbound, direct and block
// outbounds, the default routing and two public DNS resolvers.
func New() *Config {
	return &Config{
		DNS:     DefaultDNS(),
		Routing: DefaultRouting(),
		Inbounds: []Inbound{
			NewSocksInbound(),
		},
		Outbounds: []Outbound{
			DirectOutbound(),
			BlockOutbound(),
		},
	}
}

func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	if a.Inbounds == nil {
		a.Inbounds = []Inbound{}
	}
	if a.Outbounds == nil {
		a.Outbounds = []Outbound{}
	}
	return json.Marshal(a)
}

type configWire struct {
	Log       *Log        `json:"log"`
	API       *API        `json:"api"`
	DNS       *DNS        `json:"dns"`
	Stats     *Stats      `json:"stats"`
	Metrics   *Metrics    `json:"metrics"`
	Policy    *Policy     `json:"policy"`
	Routing   *Routing    `json:"routing"`
	Inbounds  *[]Inbound  `json:"inbounds"`
	Outbounds *[]Outbound `json:"outbounds"`
}

func (c *Config) UnmarshalJSON(data []byte) error {
	var w configWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch {
	case w.Routing == nil:
		return missingKey("config", "routing")
	case w.Inbounds == nil:
		return missingKey("config", "inbounds")
	case w.Outbounds == nil:
		return missingKey("config", "outbounds")
	}

	*c = Config{
		Log:       w.Log,
		API:       w.API,
		DNS:       w.DNS,
		Stats:     w.Stats,
		Metrics:   w.Metrics,
		Policy:    w.Policy,
		Routing:   *w.Routing,
		Inbounds:  *w.Inbounds,
		Outbounds: *w.Outbounds,
	}
	return nil
}

// Encode renders cfg as indented JSON. Output is deterministic for a given value.
func Encode(cfg *Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Decode parses a document. Every failure matches ErrMalformedDocument except
// an unknown protocol under PolicyReject, which matches ErrUnknownDiscriminator.
// No partial Config is returned on error.
func Decode(data []byte, opts ...DecodeOption) (*Config, error) {
	options := DecodeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		if errors.Is(err, ErrMalformedDocument) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	if err := cfg.applyProtocolPolicy(options); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyProtocolPolicy(opts DecodeOptions) error {
	for i := range c.Inbounds {
		in := &c.Inbounds[i]
		if !in.unknownProtocol {
			continue
		}
		w := Warning{
			Path:     fmt.Sprintf("inbounds[%d]", i),
			Tag:      in.Tag,
			Protocol: in.Protocol,
			Fallback: ProtocolSocks,
		}
		if err := report(opts, w); err != nil {
			return err
		}
	}

	for i := range c.Outbounds {
		out := &c.Outbounds[i]
		if !out.unknownProtocol {
			continue
		}
		w := Warning{
			Path:     fmt.Sprintf("outbounds[%d]", i),
			Tag:      out.Tag,
			Protocol: out.Protocol,
			Fallback: ProtocolFreedom,
		}
		if err := report(opts, w); err != nil {
			return err
		}
	}
	return nil
}

func report(opts DecodeOptions, w Warning) error {
	if opts.UnknownProtocol == PolicyReject {
		return newDecodeError(w.Path, fmt.Errorf("%w: protocol %q", ErrUnknownDiscriminator, w.Protocol))
	}
	if opts.Warn != nil {
		opts.Warn(w)
	}
	return nil
}

// FindInbound returns the first inbound tagged tag.
func (c *Config) FindInbound(tag string) (*Inbound, bool) {
	for i := range c.Inbounds {
		if c.Inbounds[i].Tag == tag {
			return &c.Inbounds[i], true
		}
	}
	return nil, false
}

// FindSocksInbound returns the first socks inbound, typically the local proxy entry.
func (c *Config) FindSocksInbound() (*Inbound, bool) {
	for i := range c.Inbounds {
		if c.Inbounds[i].Protocol == ProtocolSocks {
			return &c.Inbounds[i], true
		}
	}
	return nil, false
}

func (c *Config) FindOutbound(tag string) (*Outbound, bool) {
	for i := range c.Outbounds {
		if c.Outbounds[i].Tag == tag {
			return &c.Outbounds[i], true
		}
	}
	return nil, false
}

func (c *Config) FindRule(ruleTag string) (*Rule, bool) {
	for i := range c.Routing.Rules {
		if c.Routing.Rules[i].RuleTag == ruleTag {
			return &c.Routing.Rules[i], true
		}
	}
	return nil, false
}

func (c *Config) FindBalancer(tag string) (*Balancer, bool) {
	for i := range c.Routing.Balancers {
		if c.Routing.Balancers[i].Tag == tag {
			return &c.Routing.Balancers[i], true
		}
	}
	return nil, false
}

// ImportOutbounds appends outbounds produced by a share-link converter.
func (c *Config) ImportOutbounds(outbounds ...Outbound) {
	c.Outbounds = append(c.Outbounds, outbounds...)
}

// RemoveOutbound deletes every outbound tagged tag and returns how many were removed.
// Rules pointing at tag are left alone.
func (c *Config) RemoveOutbound(tag string) int {
	kept := make([]Outbound, 0, len(c.Outbounds))
	for _, out := range c.Outbounds {
		if out.Tag != tag {
			kept = append(kept, out)
		}
	}
	removed := len(c.Outbounds) - len(kept)
	if removed > 0 {
		c.Outbounds = kept
	}
	return removed
}
