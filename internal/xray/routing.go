package xray

import (
	"encoding/json"
	"strings"
)

const (
	RuleTypeField    = "field"
	ProxyBalancerTag = "proxy"
)

// Rule matches traffic and routes it to an outbound or a balancer.
// Targets are weak references: tags that resolve to nothing are legal.
type Rule struct {
	Type          string            `json:"type"`
	RuleTag       string            `json:"ruleTag"`
	DomainMatcher string            `json:"domainMatcher,omitempty"`
	Domain        []string          `json:"domain,omitempty"`
	IP            []string          `json:"ip,omitempty"`
	Port          string            `json:"port,omitempty"`
	SourcePort    string            `json:"sourcePort,omitempty"`
	Source        []string          `json:"source,omitempty"`
	User          []string          `json:"user,omitempty"`
	Protocol      []string          `json:"protocol,omitempty"`
	Attrs         map[string]string `json:"attrs,omitempty"`
	InboundTag    []string          `json:"inboundTag,omitempty"`
	OutboundTag   string            `json:"outboundTag,omitempty"`
	BalancerTag   string            `json:"balancerTag,omitempty"`
	// Network is the comma-joined storage behind Networks/SetNetworks.
	Network string `json:"network,omitempty"`
}

// NewRule returns an empty field rule with the given tag.
func NewRule(tag string) Rule {
	return Rule{Type: RuleTypeField, RuleTag: tag}
}

// Networks returns the network list view of Network.
func (r Rule) Networks() []string {
	var networks []string
	for _, n := range strings.Split(r.Network, ",") {
		if n != "" {
			networks = append(networks, n)
		}
	}
	return networks
}

// SetNetworks stores networks joined with commas.
func (r *Rule) SetNetworks(networks []string) {
	r.Network = strings.Join(networks, ",")
}

// RouteToOutbound targets an outbound and clears any balancer target.
func (r *Rule) RouteToOutbound(tag string) {
	r.OutboundTag = tag
	r.BalancerTag = ""
}

// RouteToBalancer targets a balancer and clears any outbound target.
func (r *Rule) RouteToBalancer(tag string) {
	r.BalancerTag = tag
	r.OutboundTag = ""
}

// ReferencesInbound reports whether tag is in the rule's inbound list.
func (r Rule) ReferencesInbound(tag string) bool {
	for _, t := range r.InboundTag {
		if t == tag {
			return true
		}
	}
	return false
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	type alias Rule
	decoded := alias{Type: RuleTypeField}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = Rule(decoded)
	return nil
}

func ChinaIPDirectRule() Rule {
	rule := NewRule("china-ip-direct")
	rule.IP = []string{"geoip:cn"}
	rule.RouteToOutbound(DirectTag)
	return rule
}

func ChinaDomainDirectRule() Rule {
	rule := NewRule("china-domain-direct")
	rule.Domain = []string{"geosite:cn"}
	rule.RouteToOutbound(DirectTag)
	return rule
}

// MatchAllRule sends every port to the proxy balancer.
func MatchAllRule() Rule {
	rule := NewRule("match-all")
	rule.Port = "1-65535"
	rule.RouteToBalancer(ProxyBalancerTag)
	return rule
}

type Balancer struct {
	Tag         string           `json:"tag"`
	Selector    []string         `json:"selector,omitempty"`
	FallbackTag string           `json:"fallbackTag,omitempty"`
	Strategy    BalancerStrategy `json:"strategy"`
}

type BalancerStrategy struct {
	Type     string                    `json:"type,omitempty"`
	Settings *BalancerStrategySettings `json:"settings,omitempty"`
}

type BalancerStrategySettings struct {
	Expected  int          `json:"expected,omitempty"`
	MaxRTT    string       `json:"maxRTT,omitempty"`
	Tolerance float64      `json:"tolerance,omitempty"`
	Baselines []string     `json:"baselines,omitempty"`
	Costs     []CostObject `json:"costs,omitempty"`
}

type CostObject struct {
	Regexp bool    `json:"regexp,omitempty"`
	Match  string  `json:"match"`
	Value  float64 `json:"value"`
}

// ProxyBalancer selects every outbound except direct and block, falling back to direct.
func ProxyBalancer() Balancer {
	return Balancer{
		Tag:         ProxyBalancerTag,
		Selector:    []string{"^((?!direct|block).)*$"},
		FallbackTag: DirectTag,
	}
}

// Routing owns the ordered rule list. Order matters: the engine stops at the first match.
type Routing struct {
	DomainStrategy string     `json:"domainStrategy,omitempty"`
	DomainMatcher  string     `json:"domainMatcher,omitempty"`
	Balancers      []Balancer `json:"balancers,omitempty"`
	Rules          []Rule     `json:"rules"`
}

// DefaultRouting returns the china-direct rules followed by the catch-all proxy rule.
func DefaultRouting() Routing {
	return Routing{
		DomainStrategy: "AsIs",
		DomainMatcher:  "hybrid",
		Balancers:      []Balancer{ProxyBalancer()},
		Rules: []Rule{
			ChinaIPDirectRule(),
			ChinaDomainDirectRule(),
			MatchAllRule(),
		},
	}
}

func (r Routing) MarshalJSON() ([]byte, error) {
	type alias Routing
	a := alias(r)
	if a.Rules == nil {
		a.Rules = []Rule{}
	}
	return json.Marshal(a)
}
