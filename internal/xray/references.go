package xray

import (
	"fmt"
	"sort"
)

// Reference kinds reported by DanglingReferences.
const (
	RefInbound  = "inbound"
	RefOutbound = "outbound"
	RefBalancer = "balancer"
)

// DanglingReference is a tag used by a rule or balancer that names nothing in the document.
type DanglingReference struct {
	Owner string // rule tag or "balancer:<tag>"
	Kind  string
	Tag   string
}

func (r DanglingReference) String() string {
	return fmt.Sprintf("%s -> %s %q", r.Owner, r.Kind, r.Tag)
}

// DuplicateTags returns tags carried by more than one inbound, outbound or balancer, sorted.
// Lookups resolve a duplicate to its first occurrence.
func (c *Config) DuplicateTags() []string {
	seen := make(map[string]int)
	count := func(tag string) {
		if tag != "" {
			seen[tag]++
		}
	}
	for _, in := range c.Inbounds {
		count(in.Tag)
	}
	for _, out := range c.Outbounds {
		count(out.Tag)
	}
	for _, b := range c.Routing.Balancers {
		count(b.Tag)
	}

	var dups []string
	for tag, n := range seen {
		if n > 1 {
			dups = append(dups, tag)
		}
	}
	sort.Strings(dups)
	return dups
}

// DanglingReferences lists rule and balancer targets that resolve to nothing.
// The api and metrics tags are engine pseudo-outbounds and always resolve.
// Dangling references are legal; callers decide whether to warn.
func (c *Config) DanglingReferences() []DanglingReference {
	inbounds := make(map[string]bool, len(c.Inbounds))
	for _, in := range c.Inbounds {
		inbounds[in.Tag] = true
	}
	outbounds := make(map[string]bool, len(c.Outbounds)+2)
	for _, out := range c.Outbounds {
		outbounds[out.Tag] = true
	}
	if c.Metrics != nil {
		outbounds[c.metricsTag()] = true
	}
	if c.API != nil {
		outbounds[c.API.Tag] = true
	}
	balancers := make(map[string]bool, len(c.Routing.Balancers))
	for _, b := range c.Routing.Balancers {
		balancers[b.Tag] = true
	}

	var refs []DanglingReference
	for _, rule := range c.Routing.Rules {
		for _, tag := range rule.InboundTag {
			if !inbounds[tag] {
				refs = append(refs, DanglingReference{Owner: rule.RuleTag, Kind: RefInbound, Tag: tag})
			}
		}
		if rule.OutboundTag != "" && !outbounds[rule.OutboundTag] {
			refs = append(refs, DanglingReference{Owner: rule.RuleTag, Kind: RefOutbound, Tag: rule.OutboundTag})
		}
		if rule.BalancerTag != "" && !balancers[rule.BalancerTag] {
			refs = append(refs, DanglingReference{Owner: rule.RuleTag, Kind: RefBalancer, Tag: rule.BalancerTag})
		}
	}
	for _, b := range c.Routing.Balancers {
		if b.FallbackTag != "" && !outbounds[b.FallbackTag] {
			refs = append(refs, DanglingReference{Owner: "balancer:" + b.Tag, Kind: RefOutbound, Tag: b.FallbackTag})
		}
	}
	return refs
}
