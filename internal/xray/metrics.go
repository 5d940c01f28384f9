package xray

const (
	DefaultMetricsTag = "metrics-service"
	MetricsInboundTag = "metrics-api"
	MetricsRuleTag    = "metrics-rule"
)

// metricsTag is the pseudo-outbound the engine serves metrics on.
func (c *Config) metricsTag() string {
	if c.Metrics != nil && c.Metrics.Tag != "" {
		return c.Metrics.Tag
	}
	return DefaultMetricsTag
}

// EnableMetrics switches on stats, the metrics endpoint and the full system
// policy, then makes sure a dokodemo-door inbound and a rule routing it to the
// metrics tag exist. The rule goes first so that no other rule shadows it.
// A rule tagged metrics-rule that routes elsewhere is repointed and moved to
// the head rather than duplicated. Calling it twice leaves the document unchanged.
func (c *Config) EnableMetrics() {
	if c.Stats == nil {
		c.Stats = &Stats{}
	}
	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}
	if c.Metrics.Tag == "" {
		c.Metrics.Tag = DefaultMetricsTag
	}
	if c.Policy == nil {
		c.Policy = &Policy{}
	}
	c.Policy.System = AllStatsEnabled()

	if _, ok := c.FindInbound(MetricsInboundTag); !ok {
		in := NewDokodemoInbound()
		in.Tag = MetricsInboundTag
		c.Inbounds = append(c.Inbounds, in)
	}

	if _, ok := c.metricsRule(); ok {
		return
	}
	rule := NewRule(MetricsRuleTag)
	for i := range c.Routing.Rules {
		if c.Routing.Rules[i].RuleTag == MetricsRuleTag {
			rule = c.Routing.Rules[i]
			c.Routing.Rules = append(c.Routing.Rules[:i:i], c.Routing.Rules[i+1:]...)
			break
		}
	}
	rule.InboundTag = []string{MetricsInboundTag}
	rule.RouteToOutbound(c.Metrics.Tag)
	c.Routing.Rules = append([]Rule{rule}, c.Routing.Rules...)
}

// DisableMetrics removes every rule routed to the metrics tag along with the
// inbounds those rules read from, then clears stats, metrics and the system
// policy. A policy left without levels is dropped, even an empty one that was
// in the document before EnableMetrics ran, since the two cannot be told apart
// once saved. Calling it twice leaves the document unchanged.
func (c *Config) DisableMetrics() {
	tag := c.metricsTag()

	referenced := make(map[string]struct{})
	rules := make([]Rule, 0, len(c.Routing.Rules))
	for _, rule := range c.Routing.Rules {
		if rule.OutboundTag == tag {
			for _, in := range rule.InboundTag {
				referenced[in] = struct{}{}
			}
			continue
		}
		rules = append(rules, rule)
	}
	if len(rules) != len(c.Routing.Rules) {
		c.Routing.Rules = rules
	}

	if len(referenced) > 0 {
		inbounds := make([]Inbound, 0, len(c.Inbounds))
		for _, in := range c.Inbounds {
			if _, ok := referenced[in.Tag]; !ok {
				inbounds = append(inbounds, in)
			}
		}
		c.Inbounds = inbounds
	}

	c.Stats = nil
	c.Metrics = nil
	if c.Policy != nil {
		c.Policy.System = nil
		if len(c.Policy.Levels) == 0 {
			c.Policy = nil
		}
	}
}

// MetricsEnabled reports whether the metrics block and its routing rule are both present.
func (c *Config) MetricsEnabled() bool {
	if c.Metrics == nil {
		return false
	}
	_, ok := c.metricsRule()
	return ok
}

// FindMetricsPort returns the port of the inbound feeding the metrics rule.
func (c *Config) FindMetricsPort() (int, bool) {
	rule, ok := c.metricsRule()
	if !ok {
		return 0, false
	}
	for _, in := range c.Inbounds {
		if rule.ReferencesInbound(in.Tag) {
			return in.Port, true
		}
	}
	return 0, false
}

// SetMetricsPort moves the metrics inbound to port.
func (c *Config) SetMetricsPort(port int) bool {
	rule, ok := c.metricsRule()
	if !ok {
		return false
	}
	for i := range c.Inbounds {
		if rule.ReferencesInbound(c.Inbounds[i].Tag) {
			c.Inbounds[i].Port = port
			return true
		}
	}
	return false
}

// metricsRule returns the rule routed to the metrics tag, preferring the one
// tagged metrics-rule.
func (c *Config) metricsRule() (*Rule, bool) {
	tag := c.metricsTag()
	if rule, ok := c.FindRule(MetricsRuleTag); ok && rule.OutboundTag == tag {
		return rule, true
	}
	for i := range c.Routing.Rules {
		if c.Routing.Rules[i].OutboundTag == tag {
			return &c.Routing.Rules[i], true
		}
	}
	return nil, false
}
