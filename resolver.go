package permit

// EffectResolver reduces the rules matched for one request to a single
// effect. Precedence is by Priority alone; among rules tied at the highest
// priority, Deny wins.
type EffectResolver struct {
	defaultEffect Effect
}

// NewEffectResolver configures the effect returned when no rule matched.
// The zero value of Effect falls back to Deny (secure by default).
func NewEffectResolver(defaultEffect Effect) *EffectResolver {
	if defaultEffect == "" {
		defaultEffect = EffectDeny
	}
	return &EffectResolver{defaultEffect: defaultEffect}
}

// DefaultEffect returns the configured no-match effect.
func (r *EffectResolver) DefaultEffect() Effect {
	return r.defaultEffect
}

// Resolve returns the governing effect and the rule that produced it. A nil
// rule means nothing matched and the default effect applies.
func (r *EffectResolver) Resolve(matched []*PolicyRule) (Effect, *PolicyRule) {
	if len(matched) == 0 {
		return r.defaultEffect, nil
	}

	maxPriority := matched[0].Priority
	for _, rule := range matched[1:] {
		if rule.Priority > maxPriority {
			maxPriority = rule.Priority
		}
	}

	var winner *PolicyRule
	for _, rule := range matched {
		if rule.Priority != maxPriority {
			continue
		}
		if rule.Effect == EffectDeny {
			return EffectDeny, rule
		}
		if winner == nil {
			winner = rule
		}
	}
	return winner.Effect, winner
}
