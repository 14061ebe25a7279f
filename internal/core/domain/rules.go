package domain

import "time"

type RuleScope string

const (
	ScopeGlobal RuleScope = "global"
	ScopeRoute  RuleScope = "route"
)

// RateLimitRule is one fixed-window limit applied by the rate limiter. The
// global rule protects the whole service; route rules tighten specific
// endpoints on top of it.
type RateLimitRule struct {
	Scope  RuleScope
	Limit  int64
	Window time.Duration
}
