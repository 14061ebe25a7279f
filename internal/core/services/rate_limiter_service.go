package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/domain"
	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/ports"
)

// RateLimiterConfig aggregates the fixed-window rules applied per request.
type RateLimiterConfig struct {
	GlobalRule domain.RateLimitRule
	RouteRules map[string]domain.RateLimitRule
}

// RateLimiterService applies the configured fixed-window rules, global scope
// first, then the route-specific rule when one exists. It owns all
// WindowCounter mutation; nothing else touches the counter store.
type RateLimiterService struct {
	counters ports.CounterStore
	recorder ports.MetricsRecorder
	config   RateLimiterConfig
}

func NewRateLimiterService(counters ports.CounterStore, recorder ports.MetricsRecorder, cfg RateLimiterConfig) (*RateLimiterService, error) {
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if cfg.GlobalRule.Limit <= 0 || cfg.GlobalRule.Window <= 0 {
		return nil, fmt.Errorf("global rule must have positive values")
	}
	if cfg.RouteRules == nil {
		cfg.RouteRules = make(map[string]domain.RateLimitRule)
	}
	if recorder == nil {
		recorder = ports.NoopRecorder{}
	}
	return &RateLimiterService{counters: counters, recorder: recorder, config: cfg}, nil
}

// Check charges every applicable scope and returns the verdict. The first
// denial in scope order wins; on success the most restrictive remaining
// budget is reported. A counter-store failure fails open: the limiter is a
// defense-in-depth layer, and losing it must not take admission down with it.
func (s *RateLimiterService) Check(ctx context.Context, identity domain.ClientIdentity, route string, now time.Time) domain.Decision {
	rules := s.rulesFor(route)

	var denied *domain.Decision
	allowed := domain.Decision{Allowed: true, Reason: domain.ReasonOK}
	haveAllowed := false

	// Every scope is charged even when an earlier one already denied, so a
	// denied request still consumes its window slots everywhere.
	for _, rule := range rules {
		result, err := s.counters.IncrementAndCheck(ctx, counterKey(rule, identity, route), rule.Limit, rule.Window, now)
		if err != nil {
			log.Printf("rate limiter: counter store failed scope=%s route=%s identity=%s: %v", rule.Scope, route, identity.Key(), err)
			s.recorder.RecordStoreError("counter_store")
			continue
		}

		if !result.Allowed {
			if denied == nil {
				denied = &domain.Decision{
					Allowed: false,
					Limit:   rule.Limit,
					ResetAt: result.ResetAt,
					Reason:  domain.ReasonRateLimited,
				}
			}
			continue
		}

		remaining := rule.Limit - result.Count
		if !haveAllowed || remaining < allowed.Remaining {
			haveAllowed = true
			allowed.Remaining = remaining
			allowed.Limit = rule.Limit
			allowed.ResetAt = result.ResetAt
		}
	}

	if denied != nil {
		return *denied
	}
	if !haveAllowed {
		// Every scope failed open; report the global budget untouched.
		rule := rules[0]
		return domain.Decision{
			Allowed:   true,
			Remaining: rule.Limit,
			Limit:     rule.Limit,
			ResetAt:   now.Add(rule.Window),
			Reason:    domain.ReasonOK,
		}
	}
	return allowed
}

func (s *RateLimiterService) rulesFor(route string) []domain.RateLimitRule {
	global := s.config.GlobalRule
	global.Scope = domain.ScopeGlobal

	rules := []domain.RateLimitRule{global}
	if rule, ok := s.config.RouteRules[route]; ok && rule.Limit > 0 && rule.Window > 0 {
		rule.Scope = domain.ScopeRoute
		rules = append(rules, rule)
	}
	return rules
}

func counterKey(rule domain.RateLimitRule, identity domain.ClientIdentity, route string) string {
	if rule.Scope == domain.ScopeRoute {
		return fmt.Sprintf("route:%s:%s", route, identity.Key())
	}
	return "global:" + identity.Key()
}
