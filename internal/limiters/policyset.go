package limiters

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/tokenward/tokenward/internal/rate"
)

// ErrUnknownPolicy indicates a quota operation referenced a policy name that
// was never configured.
var ErrUnknownPolicy = errors.New("unknown rate policy")

// PolicySet is a registry of named quota policies consumed by name.
// It is built once and read-only afterwards.
type PolicySet struct {
	limiter  *rate.Limiter
	policies map[string]rate.Policy
}

// NewPolicySet validates and indexes the given policies.
func NewPolicySet(limiter *rate.Limiter, policies []rate.Policy) (*PolicySet, error) {
	set := &PolicySet{
		limiter:  limiter,
		policies: make(map[string]rate.Policy, len(policies)),
	}

	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, ok := set.policies[p.Name]; ok {
			return nil, fmt.Errorf("rate: duplicate policy %q", p.Name)
		}
		set.policies[p.Name] = p
	}

	return set, nil
}

// Policy returns the named policy.
func (s *PolicySet) Policy(name string) (rate.Policy, error) {
	if s == nil {
		return rate.Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	p, ok := s.policies[name]
	if !ok {
		return rate.Policy{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}

// Names returns the configured policy names, sorted.
func (s *PolicySet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Consume spends one point for key under the named policy.
func (s *PolicySet) Consume(ctx context.Context, name, key string) (rate.Result, error) {
	p, err := s.Policy(name)
	if err != nil {
		return rate.Result{}, err
	}
	return s.limiter.Consume(ctx, p, key)
}

// Peek reports the counter state for key under the named policy.
func (s *PolicySet) Peek(ctx context.Context, name, key string) (rate.Status, error) {
	p, err := s.Policy(name)
	if err != nil {
		return rate.Status{}, err
	}
	return s.limiter.Peek(ctx, p, key)
}

// Reset clears the counter and block state for key under the named policy.
func (s *PolicySet) Reset(ctx context.Context, name, key string) error {
	p, err := s.Policy(name)
	if err != nil {
		return err
	}
	return s.limiter.Reset(ctx, p, key)
}
