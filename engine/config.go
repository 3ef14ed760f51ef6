package engine

import (
	"github.com/pkg/errors"

	"github.com/taskfleet/clustersched/autoscale"
	"github.com/taskfleet/clustersched/common"
	"github.com/taskfleet/clustersched/quota"
	"github.com/taskfleet/clustersched/sched"
	"github.com/taskfleet/clustersched/schederr"
)

// RejectCallback is invoked whenever an offer is rejected by the
// engine, whatever the reason.
type RejectCallback func(offerId, hostname string, reason sched.RejectReason)

// Config is the engine's single validated configuration record,
// constructed once via NewConfig. This replaces the fluent,
// mutually-dependent builder pattern the source material uses
// (autoScaleByAttributeName must precede any withAutoScaleRule call);
// here every cross-field constraint is checked exactly once, at
// construction, rather than being order-dependent on call sequence.
type Config struct {
	LeaseOfferExpirySecs int

	FitnessCalculator   sched.FitnessCalculator
	IsFitnessGoodEnough sched.IsGoodEnough

	AutoScaleByAttributeName            string
	AutoScalerMapHostnameAttributeName  string
	AutoScaleDownBalancedByAttributeName string
	AutoscalerCallback                  autoscale.Callback
	DisableShortfallEvaluation          bool
	AutoScaleRules                      []autoscale.Rule

	SingleOfferPerHost bool
	InitialResAllocs   map[string]quota.Quota

	LeaseRejectCallback RejectCallback
}

// Option mutates a Config under construction. Applied in order by
// NewConfig, then validated once as a whole.
type Option func(*Config)

func WithLeaseOfferExpirySecs(secs int) Option {
	return func(c *Config) { c.LeaseOfferExpirySecs = secs }
}

func WithFitnessCalculator(fn sched.FitnessCalculator) Option {
	return func(c *Config) { c.FitnessCalculator = fn }
}

func WithIsFitnessGoodEnough(fn sched.IsGoodEnough) Option {
	return func(c *Config) { c.IsFitnessGoodEnough = fn }
}

func WithAutoScaleByAttributeName(name string) Option {
	return func(c *Config) { c.AutoScaleByAttributeName = name }
}

func WithAutoScalerMapHostnameAttributeName(name string) Option {
	return func(c *Config) { c.AutoScalerMapHostnameAttributeName = name }
}

func WithAutoScaleDownBalancedByAttributeName(name string) Option {
	return func(c *Config) { c.AutoScaleDownBalancedByAttributeName = name }
}

func WithAutoscalerCallback(cb autoscale.Callback) Option {
	return func(c *Config) { c.AutoscalerCallback = cb }
}

func WithDisableShortfallEvaluation(disable bool) Option {
	return func(c *Config) { c.DisableShortfallEvaluation = disable }
}

func WithSingleOfferPerHost(single bool) Option {
	return func(c *Config) { c.SingleOfferPerHost = single }
}

func WithInitialResAllocs(allocs map[string]quota.Quota) Option {
	return func(c *Config) { c.InitialResAllocs = allocs }
}

func WithLeaseRejectCallback(cb RejectCallback) Option {
	return func(c *Config) { c.LeaseRejectCallback = cb }
}

func WithAutoScaleRules(rules []autoscale.Rule) Option {
	return func(c *Config) { c.AutoScaleRules = rules }
}

func defaultConfig() *Config {
	return &Config{
		LeaseOfferExpirySecs: int(common.DefaultLeaseOfferExpiry.Seconds()),
		FitnessCalculator:    func(*sched.TaskRequest, string, sched.TrackerSnapshot) float64 { return 1.0 },
		IsFitnessGoodEnough:  func(fitness float64) bool { return fitness > 1.0 },
	}
}

// NewConfig builds and validates a Config. leaseRejectCallback is
// required; an autoscaler callback or any autoscale rule requires
// AutoScaleByAttributeName to have been set among opts.
func NewConfig(opts ...Option) (*Config, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.LeaseRejectCallback == nil {
		return schederr.Newf(schederr.BadConfig, "leaseRejectCallback is required")
	}
	if c.LeaseOfferExpirySecs <= 0 {
		return schederr.Newf(schederr.BadConfig, "leaseOfferExpirySecs must be > 0, got %d", c.LeaseOfferExpirySecs)
	}
	if c.AutoscalerCallback != nil && c.AutoScaleByAttributeName == "" {
		return schederr.Newf(schederr.BadConfig, "autoscalerCallback set without autoScaleByAttributeName")
	}
	if len(c.AutoScaleRules) > 0 && c.AutoScaleByAttributeName == "" {
		return schederr.Newf(schederr.BadAutoscaleRule, "autoScaleRules configured without autoScaleByAttributeName")
	}
	for _, r := range c.AutoScaleRules {
		if err := r.Validate(); err != nil {
			return schederr.New(schederr.BadAutoscaleRule, errors.Wrapf(err, "rule for group %q", r.Group))
		}
	}
	return nil
}
