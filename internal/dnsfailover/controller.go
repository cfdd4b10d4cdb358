package dnsfailover

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/notify"
)

// Adapter is the provisioning-layer DNS surface: health-check binding and
// failover record upserts.
type Adapter interface {
	BindHealthCheck(ctx context.Context, endpoint string, failureThreshold int, interval time.Duration) (string, error)
	UpsertFailoverRecord(ctx context.Context, name, setID string, role core.RegionRole, target, checkID string) error
}

// HealthSource is the monitor's debounced view, shared with the workflow
// engine so the two can never disagree on the underlying signal.
type HealthSource interface {
	Status(regionID string) core.HealthStatus
}

// ReplicaSource lets the controller warn when traffic is steered at a standby
// whose database has not been promoted yet.
type ReplicaSource interface {
	Describe(ctx context.Context, replicaID string) (core.DatabaseReplica, error)
}

type Config struct {
	RecordName       string
	Primary          core.RegionEndpoint
	Standby          core.RegionEndpoint
	StandbyReplicaID string
	FailureThreshold int
	CheckInterval    time.Duration
	WatchInterval    time.Duration
	// Resolver is the nameserver used to verify live answers, host:port.
	// Empty disables resolution verification.
	Resolver string
}

// Controller maintains the failover record pair and steers traffic passively:
// it acts on the monitor's debounced health state on its own timer, never
// waiting on the workflow engine. That means DNS can move traffic to the
// standby before the standby database is promoted; the controller publishes a
// degraded-reads warning when it observes that window.
type Controller struct {
	cfg      Config
	adapter  Adapter
	health   HealthSource
	replicas ReplicaSource
	notifier notify.Notifier
	logger   *zap.Logger

	resolver *dns.Client

	// resolve and lookup are swapped in tests.
	resolve func(ctx context.Context) ([]string, error)
	lookup  func(host string) ([]string, error)

	mu        sync.RWMutex
	recordSet core.DNSRecordSet
	onFlip    func(activeTarget string)
}

// verifyEvery spaces the resolution checks out to every Nth watch tick so the
// configured resolver is not queried on every steering evaluation.
const verifyEvery = 4

func NewController(cfg Config, adapter Adapter, health HealthSource, replicas ReplicaSource, notifier notify.Notifier, logger *zap.Logger) *Controller {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 3
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = 15 * time.Second
	}
	c := &Controller{
		cfg:      cfg,
		adapter:  adapter,
		health:   health,
		replicas: replicas,
		notifier: notifier,
		logger:   logger,
		resolver: &dns.Client{Timeout: 5 * time.Second},
		lookup:   net.LookupHost,
		recordSet: core.DNSRecordSet{
			RecordName:     cfg.RecordName,
			PrimaryTarget:  cfg.Primary.ComputeEndpoint,
			StandbyTarget:  cfg.Standby.ComputeEndpoint,
			ActiveTarget:   cfg.Primary.ComputeEndpoint,
			HealthCheckIDs: map[string]string{},
		},
	}
	c.resolve = c.ResolveActive
	return c
}

// SetFlipHook registers a callback invoked whenever the active target
// changes. Used for metrics.
func (c *Controller) SetFlipHook(fn func(activeTarget string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFlip = fn
}

// EnsureRecords binds one health check per endpoint and upserts the
// primary/secondary failover record pair. Idempotent; safe on every startup.
func (c *Controller) EnsureRecords(ctx context.Context) error {
	endpoints := []struct {
		region core.RegionEndpoint
		setID  string
	}{
		{c.cfg.Primary, "primary"},
		{c.cfg.Standby, "standby"},
	}

	for _, ep := range endpoints {
		checkID, err := c.adapter.BindHealthCheck(ctx, ep.region.ComputeEndpoint,
			c.cfg.FailureThreshold, c.cfg.CheckInterval)
		if err != nil {
			return fmt.Errorf("bind health check for %s: %w", ep.region.RegionID, err)
		}

		err = c.adapter.UpsertFailoverRecord(ctx, c.cfg.RecordName, ep.setID,
			ep.region.Role, ep.region.ComputeEndpoint, checkID)
		if err != nil {
			return fmt.Errorf("upsert record for %s: %w", ep.region.RegionID, err)
		}

		c.mu.Lock()
		c.recordSet.HealthCheckIDs[ep.region.RegionID] = checkID
		c.mu.Unlock()

		c.logger.Info("Failover record ensured",
			zap.String("record", c.cfg.RecordName),
			zap.String("set_id", ep.setID),
			zap.String("target", ep.region.ComputeEndpoint),
			zap.String("check_id", checkID),
		)
	}
	return nil
}

// RecordSet returns a snapshot of the managed record pair.
func (c *Controller) RecordSet() core.DNSRecordSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.recordSet
	out.HealthCheckIDs = make(map[string]string, len(c.recordSet.HealthCheckIDs))
	for k, v := range c.recordSet.HealthCheckIDs {
		out.HealthCheckIDs[k] = v
	}
	return out
}

// Start runs the steering watch loop until the context is cancelled.
func (c *Controller) Start(ctx context.Context) {
	c.logger.Info("Starting DNS failover controller",
		zap.String("record", c.cfg.RecordName),
		zap.Duration("watch_interval", c.cfg.WatchInterval),
	)

	// Evaluate immediately so the first steering decision does not wait a
	// full interval after startup.
	c.evaluate(ctx)

	ticker := time.NewTicker(c.cfg.WatchInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping DNS failover controller")
			return
		case <-ticker.C:
			c.evaluate(ctx)
			ticks++
			if c.cfg.Resolver != "" && ticks%verifyEvery == 0 {
				c.VerifyActive(ctx)
			}
		}
	}
}

// evaluate derives the active target from the primary's debounced health and
// records flips. ActiveTarget is never set directly by anything else: it is
// purely the consequence of the bound health state.
func (c *Controller) evaluate(ctx context.Context) {
	status := c.health.Status(c.cfg.Primary.RegionID)

	desired := c.cfg.Primary.ComputeEndpoint
	if status.State == core.StateUnhealthy {
		desired = c.cfg.Standby.ComputeEndpoint
	}

	c.mu.Lock()
	previous := c.recordSet.ActiveTarget
	c.recordSet.ActiveTarget = desired
	hook := c.onFlip
	c.mu.Unlock()

	if desired == previous {
		return
	}

	c.logger.Warn("DNS steering flipped",
		zap.String("record", c.cfg.RecordName),
		zap.String("from", previous),
		zap.String("to", desired),
		zap.String("primary_state", string(status.State)),
	)
	if hook != nil {
		hook(desired)
	}

	if desired == c.cfg.Standby.ComputeEndpoint {
		c.warnIfUnpromoted(ctx)
		c.publish(ctx, "DNS failover engaged",
			fmt.Sprintf("record %s now resolves to standby %s", c.cfg.RecordName, desired))
	} else {
		c.publish(ctx, "DNS failback",
			fmt.Sprintf("record %s reverted to primary %s", c.cfg.RecordName, desired))
	}
}

// warnIfUnpromoted flags the documented race: traffic steered to a standby
// whose replica is still read-only serves degraded reads until the workflow
// finishes promotion.
func (c *Controller) warnIfUnpromoted(ctx context.Context) {
	if c.replicas == nil || c.cfg.StandbyReplicaID == "" {
		return
	}
	replica, err := c.replicas.Describe(ctx, c.cfg.StandbyReplicaID)
	if err != nil {
		c.logger.Warn("Could not check standby replica state", zap.Error(err))
		return
	}
	if replica.PromotionState != core.PromotionStandalone {
		c.logger.Warn("Traffic steered to standby before promotion completed",
			zap.String("replica_id", c.cfg.StandbyReplicaID),
			zap.String("promotion_state", string(replica.PromotionState)),
		)
		c.publish(ctx, "DR degraded reads",
			fmt.Sprintf("standby serving traffic while replica %s is %s",
				c.cfg.StandbyReplicaID, replica.PromotionState))
	}
}

// ResolveActive queries the configured resolver for the protected name and
// returns the served answer, used to detect drift between the derived active
// target and what clients actually resolve.
func (c *Controller) ResolveActive(ctx context.Context) ([]string, error) {
	if c.cfg.Resolver == "" {
		return nil, fmt.Errorf("no resolver configured")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(c.cfg.RecordName), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := c.resolver.ExchangeContext(ctx, msg, c.cfg.Resolver)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", c.cfg.RecordName, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("resolve %s: rcode %s", c.cfg.RecordName, dns.RcodeToString[resp.Rcode])
	}

	var answers []string
	for _, rr := range resp.Answer {
		switch record := rr.(type) {
		case *dns.A:
			answers = append(answers, record.A.String())
		case *dns.CNAME:
			answers = append(answers, record.Target)
		}
	}
	return answers, nil
}

// VerifyActive compares the live answer with the derived active target and
// logs drift. DNS propagation makes transient drift normal; persistent drift
// means the record bindings are wrong.
func (c *Controller) VerifyActive(ctx context.Context) {
	answers, err := c.resolve(ctx)
	if err != nil {
		c.logger.Debug("Resolution verification skipped", zap.Error(err))
		return
	}

	active := c.RecordSet().ActiveTarget
	expected, err := c.lookup(active)
	if err != nil {
		c.logger.Debug("Could not resolve active target for comparison",
			zap.String("active", active), zap.Error(err))
		return
	}

	match := false
	for _, a := range answers {
		for _, e := range expected {
			if a == e {
				match = true
			}
		}
	}
	if !match {
		c.logger.Warn("Served DNS answer drifts from derived active target",
			zap.Strings("answers", answers),
			zap.String("active_target", active),
		)
	}
}

func (c *Controller) publish(ctx context.Context, subject, message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, subject, message); err != nil {
		c.logger.Warn("Notification publish failed", zap.Error(err), zap.String("subject", subject))
	}
}
