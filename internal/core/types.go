package core

import (
	"time"
)

type RegionRole string

const (
	RolePrimary RegionRole = "primary"
	RoleStandby RegionRole = "standby"
)

// RegionEndpoint describes one region's entry points. Provisioning owns these;
// the orchestration core only reads them.
type RegionEndpoint struct {
	RegionID        string     `json:"region_id"`
	ComputeEndpoint string     `json:"compute_endpoint"`
	DatabaseHandle  string     `json:"database_handle"`
	Role            RegionRole `json:"role"`
}

type ProbeKind string

const (
	ProbeCompute  ProbeKind = "compute"
	ProbeDatabase ProbeKind = "database"
)

type HealthCheckResult struct {
	RegionID  string        `json:"region_id"`
	Kind      ProbeKind     `json:"kind"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

type HealthState string

const (
	StateHealthy   HealthState = "healthy"
	StateUnhealthy HealthState = "unhealthy"
)

// HealthStatus is the debounced judgment for a region. Only the monitor
// mutates it; everyone else reads State and nothing rawer.
type HealthStatus struct {
	RegionID             string      `json:"region_id"`
	ConsecutiveFailures  int         `json:"consecutive_failures"`
	ConsecutiveSuccesses int         `json:"consecutive_successes"`
	State                HealthState `json:"state"`
	LastCheck            time.Time   `json:"last_check"`
}

// ComputeScalingGroup mirrors the standby fleet's scaling group. Mutated only
// through the resource activator.
type ComputeScalingGroup struct {
	GroupID  string     `json:"group_id"`
	Min      int        `json:"min"`
	Max      int        `json:"max"`
	Desired  int        `json:"desired"`
	Observed int        `json:"observed"`
	Role     RegionRole `json:"role"`
}

type PromotionState string

const (
	PromotionReplica    PromotionState = "replica"
	PromotionPromoting  PromotionState = "promoting"
	PromotionStandalone PromotionState = "standalone"
)

// DatabaseReplica tracks the standby database. Promotion is one-way: once
// Standalone there is no path back to Replica.
type DatabaseReplica struct {
	ReplicaID      string         `json:"replica_id"`
	SourceID       string         `json:"source_id"`
	PromotionState PromotionState `json:"promotion_state"`
}

// DNSRecordSet holds the failover record pair for the protected name.
// ActiveTarget is derived from the bound health checks, never set directly.
type DNSRecordSet struct {
	RecordName     string            `json:"record_name"`
	PrimaryTarget  string            `json:"primary_target"`
	StandbyTarget  string            `json:"standby_target"`
	ActiveTarget   string            `json:"active_target"`
	HealthCheckIDs map[string]string `json:"health_check_ids"`
}
