// Package election assigns a primary and a backup node to every call.
//
// Assignment is a pure function of the call's ledger id and the fleet size,
// so every node computes the same roles without talking to the others.
// The backup is drawn from a separately salted hash rather than "leader+1";
// as a consequence it coincides with the leader for roughly 1/N of calls, in
// which case that node simply acts as primary and no distinct backup exists.
package election

import (
	"crypto/sha256"
	"fmt"
	"time"
)

const (
	// DefaultNodeCount is the fixed oracle fleet size
	DefaultNodeCount = 3

	// DefaultGracePeriod is how long a backup waits past the deadline
	DefaultGracePeriod = 300 * time.Second

	backupSalt = "backup"
)

// Role is this node's responsibility for a call
type Role int

const (
	RoleNone Role = iota
	RolePrimary
	RoleBackup
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleBackup:
		return "backup"
	default:
		return "none"
	}
}

// Elector computes deterministic roles for a fixed-size fleet
type Elector struct {
	nodeCount   int
	gracePeriod time.Duration
}

// New creates an Elector. nodeCount must be in 1..255 so the single hash
// byte maps onto every node.
func New(nodeCount int, gracePeriod time.Duration) (*Elector, error) {
	if nodeCount < 1 || nodeCount > 255 {
		return nil, fmt.Errorf("node count must be between 1 and 255, got %d", nodeCount)
	}
	if gracePeriod < 0 {
		return nil, fmt.Errorf("grace period must not be negative, got %s", gracePeriod)
	}
	return &Elector{nodeCount: nodeCount, gracePeriod: gracePeriod}, nil
}

// Leader returns the 1-based index of the primary node for callID
func (e *Elector) Leader(callID string) int {
	sum := sha256.Sum256([]byte(callID))
	return int(sum[0])%e.nodeCount + 1
}

// Backup returns the 1-based index of the backup node for callID
func (e *Elector) Backup(callID string) int {
	sum := sha256.Sum256([]byte(callID + backupSalt))
	return int(sum[0])%e.nodeCount + 1
}

// RoleOf returns the role of node (1-based) for callID. A node that is
// both leader and backup is reported as primary.
func (e *Elector) RoleOf(callID string, node int) Role {
	switch {
	case e.Leader(callID) == node:
		return RolePrimary
	case e.Backup(callID) == node:
		return RoleBackup
	default:
		return RoleNone
	}
}

// ShouldAct applies the failover timing rules for a call with the given deadline
func (e *Elector) ShouldAct(role Role, deadline int64, now time.Time) bool {
	deadlineAt := time.Unix(deadline, 0)
	switch role {
	case RolePrimary:
		return !now.Before(deadlineAt)
	case RoleBackup:
		return !now.Before(deadlineAt.Add(e.gracePeriod))
	default:
		return false
	}
}

// NodeCount returns the fleet size
func (e *Elector) NodeCount() int {
	return e.nodeCount
}

// GracePeriod returns the backup takeover delay
func (e *Elector) GracePeriod() time.Duration {
	return e.gracePeriod
}
