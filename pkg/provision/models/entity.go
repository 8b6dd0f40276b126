// Package models defines the entity model shared by the provisioning
// core, the persistent store and the API layer.
package models

import (
	"fmt"
	"path"
	"time"
	"unicode"

	"github.com/marmos91/storagehub/internal/bytesize"
)

// Kind identifies the class of a managed entity.
type Kind string

const (
	// KindUser is an individual user's storage allocation.
	KindUser Kind = "user"
	// KindGroup is a shared group storage allocation.
	KindGroup Kind = "group"
)

// IsValid checks if the kind is a known entity kind.
func (k Kind) IsValid() bool {
	return k == KindUser || k == KindGroup
}

// ParseKind converts a string to a Kind, rejecting unknown values.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown entity kind: %q", s)
	}
	return k, nil
}

// State is the lifecycle state of an entity.
//
// Mutating operations may only start from StateActive. The transient
// states mark an operation in flight; StateFailed marks an entity whose
// rollback could not complete and which needs an operator reset.
type State string

const (
	StateProvisioning State = "provisioning"
	StateActive       State = "active"
	StateUpdating     State = "updating"
	StateRemoving     State = "removing"
	StateFailed       State = "failed"
)

// Entity is a managed storage allocation for a user or a group.
//
// The on-disk location is never stored: it is derived from the backend
// base path and RelativePath, so a rename is a data move plus a record
// update, never an in-place path edit.
type Entity struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Kind      string    `gorm:"uniqueIndex:idx_entities_kind_name;not null;size:16" json:"kind"`
	Name      string    `gorm:"uniqueIndex:idx_entities_kind_name;not null;size:255" json:"name"`
	OwnerUID  uint32    `gorm:"not null" json:"owner_uid"`
	OwnerGID  uint32    `gorm:"not null" json:"owner_gid"`
	SoftLimit *uint64   `json:"soft_limit_bytes,omitempty"`
	HardLimit *uint64   `json:"hard_limit_bytes,omitempty"`
	State     string    `gorm:"not null;size:32" json:"state"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Entity.
func (Entity) TableName() string {
	return "entities"
}

// EntityKind returns the typed kind.
func (e *Entity) EntityKind() Kind {
	return Kind(e.Kind)
}

// EntityState returns the typed state.
func (e *Entity) EntityState() State {
	return State(e.State)
}

// RelativePath returns the storage location of the entity relative to
// the backend base path. Users live directly under the base, groups
// under a shared "groups" subtree.
func (e *Entity) RelativePath() string {
	if e.EntityKind() == KindGroup {
		return path.Join("groups", e.Name)
	}
	return e.Name
}

// Quota returns the entity's quota, or nil if none is set.
func (e *Entity) Quota() *Quota {
	if e.SoftLimit == nil && e.HardLimit == nil {
		return nil
	}
	q := &Quota{}
	if e.SoftLimit != nil {
		v := bytesize.ByteSize(*e.SoftLimit)
		q.SoftLimitBytes = &v
	}
	if e.HardLimit != nil {
		v := bytesize.ByteSize(*e.HardLimit)
		q.HardLimitBytes = &v
	}
	return q
}

// SetQuota stores the quota limits on the record. A nil quota clears
// both limits.
func (e *Entity) SetQuota(q *Quota) {
	e.SoftLimit = nil
	e.HardLimit = nil
	if q == nil {
		return
	}
	if q.SoftLimitBytes != nil {
		v := q.SoftLimitBytes.Uint64()
		e.SoftLimit = &v
	}
	if q.HardLimitBytes != nil {
		v := q.HardLimitBytes.Uint64()
		e.HardLimit = &v
	}
}

// ValidateName checks that a name is safe to use as a path component.
// The allowed set mirrors what home-directory names need in practice:
// letters (including accented ones), digits, dash and underscore.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrNameInvalid)
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			continue
		}
		return fmt.Errorf("%w: %q contains forbidden character %q", ErrNameInvalid, name, r)
	}
	return nil
}

// UsageSample is a point-in-time usage reading from the backend.
// It is never cached: every sample is a fresh backend query.
type UsageSample struct {
	UsedBytes   uint64    `json:"used_bytes"`
	UsedObjects uint64    `json:"used_objects"`
	ObservedAt  time.Time `json:"observed_at"`
}

// EntityView is the result DTO returned to the transport layer.
type EntityView struct {
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`
	Backend    string    `json:"backend"`
	QuotaScope string    `json:"quota_scope"`
	OwnerUID   uint32    `json:"owner_uid"`
	OwnerGID   uint32    `json:"owner_gid"`
	Quota      *Quota    `json:"quota,omitempty"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
}
