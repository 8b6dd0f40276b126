package models

import (
	"fmt"

	"github.com/marmos91/storagehub/internal/bytesize"
)

// Quota holds the soft and hard byte limits for an entity's storage.
// Both limits are optional; a nil limit means unlimited. Values accept
// either plain byte counts or human-readable strings ("10Gi") in JSON.
type Quota struct {
	SoftLimitBytes *bytesize.ByteSize `json:"soft_limit_bytes,omitempty"`
	HardLimitBytes *bytesize.ByteSize `json:"hard_limit_bytes,omitempty"`
}

// Validate checks the soft <= hard invariant.
// Negative values cannot be represented (ByteSize is unsigned); they are
// rejected at decode time.
func (q *Quota) Validate() error {
	if q == nil {
		return nil
	}
	if q.SoftLimitBytes != nil && q.HardLimitBytes != nil &&
		*q.SoftLimitBytes > *q.HardLimitBytes {
		return fmt.Errorf("%w: soft limit %s exceeds hard limit %s",
			ErrQuotaInvalid, q.SoftLimitBytes, q.HardLimitBytes)
	}
	return nil
}

// IsUnlimited reports whether no limit is set at all.
func (q *Quota) IsUnlimited() bool {
	return q == nil || (q.SoftLimitBytes == nil && q.HardLimitBytes == nil)
}

// Soft returns the soft limit in bytes, or 0 if unset.
func (q *Quota) Soft() uint64 {
	if q == nil || q.SoftLimitBytes == nil {
		return 0
	}
	return q.SoftLimitBytes.Uint64()
}

// Hard returns the hard limit in bytes, or 0 if unset.
func (q *Quota) Hard() uint64 {
	if q == nil || q.HardLimitBytes == nil {
		return 0
	}
	return q.HardLimitBytes.Uint64()
}
