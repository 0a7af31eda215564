package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/eams/pkg/observability"
	"github.com/platinummonkey/eams/pkg/storage"
)

// GrantAuditLock names the lock that keeps concurrent replicas from auditing at once
const GrantAuditLock = "grant-audit"

// DefaultLockTTL bounds how long a crashed auditor can hold the lock
const DefaultLockTTL = 5 * time.Minute

// GrantLister finds grants whose expiry has passed
type GrantLister interface {
	ListExpiredGrants(ctx context.Context, now time.Time) ([]storage.ExpiredGrant, error)
}

// Locker is a best-effort mutual exclusion shared between replicas
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

// AuditResult describes one audit run
type AuditResult struct {
	RanAt   time.Time              `json:"ran_at"`
	Skipped bool                   `json:"skipped"`
	Expired []storage.ExpiredGrant `json:"expired"`
}

// GrantAuditor reports company access grants that have expired. Expiry is not
// enforced by access checks, so the audit is how operators find stale grants.
type GrantAuditor struct {
	grants  GrantLister
	locker  Locker
	metrics *observability.Metrics
	logger  *observability.Logger
	lockTTL time.Duration
	now     func() time.Time
}

// NewGrantAuditor creates an auditor. locker and metrics may be nil.
func NewGrantAuditor(grants GrantLister, locker Locker, metrics *observability.Metrics, logger *observability.Logger) *GrantAuditor {
	return &GrantAuditor{
		grants:  grants,
		locker:  locker,
		metrics: metrics,
		logger:  logger.WithField("job", GrantAuditLock),
		lockTTL: DefaultLockTTL,
		now:     time.Now,
	}
}

// Run performs one audit. When another replica holds the lock the run is skipped.
func (a *GrantAuditor) Run(ctx context.Context) (*AuditResult, error) {
	result := &AuditResult{RanAt: a.now().UTC()}

	if a.locker != nil {
		acquired, err := a.locker.TryLock(ctx, GrantAuditLock, a.lockTTL)
		switch {
		case err != nil:
			// a read-only audit may run twice; losing it to a cache outage is worse
			a.logger.WithError(err).Warn("grant audit lock unavailable, running unlocked")
		case !acquired:
			a.logger.Debug("grant audit already running elsewhere, skipping")
			result.Skipped = true
			return result, nil
		default:
			defer func() {
				if err := a.locker.Unlock(context.WithoutCancel(ctx), GrantAuditLock); err != nil {
					a.logger.WithError(err).Warn("failed to release grant audit lock")
				}
			}()
		}
	}

	expired, err := a.grants.ListExpiredGrants(ctx, result.RanAt)
	a.metrics.RecordGrantAudit(len(expired), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired grants: %w", err)
	}
	result.Expired = expired

	for _, eg := range expired {
		entry := a.logger.WithFields(map[string]interface{}{
			"user_id":    eg.UserID,
			"email":      eg.Email,
			"grant_id":   eg.Grant.ID,
			"company_id": eg.Grant.CompanyID,
		})
		if eg.Grant.ExpiresAt != nil {
			entry = entry.WithField("expires_at", eg.Grant.ExpiresAt.UTC().Format(time.RFC3339))
		}
		entry.Warn("company access grant has expired")
	}

	a.logger.WithField("expired", len(expired)).Info("grant audit completed")
	return result, nil
}
