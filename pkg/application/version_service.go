package application

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
	"github.com/felixgeelhaar/ganttly/pkg/storage"
)

// DefaultVersionInterval is the cadence the working snapshot is diffed
// against the last committed one.
const DefaultVersionInterval = 30 * time.Second

// VersionService drives the auto-versioning cadence and the manual
// version lifecycle for one session.
type VersionService struct {
	session  *SessionService
	store    storage.RemoteStore
	policy   version.Policy
	interval time.Duration
}

// NewVersionService wires the cadence against the session's store.
func NewVersionService(session *SessionService, store storage.RemoteStore, policy version.Policy, interval time.Duration) *VersionService {
	if interval <= 0 {
		interval = DefaultVersionInterval
	}
	return &VersionService{
		session:  session,
		store:    store,
		policy:   policy,
		interval: interval,
	}
}

// Run diffs on a ticker until the context is cancelled. Check errors
// are swallowed; the next tick tries again.
func (s *VersionService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = s.CheckOnce(ctx)
		}
	}
}

// CheckOnce diffs the working snapshot against the last committed one
// and creates an automatic version if the policy says so. Returns
// whether a version was created.
func (s *VersionService) CheckOnce(ctx context.Context) (bool, error) {
	diff := version.Compare(s.session.LastCommitted(), s.session.CurrentSnapshot())
	if !s.policy.ShouldVersion(diff) {
		return false, nil
	}

	v, err := s.store.CreateVersion(ctx, s.session.ProjectID(), diff.Summary(), true, s.session.Actor())
	if err != nil {
		return false, fmt.Errorf("create automatic version: %w", err)
	}
	s.session.SetCommitted(v.Snapshot)

	if err := s.prune(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// CreateManual creates a user-initiated version with the given
// description.
func (s *VersionService) CreateManual(ctx context.Context, description string) (*version.Version, error) {
	v, err := s.store.CreateVersion(ctx, s.session.ProjectID(), description, false, s.session.Actor())
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}
	s.session.SetCommitted(v.Snapshot)
	return v, nil
}

// List returns the project's versions, oldest first.
func (s *VersionService) List(ctx context.Context) ([]version.Version, error) {
	return s.store.ListVersions(ctx, s.session.ProjectID())
}

// Restore copies a version back over the stored project and reloads
// the session onto the restored state, resetting history and the dirty
// flag.
func (s *VersionService) Restore(ctx context.Context, versionID string) error {
	if err := s.store.RestoreVersion(ctx, s.session.ProjectID(), versionID); err != nil {
		return fmt.Errorf("restore version: %w", err)
	}
	return s.session.Load(ctx)
}

// Delete removes a version permanently.
func (s *VersionService) Delete(ctx context.Context, versionID string) error {
	return s.store.DeleteVersion(ctx, s.session.ProjectID(), versionID)
}

// prune evicts the oldest automatic versions beyond the retention
// count. Manual versions are never touched.
func (s *VersionService) prune(ctx context.Context) error {
	versions, err := s.store.ListVersions(ctx, s.session.ProjectID())
	if err != nil {
		return err
	}
	for _, v := range s.policy.Prunable(versions) {
		if err := s.store.DeleteVersion(ctx, s.session.ProjectID(), v.ID); err != nil {
			return fmt.Errorf("prune version %d: %w", v.Number, err)
		}
	}
	return nil
}
