package version

import "sort"

// Policy controls when an automatic version is created from a diff.
type Policy struct {
	Enabled            bool `json:"enabled" yaml:"enabled"`
	OnAdd              bool `json:"on_add" yaml:"on_add"`
	OnDelete           bool `json:"on_delete" yaml:"on_delete"`
	OnModify           bool `json:"on_modify" yaml:"on_modify"`
	MinChangeThreshold int  `json:"min_change_threshold" yaml:"min_change_threshold"`
	KeepAutomatic      int  `json:"keep_automatic" yaml:"keep_automatic"` // retention count, 0 = unlimited
}

// DefaultPolicy versions on any kind of change once two or more tasks
// are touched, keeping the last twenty automatic versions.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:            true,
		OnAdd:              true,
		OnDelete:           true,
		OnModify:           true,
		MinChangeThreshold: 2,
		KeepAutomatic:      20,
	}
}

// ShouldVersion decides whether the diff warrants a persisted version.
// Pure; creating the version and pruning old ones is the caller's job.
func (p Policy) ShouldVersion(d Diff) bool {
	if !p.Enabled {
		return false
	}
	if d.Total() < p.MinChangeThreshold {
		return false
	}
	if len(d.Added) > 0 && !p.OnAdd {
		return false
	}
	if len(d.Removed) > 0 && !p.OnDelete {
		return false
	}
	// Purely-modification diffs are gated by OnModify; mixed diffs were
	// already admitted by the add/delete gates above.
	if len(d.Added) == 0 && len(d.Removed) == 0 && !p.OnModify {
		return false
	}
	return true
}

// Prunable returns the automatic versions that fall outside the
// retention window, oldest first. Manual versions are never pruned.
func (p Policy) Prunable(versions []Version) []Version {
	if p.KeepAutomatic <= 0 {
		return nil
	}
	auto := make([]Version, 0, len(versions))
	for _, v := range versions {
		if v.Automatic {
			auto = append(auto, v)
		}
	}
	if len(auto) <= p.KeepAutomatic {
		return nil
	}
	sort.Slice(auto, func(i, j int) bool { return auto[i].Number < auto[j].Number })
	return auto[:len(auto)-p.KeepAutomatic]
}
