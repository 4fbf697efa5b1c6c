package metrics

import (
	"errors"
	"testing"

	"github.com/cuemby/wharf/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type staticReleases struct {
	releases []*types.Release
	err      error
}

func (s staticReleases) ListReleases() ([]*types.Release, error) {
	return s.releases, s.err
}

// TestCollect tests release gauges computed from storage
func TestCollect(t *testing.T) {
	c := NewCollector(staticReleases{releases: []*types.Release{
		{ID: "r1", Status: types.ReleaseStatusSuccess, Active: false},
		{ID: "r2", Status: types.ReleaseStatusSuccess, Active: true},
		{ID: "r3", Status: types.ReleaseStatusFailed},
		{ID: "r4", Status: types.ReleaseStatusInProgress},
	}})

	c.collect()

	assert.Equal(t, 2.0, testutil.ToFloat64(ReleasesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ReleasesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ReleasesTotal.WithLabelValues("in_progress")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ReleasesTotal.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveReleases))
}

// TestCollectListError tests that a storage error leaves gauges untouched
func TestCollectListError(t *testing.T) {
	ActiveReleases.Set(7)

	NewCollector(staticReleases{err: errors.New("db closed")}).collect()

	assert.Equal(t, 7.0, testutil.ToFloat64(ActiveReleases))
}
