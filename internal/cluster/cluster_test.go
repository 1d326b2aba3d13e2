package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsole struct {
	clusters    [][]rac.Record
	clusterErrs []error
	infobases   []rac.Record
	infobaseErr error
	clusterCall int
}

func (f *fakeConsole) ListClusters(ctx context.Context) ([]rac.Record, error) {
	idx := f.clusterCall
	f.clusterCall++
	var err error
	if idx < len(f.clusterErrs) {
		err = f.clusterErrs[idx]
	}
	if err != nil {
		return nil, err
	}
	if idx < len(f.clusters) {
		return f.clusters[idx], nil
	}
	return f.clusters[len(f.clusters)-1], nil
}

func (f *fakeConsole) ListInfobases(ctx context.Context, clusterID string) ([]rac.Record, error) {
	return f.infobases, f.infobaseErr
}

func TestIdentity_ResolveCaches(t *testing.T) {
	console := &fakeConsole{clusters: [][]rac.Record{{{"cluster": "c-1"}, {"cluster": "c-2"}}}}
	identity := NewIdentity(console)
	assert.Equal(t, StateUnresolved, identity.State())

	id, err := identity.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)

	id, err = identity.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)
	assert.Equal(t, 1, console.clusterCall, "resolved identity must not re-query")
	assert.Equal(t, StateResolved, identity.State())
}

func TestIdentity_EmptyListStaysUnresolved(t *testing.T) {
	console := &fakeConsole{clusters: [][]rac.Record{{}}}
	identity := NewIdentity(console)

	_, err := identity.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrClusterOffline)
	assert.Equal(t, StateUnresolved, identity.State())
}

func TestIdentity_MissingIdentifierField(t *testing.T) {
	console := &fakeConsole{clusters: [][]rac.Record{{{"host": "srv"}}}}
	identity := NewIdentity(console)

	_, err := identity.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrClusterOffline)
}

func TestIdentity_SelfHealsAfterTransportFailure(t *testing.T) {
	console := &fakeConsole{clusters: [][]rac.Record{
		{{"cluster": "old"}},
		{{"cluster": "new"}},
	}}
	identity := NewIdentity(console)

	id, err := identity.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "old", id)

	// A later query in the cycle fails with a transport error.
	transportErr := &rac.CommandError{ExitCode: 1, Output: "Connection refused"}
	assert.True(t, identity.ReportFailure(transportErr))
	assert.Equal(t, StateUnresolved, identity.State())

	id, err = identity.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", id, "identity must be re-resolved from scratch")
	assert.Equal(t, 2, console.clusterCall)
}

func TestIdentity_TimeoutInvalidates(t *testing.T) {
	identity := NewIdentity(&fakeConsole{clusters: [][]rac.Record{{{"cluster": "c"}}}})
	_, err := identity.Resolve(context.Background())
	require.NoError(t, err)

	assert.True(t, identity.ReportFailure(rac.ErrTimeout))
	_, ok := identity.Current()
	assert.False(t, ok)
}

func TestIdentity_NonConnectivityFailureKeepsIdentity(t *testing.T) {
	identity := NewIdentity(&fakeConsole{clusters: [][]rac.Record{{{"cluster": "c"}}}})
	_, err := identity.Resolve(context.Background())
	require.NoError(t, err)

	assert.False(t, identity.ReportFailure(&rac.CommandError{ExitCode: 1, Output: "session not found"}))
	assert.Equal(t, StateResolved, identity.State())
}

func TestIdentity_ListFailure(t *testing.T) {
	console := &fakeConsole{clusterErrs: []error{rac.ErrConsoleNotFound}}
	identity := NewIdentity(console)

	_, err := identity.Resolve(context.Background())
	assert.ErrorIs(t, err, rac.ErrConsoleNotFound)
	assert.Equal(t, StateUnresolved, identity.State())
}

func TestDirectory_RefreshPrefersSpecificIdentifier(t *testing.T) {
	console := &fakeConsole{infobases: []rac.Record{
		{"infobase": "ib-1", "name": "Acme_Buh"},
		{"uuid": "ib-2", "name": "Acme_Zup"},
		{"infobase": "ib-3", "uuid": "other", "name": "Beta"},
		{"infobase": "ib-4"},
	}}
	dir := NewDirectory(console)

	require.NoError(t, dir.Refresh(context.Background(), "c"))
	assert.Equal(t, 3, dir.Len())
	assert.Equal(t, "Acme_Buh", dir.Name("ib-1"))
	assert.Equal(t, "Acme_Zup", dir.Name("ib-2"))
	assert.Equal(t, "Beta", dir.Name("ib-3"))
	assert.Equal(t, "ib-4", dir.Name("ib-4"), "unknown ids fall back to the raw id")
}

func TestDirectory_RefreshReplacesInFull(t *testing.T) {
	console := &fakeConsole{infobases: []rac.Record{{"infobase": "ib-1", "name": "A"}}}
	dir := NewDirectory(console)
	require.NoError(t, dir.Refresh(context.Background(), "c"))

	console.infobases = []rac.Record{{"infobase": "ib-2", "name": "B"}}
	require.NoError(t, dir.Refresh(context.Background(), "c"))

	_, ok := dir.Lookup("ib-1")
	assert.False(t, ok, "removed infobases must not survive a refresh")
	assert.Equal(t, map[string]string{"ib-2": "B"}, dir.Infobases())
}

func TestDirectory_FailureClearsMap(t *testing.T) {
	console := &fakeConsole{infobases: []rac.Record{{"infobase": "ib-1", "name": "A"}}}
	dir := NewDirectory(console)
	require.NoError(t, dir.Refresh(context.Background(), "c"))

	console.infobaseErr = errors.New("boom")
	require.Error(t, dir.Refresh(context.Background(), "c"))
	assert.Equal(t, 0, dir.Len())
	assert.Equal(t, "ib-1", dir.Name("ib-1"))
}
