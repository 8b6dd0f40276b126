package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagehub/pkg/provision/models"
)

func testEntity(kind models.Kind, name string) *models.Entity {
	return &models.Entity{
		Kind:     string(kind),
		Name:     name,
		OwnerUID: uint32(os.Getuid()),
		OwnerGID: uint32(os.Getgid()),
		State:    string(models.StateActive),
	}
}

func quotaOf(soft, hard uint64) *models.Quota {
	q := &models.Quota{}
	if soft > 0 {
		s := bytesizeOf(soft)
		q.SoftLimitBytes = &s
	}
	if hard > 0 {
		h := bytesizeOf(hard)
		q.HardLimitBytes = &h
	}
	return q
}

func TestPosixProvision(t *testing.T) {
	base := t.TempDir()
	backend, err := NewPosix(base, &fakeRunner{})
	require.NoError(t, err)

	ctx := context.Background()
	user := testEntity(models.KindUser, "alice")

	require.NoError(t, backend.Provision(ctx, user))
	info, err := os.Stat(filepath.Join(base, "alice"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// retry on an existing location fails
	err = backend.Provision(ctx, user)
	assert.ErrorIs(t, err, models.ErrEntityExists)

	// groups land under the shared groups subtree
	group := testEntity(models.KindGroup, "research")
	require.NoError(t, backend.Provision(ctx, group))
	_, err = os.Stat(filepath.Join(base, "groups", "research"))
	require.NoError(t, err)
}

func TestPosixApplyQuota(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{}
	runner.on("setquota", Result{}, nil)

	backend, err := NewPosix(base, runner)
	require.NoError(t, err)

	ctx := context.Background()
	user := testEntity(models.KindUser, "alice")

	// absent location
	err = backend.ApplyQuota(ctx, user, quotaOf(0, 1024))
	assert.ErrorIs(t, err, models.ErrEntityNotFound)

	require.NoError(t, backend.Provision(ctx, user))
	require.NoError(t, backend.ApplyQuota(ctx, user, quotaOf(1024, 2048)))
	assert.True(t, runner.called("setquota -u"))

	// soft > hard is rejected before any tool runs
	err = backend.ApplyQuota(ctx, user, quotaOf(4096, 2048))
	assert.ErrorIs(t, err, models.ErrQuotaInvalid)
}

func TestPosixApplyQuotaToolMissing(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{}
	runner.on("setquota", Result{}, os.ErrNotExist)

	backend, err := NewPosix(base, runner)
	require.NoError(t, err)

	ctx := context.Background()
	user := testEntity(models.KindUser, "bob")
	require.NoError(t, backend.Provision(ctx, user))

	err = backend.ApplyQuota(ctx, user, quotaOf(0, 2048))
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
}

func TestPosixQueryUsage(t *testing.T) {
	base := t.TempDir()
	runner := &fakeRunner{}
	runner.on("du -sb", Result{Stdout: "4096\t" + filepath.Join(base, "alice") + "\n"}, nil)
	runner.on("du -s --inodes", Result{Stdout: "3\t" + filepath.Join(base, "alice") + "\n"}, nil)

	backend, err := NewPosix(base, runner)
	require.NoError(t, err)

	ctx := context.Background()
	user := testEntity(models.KindUser, "alice")

	_, err = backend.QueryUsage(ctx, user)
	assert.ErrorIs(t, err, models.ErrEntityNotFound)

	require.NoError(t, backend.Provision(ctx, user))
	sample, err := backend.QueryUsage(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), sample.UsedBytes)
	assert.Equal(t, uint64(3), sample.UsedObjects)
	assert.False(t, sample.ObservedAt.IsZero())
}

func TestPosixRemoveIdempotent(t *testing.T) {
	base := t.TempDir()
	backend, err := NewPosix(base, &fakeRunner{})
	require.NoError(t, err)

	ctx := context.Background()
	user := testEntity(models.KindUser, "alice")

	require.NoError(t, backend.Provision(ctx, user))
	require.NoError(t, backend.Remove(ctx, user))
	// second removal of an absent location still succeeds
	require.NoError(t, backend.Remove(ctx, user))
}

func TestPosixRename(t *testing.T) {
	base := t.TempDir()
	backend, err := NewPosix(base, &fakeRunner{})
	require.NoError(t, err)

	ctx := context.Background()
	user := testEntity(models.KindUser, "alice")
	require.NoError(t, backend.Provision(ctx, user))

	require.NoError(t, backend.Rename(ctx, user, "alice2"))
	_, err = os.Stat(filepath.Join(base, "alice2"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(base, "alice"))
	assert.True(t, os.IsNotExist(err))

	// renaming a missing source
	err = backend.Rename(ctx, user, "alice3")
	assert.ErrorIs(t, err, models.ErrEntityNotFound)

	// renaming onto an existing target
	other := testEntity(models.KindUser, "bob")
	require.NoError(t, backend.Provision(ctx, other))
	moved := testEntity(models.KindUser, "alice2")
	err = backend.Rename(ctx, moved, "bob")
	assert.ErrorIs(t, err, models.ErrEntityExists)
}

func TestPosixScope(t *testing.T) {
	backend, err := NewPosix(t.TempDir(), &fakeRunner{})
	require.NoError(t, err)
	assert.Equal(t, ScopeFilesystemOwner, backend.Scope())
}

func TestBackendConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"posix ok", Config{Backend: "posix", BasePath: "/srv/storage"}, false},
		{"zfs ok", Config{Backend: "zfs", BasePath: "tank/storage"}, false},
		{"empty base", Config{Backend: "posix"}, true},
		{"trailing slash", Config{Backend: "posix", BasePath: "/srv/"}, true},
		{"unknown backend", Config{Backend: "btrfs", BasePath: "/srv"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
