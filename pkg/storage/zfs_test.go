package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/storagehub/pkg/provision/models"
)

// datasetAbsent is what zfs list returns for a missing dataset.
var datasetAbsent = Result{ExitCode: 1, Stderr: "cannot open 'tank/storage/alice': dataset does not exist\n"}

func newZfsForTest(t *testing.T, runner *fakeRunner) *Zfs {
	t.Helper()
	// base dataset probe during construction; registered last so the
	// per-test dataset rules above it take precedence
	runner.on("zfs list -t filesystem tank/storage", Result{Stdout: "tank/storage\n"}, nil)
	backend, err := NewZfs("tank/storage", runner)
	require.NoError(t, err)
	return backend
}

func TestZfsProvision(t *testing.T) {
	runner := &fakeRunner{}
	mountpoint := t.TempDir()
	runner.on("zfs list -t filesystem tank/storage/alice", datasetAbsent, nil)
	runner.on("zfs create -p tank/storage/alice", Result{}, nil)
	runner.on("zfs get -Hp -o value mountpoint tank/storage/alice", Result{Stdout: mountpoint + "\n"}, nil)

	backend := newZfsForTest(t, runner)
	user := testEntity(models.KindUser, "alice")

	require.NoError(t, backend.Provision(context.Background(), user))
	assert.True(t, runner.called("zfs create -p tank/storage/alice"))
}

func TestZfsProvisionExisting(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("zfs list -t filesystem tank/storage/alice", Result{Stdout: "tank/storage/alice\n"}, nil)

	backend := newZfsForTest(t, runner)
	user := testEntity(models.KindUser, "alice")

	err := backend.Provision(context.Background(), user)
	assert.ErrorIs(t, err, models.ErrEntityExists)
	assert.False(t, runner.called("zfs create"))
}

func TestZfsApplyQuota(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("zfs list -t filesystem tank/storage/groups/research", Result{Stdout: "tank/storage/groups/research\n"}, nil)
	runner.on("zfs set", Result{}, nil)
	runner.on("zfs inherit", Result{}, nil)

	backend := newZfsForTest(t, runner)
	group := testEntity(models.KindGroup, "research")

	// soft 8GiB, hard 10GiB
	q := quotaOf(8<<30, 10<<30)
	require.NoError(t, backend.ApplyQuota(context.Background(), group, q))
	assert.True(t, runner.called("zfs set quota=10737418240 tank/storage/groups/research"))
	assert.True(t, runner.called("zfs set storagehub:softlimit=8589934592 tank/storage/groups/research"))

	// clearing the quota sets quota=none and inherits the soft property
	require.NoError(t, backend.ApplyQuota(context.Background(), group, &models.Quota{}))
	assert.True(t, runner.called("zfs set quota=none tank/storage/groups/research"))
	assert.True(t, runner.called("zfs inherit storagehub:softlimit tank/storage/groups/research"))
}

func TestZfsApplyQuotaAbsentDataset(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("zfs list -t filesystem tank/storage/alice", datasetAbsent, nil)

	backend := newZfsForTest(t, runner)
	user := testEntity(models.KindUser, "alice")

	err := backend.ApplyQuota(context.Background(), user, quotaOf(0, 1<<30))
	assert.ErrorIs(t, err, models.ErrEntityNotFound)
}

func TestZfsQueryUsage(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("zfs list -t filesystem tank/storage/alice", Result{Stdout: "tank/storage/alice\n"}, nil)
	runner.on("zfs get -Hp -o value used tank/storage/alice", Result{Stdout: "123456\n"}, nil)
	runner.on("zfs userspace -Hp -o objused tank/storage/alice", Result{Stdout: "17\n25\n"}, nil)

	backend := newZfsForTest(t, runner)
	user := testEntity(models.KindUser, "alice")

	sample, err := backend.QueryUsage(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), sample.UsedBytes)
	assert.Equal(t, uint64(42), sample.UsedObjects)
}

func TestZfsQueryUsageObjectAccountingUnavailable(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("zfs list -t filesystem tank/storage/alice", Result{Stdout: "tank/storage/alice\n"}, nil)
	runner.on("zfs get -Hp -o value used tank/storage/alice", Result{Stdout: "4096\n"}, nil)
	runner.on("zfs userspace", Result{ExitCode: 1, Stderr: "feature not enabled\n"}, nil)

	backend := newZfsForTest(t, runner)
	user := testEntity(models.KindUser, "alice")

	sample, err := backend.QueryUsage(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), sample.UsedBytes)
	assert.Zero(t, sample.UsedObjects)
}

func TestZfsRemoveIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("zfs list -t filesystem tank/storage/alice", datasetAbsent, nil)

	backend := newZfsForTest(t, runner)
	user := testEntity(models.KindUser, "alice")

	// absent dataset removes silently
	require.NoError(t, backend.Remove(context.Background(), user))
	assert.False(t, runner.called("zfs destroy"))
}

func TestZfsRename(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("zfs list -t filesystem tank/storage/alice2", datasetAbsent, nil)
	runner.on("zfs list -t filesystem tank/storage/alice", Result{Stdout: "tank/storage/alice\n"}, nil)
	runner.on("zfs rename", Result{}, nil)

	backend := newZfsForTest(t, runner)
	user := testEntity(models.KindUser, "alice")

	require.NoError(t, backend.Rename(context.Background(), user, "alice2"))
	assert.True(t, runner.called("zfs rename tank/storage/alice tank/storage/alice2"))
}

func TestZfsToolUnavailable(t *testing.T) {
	runner := &fakeRunner{}
	runner.on("zfs list -t filesystem tank/storage/alice", Result{}, errors.New("exec: \"zfs\": executable file not found in $PATH"))

	backend := newZfsForTest(t, runner)
	user := testEntity(models.KindUser, "alice")

	_, err := backend.QueryUsage(context.Background(), user)
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
}
