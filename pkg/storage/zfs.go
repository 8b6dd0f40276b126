package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/marmos91/storagehub/internal/logger"
	"github.com/marmos91/storagehub/pkg/provision/models"
)

// softLimitProperty is the user property carrying the advisory soft
// limit. ZFS enforces only the hard limit (the quota property); the
// soft limit is recorded on the dataset so external tooling can alert
// on it.
const softLimitProperty = "storagehub:softlimit"

// Zfs provisions one dataset per entity under a base dataset. Quota and
// usage are native dataset properties, so accounting is exact and
// per-entity.
type Zfs struct {
	base string
	run  Runner
}

// NewZfs creates the zfs backend. The base dataset must already exist.
func NewZfs(base string, runner Runner) (*Zfs, error) {
	z := &Zfs{base: base, run: runner}
	exists, err := z.exists(context.Background(), base)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("base dataset %q does not exist", base)
	}
	return z, nil
}

// Name implements Backend.
func (z *Zfs) Name() string { return "zfs" }

// Scope implements Backend.
func (z *Zfs) Scope() QuotaScope { return ScopeDataset }

func (z *Zfs) dataset(entity *models.Entity) string {
	return path.Join(z.base, entity.RelativePath())
}

// exists checks for a dataset. A non-zero exit from zfs list means the
// dataset is absent; a failure to invoke zfs at all is a backend error.
func (z *Zfs) exists(ctx context.Context, dataset string) (bool, error) {
	args := []string{"list", "-t", "filesystem", dataset}
	res, err := z.run.Run(ctx, "zfs", args...)
	if err != nil {
		return false, toolError("zfs", args, res, err)
	}
	return res.ExitCode == 0, nil
}

// zfsOK runs a zfs subcommand that must succeed.
func (z *Zfs) zfsOK(ctx context.Context, args ...string) error {
	res, err := z.run.Run(ctx, "zfs", args...)
	if err != nil || res.ExitCode != 0 {
		return toolError("zfs", args, res, err)
	}
	return nil
}

// Provision implements Backend. It creates the entity's dataset
// (including the shared "groups" parent for group entities) and chowns
// the mountpoint to the entity's owner.
func (z *Zfs) Provision(ctx context.Context, entity *models.Entity) error {
	ds := z.dataset(entity)

	exists, err := z.exists(ctx, ds)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: dataset %s", models.ErrEntityExists, ds)
	}

	logger.Info("creating dataset", "dataset", ds, "uid", entity.OwnerUID, "gid", entity.OwnerGID)
	if err := z.zfsOK(ctx, "create", "-p", ds); err != nil {
		return err
	}

	mountpoint, err := z.property(ctx, ds, "mountpoint")
	if err != nil {
		return err
	}
	if err := os.Chown(mountpoint, int(entity.OwnerUID), int(entity.OwnerGID)); err != nil {
		return fmt.Errorf("%w: chown %s: %v", models.ErrBackendUnavailable, mountpoint, err)
	}
	return nil
}

// ApplyQuota implements Backend. The hard limit maps to the dataset
// quota property; the soft limit is stored as an advisory user
// property. Nil limits clear the corresponding property.
func (z *Zfs) ApplyQuota(ctx context.Context, entity *models.Entity, quota *models.Quota) error {
	if err := quota.Validate(); err != nil {
		return err
	}

	ds := z.dataset(entity)
	exists, err := z.exists(ctx, ds)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: dataset %s", models.ErrEntityNotFound, ds)
	}

	hard := "none"
	if quota != nil && quota.HardLimitBytes != nil {
		hard = strconv.FormatUint(quota.Hard(), 10)
	}
	logger.Info("setting dataset quota", "dataset", ds, "quota", hard)
	if err := z.zfsOK(ctx, "set", "quota="+hard, ds); err != nil {
		return err
	}

	if quota != nil && quota.SoftLimitBytes != nil {
		return z.zfsOK(ctx, "set",
			fmt.Sprintf("%s=%d", softLimitProperty, quota.Soft()), ds)
	}
	// inherit clears a local user property
	return z.zfsOK(ctx, "inherit", softLimitProperty, ds)
}

// QueryUsage implements Backend. Bytes come from the dataset's used
// property. Object counts come from zfs userspace accounting; pools
// without the userobj_accounting feature report zero objects.
func (z *Zfs) QueryUsage(ctx context.Context, entity *models.Entity) (models.UsageSample, error) {
	ds := z.dataset(entity)

	exists, err := z.exists(ctx, ds)
	if err != nil {
		return models.UsageSample{}, err
	}
	if !exists {
		return models.UsageSample{}, fmt.Errorf("%w: dataset %s", models.ErrEntityNotFound, ds)
	}

	used, err := z.property(ctx, ds, "used")
	if err != nil {
		return models.UsageSample{}, err
	}
	usedBytes, err := strconv.ParseUint(used, 10, 64)
	if err != nil {
		return models.UsageSample{}, fmt.Errorf("%w: unexpected used value %q", models.ErrBackendUnavailable, used)
	}

	objects := z.objectsUsed(ctx, ds)
	return newSample(usedBytes, objects), nil
}

// property reads a single dataset property in parseable form.
func (z *Zfs) property(ctx context.Context, dataset, name string) (string, error) {
	args := []string{"get", "-Hp", "-o", "value", name, dataset}
	res, err := z.run.Run(ctx, "zfs", args...)
	if err != nil || res.ExitCode != 0 {
		return "", toolError("zfs", args, res, err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// objectsUsed sums per-user object counts from zfs userspace. Failures
// degrade to zero rather than failing the whole usage query: the byte
// count is the load-bearing figure.
func (z *Zfs) objectsUsed(ctx context.Context, dataset string) uint64 {
	args := []string{"userspace", "-Hp", "-o", "objused", dataset}
	res, err := z.run.Run(ctx, "zfs", args...)
	if err != nil || res.ExitCode != 0 {
		logger.Debug("object accounting unavailable", "dataset", dataset, "stderr", res.Stderr)
		return 0
	}

	var total uint64
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "-" {
			continue
		}
		n, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

// Remove implements Backend. Destroy is recursive and idempotent: an
// absent dataset is a silent no-op.
func (z *Zfs) Remove(ctx context.Context, entity *models.Entity) error {
	ds := z.dataset(entity)

	exists, err := z.exists(ctx, ds)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	logger.Info("destroying dataset", "dataset", ds)
	return z.zfsOK(ctx, "destroy", "-r", ds)
}

// Rename implements Backend. zfs rename is atomic.
func (z *Zfs) Rename(ctx context.Context, entity *models.Entity, newName string) error {
	oldDS := z.dataset(entity)
	renamed := *entity
	renamed.Name = newName
	newDS := z.dataset(&renamed)

	exists, err := z.exists(ctx, newDS)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: dataset %s", models.ErrEntityExists, newDS)
	}

	exists, err = z.exists(ctx, oldDS)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: dataset %s", models.ErrEntityNotFound, oldDS)
	}

	logger.Info("renaming dataset", "old_path", oldDS, "new_path", newDS)
	return z.zfsOK(ctx, "rename", oldDS, newDS)
}
