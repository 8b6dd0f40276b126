package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/marmos91/storagehub/internal/logger"
	"github.com/marmos91/storagehub/pkg/provision/models"
)

// Posix provisions plain directories under a base path and enforces
// quotas through the host's disk-quota facility (setquota).
//
// Quota enforcement is coarse-grained: disk quotas apply per owning
// uid/gid across the whole filesystem containing the base path, not per
// directory. Scope() reports this so the API can surface it to callers.
type Posix struct {
	base string
	run  Runner
}

// NewPosix creates the posix backend. The base path must already exist
// and be a directory.
func NewPosix(base string, runner Runner) (*Posix, error) {
	info, err := os.Stat(base)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("base path %q is not a directory", base)
	}
	return &Posix{base: base, run: runner}, nil
}

// Name implements Backend.
func (p *Posix) Name() string { return "posix" }

// Scope implements Backend.
func (p *Posix) Scope() QuotaScope { return ScopeFilesystemOwner }

func (p *Posix) path(entity *models.Entity) string {
	return filepath.Join(p.base, entity.RelativePath())
}

// Provision implements Backend. It creates the directory (and the
// shared "groups" parent when needed) and assigns ownership to the
// entity's uid/gid.
func (p *Posix) Provision(ctx context.Context, entity *models.Entity) error {
	abs := p.path(entity)

	if _, err := os.Stat(abs); err == nil {
		return fmt.Errorf("%w: %s", models.ErrEntityExists, abs)
	}

	logger.Info("creating storage directory", "path", abs, "uid", entity.OwnerUID, "gid", entity.OwnerGID)

	if err := os.MkdirAll(abs, 0o770); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", models.ErrBackendUnavailable, abs, err)
	}
	if err := os.Chown(abs, int(entity.OwnerUID), int(entity.OwnerGID)); err != nil {
		return fmt.Errorf("%w: chown %s: %v", models.ErrBackendUnavailable, abs, err)
	}
	return nil
}

// ApplyQuota implements Backend. Limits are converted to 1KiB blocks
// and applied with setquota against the filesystem containing the base
// path, keyed by the entity's owning uid (users) or gid (groups).
func (p *Posix) ApplyQuota(ctx context.Context, entity *models.Entity, quota *models.Quota) error {
	if err := quota.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(p.path(entity)); err != nil {
		return fmt.Errorf("%w: %s", models.ErrEntityNotFound, p.path(entity))
	}

	flag, id := "-u", entity.OwnerUID
	if entity.EntityKind() == models.KindGroup {
		flag, id = "-g", entity.OwnerGID
	}

	soft := bytesToBlocks(quota.Soft())
	hard := bytesToBlocks(quota.Hard())

	args := []string{
		flag, strconv.FormatUint(uint64(id), 10),
		strconv.FormatUint(soft, 10), strconv.FormatUint(hard, 10),
		"0", "0",
		p.base,
	}
	res, err := p.run.Run(ctx, "setquota", args...)
	if err != nil || res.ExitCode != 0 {
		return toolError("setquota", args, res, err)
	}
	return nil
}

// QueryUsage implements Backend. Usage comes from two du invocations,
// one for bytes and one for inode counts.
func (p *Posix) QueryUsage(ctx context.Context, entity *models.Entity) (models.UsageSample, error) {
	abs := p.path(entity)
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return models.UsageSample{}, fmt.Errorf("%w: %s", models.ErrEntityNotFound, abs)
	}

	bytesUsed, err := p.duValue(ctx, abs, "-sb")
	if err != nil {
		return models.UsageSample{}, err
	}
	objects, err := p.duValue(ctx, abs, "-s", "--inodes")
	if err != nil {
		return models.UsageSample{}, err
	}

	return newSample(bytesUsed, objects), nil
}

// duValue runs du with the given flags and parses the leading counter
// from its single summary line.
func (p *Posix) duValue(ctx context.Context, path string, flags ...string) (uint64, error) {
	args := append(flags, path)
	res, err := p.run.Run(ctx, "du", args...)
	if err != nil || res.ExitCode != 0 {
		return 0, toolError("du", args, res, err)
	}

	fields := strings.Fields(res.Stdout)
	if len(fields) < 2 {
		return 0, fmt.Errorf("%w: unexpected du output: %q", models.ErrBackendUnavailable, res.Stdout)
	}
	value, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected du output: %q", models.ErrBackendUnavailable, res.Stdout)
	}
	return value, nil
}

// Remove implements Backend. RemoveAll succeeds on an absent path, so
// the idempotency contract holds without an existence check.
func (p *Posix) Remove(ctx context.Context, entity *models.Entity) error {
	abs := p.path(entity)
	logger.Info("removing storage directory", "path", abs)
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("%w: remove %s: %v", models.ErrBackendUnavailable, abs, err)
	}
	return nil
}

// Rename implements Backend. os.Rename within the base path stays on
// one filesystem and is atomic in practice, but the contract does not
// promise atomicity, so the orchestrator keeps rollback bookkeeping for
// this path.
func (p *Posix) Rename(ctx context.Context, entity *models.Entity, newName string) error {
	oldPath := p.path(entity)
	renamed := *entity
	renamed.Name = newName
	newPath := p.path(&renamed)

	if _, err := os.Stat(newPath); err == nil {
		return fmt.Errorf("%w: %s", models.ErrEntityExists, newPath)
	}
	if _, err := os.Stat(oldPath); err != nil {
		return fmt.Errorf("%w: %s", models.ErrEntityNotFound, oldPath)
	}

	logger.Info("renaming storage directory", "old_path", oldPath, "new_path", newPath)
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("%w: rename %s -> %s: %v", models.ErrBackendUnavailable, oldPath, newPath, err)
	}
	return nil
}

// bytesToBlocks converts a byte limit to 1KiB quota blocks, rounding up
// so the enforced limit is never looser than requested.
func bytesToBlocks(b uint64) uint64 {
	return (b + 1023) / 1024
}
