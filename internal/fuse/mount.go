package fuse

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/tangofs/tangofs/internal/cache"
)

// defaultSweepInterval paces the background expiry sweep of the
// namespace cache while mounted.
const defaultSweepInterval = time.Minute

// MountManager owns the lifecycle of one mount: validation, the kernel
// session, and the cache sweeper that runs alongside it.
type MountManager struct {
	filesystem *FileSystem
	cache      *cache.Cache
	logger     *zap.Logger

	server  *fuse.Server
	mounted bool
	stopCh  chan struct{}
}

// NewMountManager creates a mount manager for the filesystem. cache may
// be nil; the sweeper is then disabled.
func NewMountManager(filesystem *FileSystem, c *cache.Cache, logger *zap.Logger) *MountManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MountManager{
		filesystem: filesystem,
		cache:      c,
		logger:     logger.Named("mount"),
	}
}

// Mount attaches the filesystem at the configured mount point and
// starts serving in the background.
func (m *MountManager) Mount(ctx context.Context) error {
	if m.mounted {
		return fmt.Errorf("already mounted at %s", m.filesystem.config.MountPoint)
	}
	if err := m.validateMountPoint(); err != nil {
		return fmt.Errorf("invalid mount point: %w", err)
	}

	server, err := fs.Mount(m.filesystem.config.MountPoint, m.filesystem.Root(), m.buildOptions())
	if err != nil {
		return fmt.Errorf("mount %s: %w", m.filesystem.config.MountPoint, err)
	}

	m.server = server
	m.mounted = true
	m.stopCh = make(chan struct{})
	m.logger.Info("mounted", zap.String("mountpoint", m.filesystem.config.MountPoint))

	if m.cache != nil {
		go m.sweep()
	}
	return nil
}

// Unmount detaches the filesystem.
func (m *MountManager) Unmount() error {
	if !m.mounted || m.server == nil {
		return fmt.Errorf("not mounted")
	}

	if err := m.server.Unmount(); err != nil {
		m.logger.Warn("unmount failed, trying lazy detach", zap.Error(err))
		if lazyErr := syscall.Unmount(m.filesystem.config.MountPoint, 2); lazyErr != nil {
			return fmt.Errorf("unmount: %w (lazy detach: %v)", err, lazyErr)
		}
	}

	close(m.stopCh)
	m.mounted = false
	m.server = nil
	m.logger.Info("unmounted", zap.String("mountpoint", m.filesystem.config.MountPoint))
	return nil
}

// IsMounted reports whether the filesystem is currently attached.
func (m *MountManager) IsMounted() bool {
	return m.mounted
}

// Wait blocks until the kernel session ends.
func (m *MountManager) Wait() {
	if m.server != nil {
		m.server.Wait()
	}
}

func (m *MountManager) sweep() {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if n := m.cache.Sweep(); n > 0 {
				m.logger.Debug("cache sweep", zap.Int("evicted", n))
			}
		}
	}
}

func (m *MountManager) validateMountPoint() error {
	mountPoint := m.filesystem.config.MountPoint
	if mountPoint == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	info, err := os.Stat(mountPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("mount point does not exist: %s", mountPoint)
		}
		return fmt.Errorf("cannot access mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", mountPoint)
	}

	if m.isAlreadyMounted() {
		return fmt.Errorf("mount point %s is already mounted", mountPoint)
	}
	return nil
}

func (m *MountManager) buildOptions() *fs.Options {
	cfg := m.filesystem.config

	attrTimeout := cfg.AttrTimeout
	entryTimeout := cfg.EntryTimeout

	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:       "tangofs",
			FsName:     "tangofs",
			AllowOther: cfg.AllowOther,
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		// The remote side decides access, not local permission bits.
		NullPermissions: true,
	}
	if cfg.ReadOnly {
		opts.Options = append(opts.Options, "ro")
	}
	return opts
}

func (m *MountManager) isAlreadyMounted() bool {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == m.filesystem.config.MountPoint {
			return true
		}
	}
	return false
}
