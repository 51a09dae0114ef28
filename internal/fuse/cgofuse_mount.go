//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"fmt"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/tangofs/tangofs/internal/cache"
	"github.com/tangofs/tangofs/internal/namespace"
	"github.com/tangofs/tangofs/internal/resolve"
)

// CgoFuseMountManager drives the cgofuse host lifecycle.
type CgoFuseMountManager struct {
	fs     *CgoFuseFS
	cache  *cache.Cache
	logger *zap.Logger

	host    *fuse.FileSystemHost
	mounted bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewCgoFuseMountManager creates a mount manager for the cgofuse
// binding.
func NewCgoFuseMountManager(resolver *resolve.Resolver, tree *namespace.Tree,
	c *cache.Cache, config *Config, logger *zap.Logger) *CgoFuseMountManager {

	if logger == nil {
		logger = zap.NewNop()
	}
	return &CgoFuseMountManager{
		fs:     NewCgoFuseFS(resolver, tree, config, logger),
		cache:  c,
		logger: logger.Named("mount"),
	}
}

// Mount attaches the filesystem and starts serving in the background.
func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	if m.mounted {
		return fmt.Errorf("already mounted at %s", m.fs.config.MountPoint)
	}

	m.host = fuse.NewFileSystemHost(m.fs)
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})

	options := []string{"-o", "fsname=tangofs"}
	if m.fs.config.ReadOnly {
		options = append(options, "-o", "ro")
	}
	if m.fs.config.AllowOther {
		options = append(options, "-o", "allow_other")
	}

	go func() {
		defer close(m.done)
		if !m.host.Mount(m.fs.config.MountPoint, options) {
			m.logger.Error("mount failed",
				zap.String("mountpoint", m.fs.config.MountPoint))
		}
	}()

	if m.cache != nil {
		go m.sweep()
	}
	m.mounted = true
	m.logger.Info("mounted", zap.String("mountpoint", m.fs.config.MountPoint))
	return nil
}

// Unmount detaches the filesystem.
func (m *CgoFuseMountManager) Unmount() error {
	if !m.mounted || m.host == nil {
		return fmt.Errorf("not mounted")
	}
	if !m.host.Unmount() {
		return fmt.Errorf("unmount %s failed", m.fs.config.MountPoint)
	}
	close(m.stopCh)
	m.mounted = false
	m.logger.Info("unmounted", zap.String("mountpoint", m.fs.config.MountPoint))
	return nil
}

// IsMounted reports whether the filesystem is currently attached.
func (m *CgoFuseMountManager) IsMounted() bool {
	return m.mounted
}

// Wait blocks until the kernel session ends.
func (m *CgoFuseMountManager) Wait() {
	if m.done != nil {
		<-m.done
	}
}

func (m *CgoFuseMountManager) sweep() {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cache.Sweep()
		}
	}
}
