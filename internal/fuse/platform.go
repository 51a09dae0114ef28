//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"

	"go.uber.org/zap"

	"github.com/tangofs/tangofs/internal/cache"
	"github.com/tangofs/tangofs/internal/namespace"
	"github.com/tangofs/tangofs/internal/resolve"
)

// PlatformFileSystem is the mount lifecycle independent of the kernel
// binding selected at build time.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	Wait()
}

// CreatePlatformMountManager creates the mount manager for the default
// binding (hanwen/go-fuse, Linux and macOS).
func CreatePlatformMountManager(resolver *resolve.Resolver, tree *namespace.Tree,
	c *cache.Cache, config *Config, logger *zap.Logger) PlatformFileSystem {

	filesystem := NewFileSystem(resolver, tree, config, logger)
	return NewMountManager(filesystem, c, logger)
}
