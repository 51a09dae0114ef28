//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"sync"
	"time"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/tangofs/tangofs/internal/namespace"
	"github.com/tangofs/tangofs/internal/resolve"
	"github.com/tangofs/tangofs/pkg/errors"
)

// CgoFuseFS is the path-based kernel binding. Unlike the inode binding
// every operation arrives with a full path, which suits the resolver
// directly.
type CgoFuseFS struct {
	fuse.FileSystemBase

	resolver *resolve.Resolver
	tree     *namespace.Tree
	config   *Config
	logger   *zap.Logger

	mu         sync.Mutex
	openFiles  map[uint64]*cgoFile
	nextHandle uint64
}

// cgoFile is one open file: the snapshot taken at open plus any
// unflushed writes.
type cgoFile struct {
	coord resolve.Coordinate
	data  []byte
	dirty bool
}

// NewCgoFuseFS creates the cgofuse binding over the resolver and tree.
func NewCgoFuseFS(resolver *resolve.Resolver, tree *namespace.Tree, config *Config, logger *zap.Logger) *CgoFuseFS {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CgoFuseFS{
		resolver:   resolver,
		tree:       tree,
		config:     config,
		logger:     logger.Named("cgofuse"),
		openFiles:  make(map[uint64]*cgoFile),
		nextHandle: 1,
	}
}

// cgoErrno translates an error into cgofuse's negated errno convention.
func cgoErrno(err error) int {
	if err == nil {
		return 0
	}
	switch errors.KindOf(err) {
	case errors.KindNotFound:
		return -fuse.ENOENT
	case errors.KindUnsupported:
		return -fuse.EPERM
	case errors.KindInvalid:
		return -fuse.EINVAL
	default:
		return -fuse.EIO
	}
}

func (cfs *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	ctx := context.Background()
	coord, err := cfs.resolver.Resolve(ctx, path)
	if err != nil {
		return cgoErrno(err)
	}

	if coord.Kind.IsDir() {
		mode := uint32(fuse.S_IFDIR | 0o755)
		var modTime time.Time
		if coord.Kind == resolve.KindDevice {
			dir, err := cfs.tree.Materialize(ctx, coord)
			if err != nil {
				return cgoErrno(err)
			}
			if !dir.Exec {
				mode = fuse.S_IFDIR | 0o644
			}
			modTime = dir.ModTime
		}
		cfs.fillStat(stat, mode, 0, modTime)
		return 0
	}

	content, err := cfs.tree.ReadFile(ctx, coord)
	if err != nil {
		return cgoErrno(err)
	}
	mode := uint32(fuse.S_IFREG | 0o444)
	switch coord.Kind {
	case resolve.KindProperty:
		if !cfs.config.ReadOnly {
			mode = fuse.S_IFREG | 0o644
		}
	case resolve.KindCommand:
		mode = fuse.S_IFREG | 0o555
	}
	cfs.fillStat(stat, mode, int64(len(content)), time.Time{})
	return 0
}

func (cfs *CgoFuseFS) Readdir(path string,
	fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {

	ctx := context.Background()
	coord, err := cfs.resolver.Resolve(ctx, path)
	if err != nil {
		return cgoErrno(err)
	}
	dir, err := cfs.tree.Materialize(ctx, coord)
	if err != nil {
		return cgoErrno(err)
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, child := range dir.Children {
		if !fill(encodeSegment(child.Name), nil, 0) {
			break
		}
	}
	return 0
}

func (cfs *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	ctx := context.Background()
	coord, err := cfs.resolver.Resolve(ctx, path)
	if err != nil {
		return cgoErrno(err), ^uint64(0)
	}
	if coord.Kind.IsDir() {
		return -fuse.EISDIR, ^uint64(0)
	}

	wantsWrite := flags&(fuse.O_WRONLY|fuse.O_RDWR) != 0
	if wantsWrite {
		if cfs.config.ReadOnly {
			return -fuse.EROFS, ^uint64(0)
		}
		if coord.Kind != resolve.KindProperty {
			return -fuse.EPERM, ^uint64(0)
		}
	}

	file := &cgoFile{coord: coord}
	if flags&fuse.O_TRUNC != 0 {
		file.dirty = true
	} else {
		data, err := cfs.tree.ReadFile(ctx, coord)
		if err != nil && !(wantsWrite && errors.NotFound(err)) {
			return cgoErrno(err), ^uint64(0)
		}
		file.data = data
	}

	cfs.mu.Lock()
	handle := cfs.nextHandle
	cfs.nextHandle++
	cfs.openFiles[handle] = file
	cfs.mu.Unlock()
	return 0, handle
}

func (cfs *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	if cfs.config.ReadOnly {
		return -fuse.EROFS, ^uint64(0)
	}
	ctx := context.Background()
	parentPath, name := splitParent(path)
	parent, err := cfs.resolver.Resolve(ctx, parentPath)
	if err != nil {
		return cgoErrno(err), ^uint64(0)
	}
	if parent.Kind != resolve.KindPropertiesDir {
		return -fuse.EPERM, ^uint64(0)
	}

	coord := parent
	coord.Kind = resolve.KindProperty
	coord.Name = name

	cfs.mu.Lock()
	handle := cfs.nextHandle
	cfs.nextHandle++
	cfs.openFiles[handle] = &cgoFile{coord: coord, dirty: true}
	cfs.mu.Unlock()
	return 0, handle
}

func (cfs *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	file := cfs.file(fh)
	if file == nil {
		return -fuse.EBADF
	}
	cfs.mu.Lock()
	defer cfs.mu.Unlock()
	if ofst >= int64(len(file.data)) {
		return 0
	}
	return copy(buff, file.data[ofst:])
}

func (cfs *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	file := cfs.file(fh)
	if file == nil {
		return -fuse.EBADF
	}
	if file.coord.Kind != resolve.KindProperty {
		return -fuse.EPERM
	}

	cfs.mu.Lock()
	defer cfs.mu.Unlock()
	end := ofst + int64(len(buff))
	if end > int64(len(file.data)) {
		grown := make([]byte, end)
		copy(grown, file.data)
		file.data = grown
	}
	copy(file.data[ofst:], buff)
	file.dirty = true
	return len(buff)
}

func (cfs *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	file := cfs.file(fh)
	if file == nil {
		return 0
	}
	cfs.mu.Lock()
	defer cfs.mu.Unlock()
	if size <= int64(len(file.data)) {
		file.data = file.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, file.data)
		file.data = grown
	}
	file.dirty = true
	return 0
}

func (cfs *CgoFuseFS) Flush(path string, fh uint64) int {
	return cfs.flush(fh)
}

func (cfs *CgoFuseFS) Release(path string, fh uint64) int {
	ret := cfs.flush(fh)
	cfs.mu.Lock()
	delete(cfs.openFiles, fh)
	cfs.mu.Unlock()
	return ret
}

func (cfs *CgoFuseFS) Unlink(path string) int {
	if cfs.config.ReadOnly {
		return -fuse.EROFS
	}
	ctx := context.Background()
	coord, err := cfs.resolver.Resolve(ctx, path)
	if err != nil {
		return cgoErrno(err)
	}
	if coord.Kind != resolve.KindProperty {
		return -fuse.EPERM
	}
	return cgoErrno(cfs.tree.DeleteProperty(ctx, coord))
}

func (cfs *CgoFuseFS) flush(fh uint64) int {
	file := cfs.file(fh)
	if file == nil {
		return 0
	}
	cfs.mu.Lock()
	if !file.dirty {
		cfs.mu.Unlock()
		return 0
	}
	data := append([]byte(nil), file.data...)
	file.dirty = false
	cfs.mu.Unlock()

	return cgoErrno(cfs.tree.WriteFile(context.Background(), file.coord, data))
}

func (cfs *CgoFuseFS) file(fh uint64) *cgoFile {
	cfs.mu.Lock()
	defer cfs.mu.Unlock()
	return cfs.openFiles[fh]
}

func (cfs *CgoFuseFS) fillStat(stat *fuse.Stat_t, mode uint32, size int64, modTime time.Time) {
	if modTime.IsZero() {
		modTime = time.Now()
	}
	ts := fuse.NewTimespec(modTime)
	stat.Mode = mode
	stat.Size = size
	stat.Nlink = 1
	stat.Uid = cfs.config.UID
	stat.Gid = cfs.config.GID
	stat.Mtim = ts
	stat.Atim = ts
	stat.Ctim = ts
	stat.Blocks = (size + 511) / 512
}

func splitParent(path string) (string, string) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return "", path
}
