package fuse

import (
	"context"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/tangofs/tangofs/internal/namespace"
	"github.com/tangofs/tangofs/internal/resolve"
	"github.com/tangofs/tangofs/pkg/errors"
)

// Config represents kernel-facing filesystem configuration.
type Config struct {
	MountPoint string `yaml:"mount_point"`
	ReadOnly   bool   `yaml:"read_only"`
	AllowOther bool   `yaml:"allow_other"`

	// Ownership reported for every node.
	UID uint32 `yaml:"uid"`
	GID uint32 `yaml:"gid"`

	// Kernel-side attribute and entry caching. These bound how long
	// the kernel may answer stat and lookup without calling back in;
	// the namespace cache TTL still governs remote staleness.
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

// FileSystem glues the kernel protocol to the namespace tree. Every
// operation re-resolves its path, so the view tracks the remote system
// at cache granularity; nodes hold no remote state of their own.
type FileSystem struct {
	resolver *resolve.Resolver
	tree     *namespace.Tree
	config   *Config
	logger   *zap.Logger
}

// NewFileSystem creates a filesystem over the given resolver and tree.
func NewFileSystem(resolver *resolve.Resolver, tree *namespace.Tree, config *Config, logger *zap.Logger) *FileSystem {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystem{
		resolver: resolver,
		tree:     tree,
		config:   config,
		logger:   logger.Named("fuse"),
	}
}

// Root returns the root inode.
func (ofs *FileSystem) Root() fs.InodeEmbedder {
	return &node{ofs: ofs, path: "/"}
}

// encodeSegment makes a remote name safe as a path segment: device
// names contain slashes, shown as DeviceSeparator.
func encodeSegment(name string) string {
	return strings.ReplaceAll(name, "/", resolve.DeviceSeparator)
}

// errno translates an error into the errno reported to the kernel.
func errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	return errors.Errno(err)
}

// node is a single path position in the mounted tree. Directories and
// files share the type; the coordinate kind decides behavior.
type node struct {
	fs.Inode

	ofs  *FileSystem
	path string

	// pinned backs a freshly created file that the remote listing does
	// not report yet.
	mu     sync.Mutex
	pinned *resolve.Coordinate
}

var (
	_ fs.NodeLookuper  = (*node)(nil)
	_ fs.NodeReaddirer = (*node)(nil)
	_ fs.NodeGetattrer = (*node)(nil)
	_ fs.NodeOpener    = (*node)(nil)
	_ fs.NodeCreater   = (*node)(nil)
	_ fs.NodeUnlinker  = (*node)(nil)
	_ fs.NodeSetattrer = (*node)(nil)
)

// resolveSelf locates this node's coordinate, falling back to the
// pinned coordinate while a created property has not been flushed.
func (n *node) resolveSelf(ctx context.Context) (resolve.Coordinate, error) {
	coord, err := n.ofs.resolver.Resolve(ctx, n.path)
	if err == nil {
		return coord, nil
	}
	n.mu.Lock()
	pinned := n.pinned
	n.mu.Unlock()
	if pinned != nil && errors.NotFound(err) {
		return *pinned, nil
	}
	return resolve.Coordinate{}, err
}

// Lookup resolves one child name.
func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := path.Join(n.path, name)
	coord, err := n.ofs.resolver.Resolve(ctx, childPath)
	if err != nil {
		return nil, errno(err)
	}

	child := &node{ofs: n.ofs, path: childPath}
	mode := uint32(fuse.S_IFREG)
	if coord.Kind.IsDir() {
		mode = fuse.S_IFDIR
	}
	if err := n.ofs.fillAttr(ctx, coord, &out.Attr); err != nil {
		return nil, errno(err)
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode}), 0
}

// Getattr stats this node.
func (n *node) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	coord, err := n.resolveSelf(ctx)
	if err != nil {
		return errno(err)
	}

	if h, ok := fh.(*handle); ok && coord.Kind == resolve.KindProperty {
		// An open property handle is the source of truth for size:
		// unflushed writes are visible to the writer.
		h.mu.Lock()
		size := len(h.data)
		h.mu.Unlock()
		n.ofs.fillFileAttr(coord, uint64(size), &out.Attr)
		return 0
	}

	if err := n.ofs.fillAttr(ctx, coord, &out.Attr); err != nil {
		return errno(err)
	}
	return 0
}

// Setattr accepts truncation of open property files and ignores mode
// and time changes, which have no remote meaning.
func (n *node) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		coord, err := n.resolveSelf(ctx)
		if err != nil {
			return errno(err)
		}
		if coord.Kind != resolve.KindProperty {
			return syscall.EPERM
		}
		if n.ofs.config.ReadOnly {
			return syscall.EROFS
		}
		if h, ok := fh.(*handle); ok {
			h.truncate(size)
		}
	}
	return n.Getattr(ctx, fh, out)
}

// Readdir lists this directory from the namespace tree.
func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	coord, err := n.resolveSelf(ctx)
	if err != nil {
		return nil, errno(err)
	}
	dir, err := n.ofs.tree.Materialize(ctx, coord)
	if err != nil {
		return nil, errno(err)
	}

	entries := make([]fuse.DirEntry, 0, len(dir.Children))
	for _, child := range dir.Children {
		mode := uint32(fuse.S_IFREG)
		if child.Kind == namespace.Directory {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{
			Name: encodeSegment(child.Name),
			Mode: mode,
		})
	}
	return fs.NewListDirStream(entries), 0
}

// Open opens a file, snapshotting its content into the handle.
func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	coord, err := n.resolveSelf(ctx)
	if err != nil {
		return nil, 0, errno(err)
	}
	if coord.Kind.IsDir() {
		return nil, 0, syscall.EISDIR
	}

	wantsWrite := flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0
	if wantsWrite {
		if n.ofs.config.ReadOnly {
			return nil, 0, syscall.EROFS
		}
		if coord.Kind != resolve.KindProperty {
			return nil, 0, errno(errors.E(errors.KindUnsupported, "open", n.path))
		}
	}

	h := &handle{ofs: n.ofs, coord: coord}
	if flags&syscall.O_TRUNC != 0 {
		h.dirty = true
	} else {
		data, err := n.ofs.tree.ReadFile(ctx, coord)
		if err != nil && !(wantsWrite && errors.NotFound(err)) {
			return nil, 0, errno(err)
		}
		h.data = data
	}

	// Content is synthesized per open; the kernel must not serve a
	// previous open's pages.
	return h, fuse.FOPEN_DIRECT_IO, 0
}

// Create makes a new property file. Content reaches the database on
// flush, the way editors and shell redirection expect.
func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	if n.ofs.config.ReadOnly {
		return nil, nil, 0, syscall.EROFS
	}
	coord, err := n.resolveSelf(ctx)
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	if coord.Kind != resolve.KindPropertiesDir {
		return nil, nil, 0, syscall.EPERM
	}

	propCoord := coord
	propCoord.Kind = resolve.KindProperty
	propCoord.Name = name

	childPath := path.Join(n.path, name)
	child := &node{ofs: n.ofs, path: childPath, pinned: &propCoord}
	h := &handle{ofs: n.ofs, coord: propCoord, dirty: true}

	n.ofs.fillFileAttr(propCoord, 0, &out.Attr)
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG})
	n.ofs.logger.Debug("property created", zap.String("path", childPath))
	return inode, h, fuse.FOPEN_DIRECT_IO, 0
}

// Unlink removes a property from the database.
func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	if n.ofs.config.ReadOnly {
		return syscall.EROFS
	}
	childPath := path.Join(n.path, name)
	coord, err := n.ofs.resolver.Resolve(ctx, childPath)
	if err != nil {
		return errno(err)
	}
	if coord.Kind != resolve.KindProperty {
		return syscall.EPERM
	}
	return errno(n.ofs.tree.DeleteProperty(ctx, coord))
}

// handle is one open file. Reads serve the snapshot taken at open;
// writes collect in the buffer and reach the remote system on flush.
type handle struct {
	ofs   *FileSystem
	coord resolve.Coordinate

	mu    sync.Mutex
	data  []byte
	dirty bool
}

var (
	_ fs.FileReader   = (*handle)(nil)
	_ fs.FileWriter   = (*handle)(nil)
	_ fs.FileFlusher  = (*handle)(nil)
	_ fs.FileReleaser = (*handle)(nil)
)

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(h.data)) {
		end = int64(len(h.data))
	}
	return fuse.ReadResultData(h.data[off:end]), 0
}

func (h *handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if h.coord.Kind != resolve.KindProperty {
		return 0, errno(errors.E(errors.KindUnsupported, "write", h.coord.String()))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	end := off + int64(len(data))
	if end > int64(len(h.data)) {
		grown := make([]byte, end)
		copy(grown, h.data)
		h.data = grown
	}
	copy(h.data[off:], data)
	h.dirty = true
	return uint32(len(data)), 0
}

func (h *handle) Flush(ctx context.Context) syscall.Errno {
	return errno(h.flush(ctx))
}

func (h *handle) Release(ctx context.Context) syscall.Errno {
	return errno(h.flush(ctx))
}

func (h *handle) flush(ctx context.Context) error {
	h.mu.Lock()
	if !h.dirty {
		h.mu.Unlock()
		return nil
	}
	data := append([]byte(nil), h.data...)
	h.dirty = false
	h.mu.Unlock()

	return h.ofs.tree.WriteFile(ctx, h.coord, data)
}

func (h *handle) truncate(size uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if size <= uint64(len(h.data)) {
		h.data = h.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, h.data)
		h.data = grown
	}
	h.dirty = true
}

// fillAttr stats a coordinate, fetching content for files so size is
// accurate. Content fetches ride the namespace cache.
func (ofs *FileSystem) fillAttr(ctx context.Context, coord resolve.Coordinate, out *fuse.Attr) error {
	if coord.Kind.IsDir() {
		return ofs.fillDirAttr(ctx, coord, out)
	}
	content, err := ofs.tree.ReadFile(ctx, coord)
	if err != nil {
		return err
	}
	ofs.fillFileAttr(coord, uint64(len(content)), out)
	return nil
}

func (ofs *FileSystem) fillDirAttr(ctx context.Context, coord resolve.Coordinate, out *fuse.Attr) error {
	mode := uint32(fuse.S_IFDIR | 0o755)
	var modTime time.Time

	if coord.Kind == resolve.KindDevice {
		dir, err := ofs.tree.Materialize(ctx, coord)
		if err != nil {
			return err
		}
		// The execute bit marks a running (exported) device.
		if !dir.Exec {
			mode = fuse.S_IFDIR | 0o644
		}
		modTime = dir.ModTime
	}

	ofs.fillCommon(mode, 0, modTime, out)
	return nil
}

func (ofs *FileSystem) fillFileAttr(coord resolve.Coordinate, size uint64, out *fuse.Attr) {
	var mode uint32
	switch coord.Kind {
	case resolve.KindProperty:
		mode = fuse.S_IFREG | 0o644
		if ofs.config.ReadOnly {
			mode = fuse.S_IFREG | 0o444
		}
	case resolve.KindCommand:
		mode = fuse.S_IFREG | 0o555
	default:
		mode = fuse.S_IFREG | 0o444
	}
	ofs.fillCommon(mode, size, time.Time{}, out)
}

func (ofs *FileSystem) fillCommon(mode uint32, size uint64, modTime time.Time, out *fuse.Attr) {
	out.Mode = mode
	out.Size = size
	out.Uid = ofs.config.UID
	out.Gid = ofs.config.GID
	out.Blocks = (size + 511) / 512
	if modTime.IsZero() {
		modTime = time.Now()
	}
	ts := uint64(modTime.Unix())
	out.Mtime = ts
	out.Atime = ts
	out.Ctime = ts
}
