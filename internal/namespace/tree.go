// Package namespace synthesizes filesystem nodes from remote-entity
// coordinates. It is the mediation layer between the kernel-facing
// adapters and the control-system database: directory listings, file
// content, property writes, and command invocations all pass through
// here, with the TTL cache absorbing repeated lookups.
package namespace

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tangofs/tangofs/internal/cache"
	"github.com/tangofs/tangofs/internal/caseless"
	"github.com/tangofs/tangofs/internal/resolve"
	"github.com/tangofs/tangofs/internal/tango"
	"github.com/tangofs/tangofs/pkg/errors"
)

// Metrics receives operation observations from the tree. A nil Metrics
// disables collection.
type Metrics interface {
	ObserveRemoteCall(op string, d time.Duration, err error)
	ObserveCacheHit()
	ObserveCacheMiss()
}

// Option customizes a Tree.
type Option func(*Tree)

// WithMetrics wires a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(t *Tree) { t.metrics = m }
}

// WithLogger wires a logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tree) { t.logger = l.Named("namespace") }
}

// WithCommandScriptBase sets the gateway URL burned into generated
// command scripts. Empty disables script generation; command files then
// read as a comment explaining how to enable it.
func WithCommandScriptBase(base string) Option {
	return func(t *Tree) { t.scriptBase = strings.TrimRight(base, "/") }
}

// WithFormatters replaces the attribute formatter registry.
func WithFormatters(r *FormatterRegistry) Option {
	return func(t *Tree) { t.formats = r }
}

// Tree materializes coordinates into nodes and mediates reads, writes,
// and invocations against the remote system. All remote-backed lookups
// are read-through cached; mutations invalidate and never merge.
type Tree struct {
	client     tango.Client
	cache      *cache.Cache
	formats    *FormatterRegistry
	metrics    Metrics
	logger     *zap.Logger
	scriptBase string
}

// NewTree creates a tree over the given remote client and cache.
func NewTree(client tango.Client, c *cache.Cache, opts ...Option) *Tree {
	t := &Tree{
		client:  client,
		cache:   c,
		formats: NewFormatterRegistry(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// attrSet is the cached payload for an attributes directory: the name
// index plus the per-attribute configuration fetched in the same round
// trip.
type attrSet struct {
	idx   caseless.Index
	infos map[string]tango.AttributeInfo // keyed by folded name
}

// attributeConfigFields are the read-only configuration leaves every
// attribute directory exposes next to value.
var attributeConfigFields = []string{
	"data_format", "data_type", "description", "display_unit", "format",
	"label", "max_alarm", "max_dim_x", "max_dim_y", "max_value",
	"min_alarm", "min_value", "standard_unit", "unit", "writable",
}

// Index returns the case-folded child index of a directory coordinate,
// serving the resolver and Materialize from one cached enumeration.
func (t *Tree) Index(ctx context.Context, dir resolve.Coordinate) (caseless.Index, error) {
	switch dir.Kind {
	case resolve.KindRoot:
		return caseless.Build([]string{"servers", "devices"}), nil

	case resolve.KindServersRoot:
		return t.cachedNames(ctx, dir, "servers.list", func(ctx context.Context) ([]string, error) {
			return t.client.Servers(ctx)
		})
	case resolve.KindServer:
		return t.cachedNames(ctx, dir, "instances.list", func(ctx context.Context) ([]string, error) {
			return t.client.Instances(ctx, dir.Server)
		})
	case resolve.KindInstance:
		return t.cachedNames(ctx, dir, "classes.list", func(ctx context.Context) ([]string, error) {
			return t.client.Classes(ctx, dir.Server, dir.Instance)
		})
	case resolve.KindClass:
		return t.cachedNames(ctx, dir, "devices.list", func(ctx context.Context) ([]string, error) {
			return t.client.Devices(ctx, dir.Server, dir.Instance, dir.Class)
		})
	case resolve.KindDevicesRoot:
		return t.cachedNames(ctx, dir, "domains.list", func(ctx context.Context) ([]string, error) {
			return t.client.Domains(ctx)
		})
	case resolve.KindDomain:
		return t.cachedNames(ctx, dir, "families.list", func(ctx context.Context) ([]string, error) {
			return t.client.Families(ctx, dir.Domain)
		})
	case resolve.KindFamily:
		return t.cachedNames(ctx, dir, "members.list", func(ctx context.Context) ([]string, error) {
			return t.client.Members(ctx, dir.Domain, dir.Family)
		})

	case resolve.KindDevice:
		return t.cachedNames(ctx, dir, "device.children", func(ctx context.Context) ([]string, error) {
			return t.deviceChildren(ctx, dir.Device())
		})
	case resolve.KindPropertiesDir:
		return t.cachedNames(ctx, dir, "properties.list", func(ctx context.Context) ([]string, error) {
			return t.client.Properties(ctx, dir.Device())
		})
	case resolve.KindCommandsDir:
		return t.cachedNames(ctx, dir, "commands.list", func(ctx context.Context) ([]string, error) {
			infos, err := t.client.Commands(ctx, dir.Device())
			if err != nil {
				return nil, err
			}
			names := make([]string, len(infos))
			for i, info := range infos {
				names[i] = info.Name
			}
			return names, nil
		})

	case resolve.KindAttributesDir:
		set, err := t.attributeSet(ctx, dir)
		if err != nil {
			return caseless.Index{}, err
		}
		return set.idx, nil

	case resolve.KindAttribute:
		info, err := t.attributeInfo(ctx, dir)
		if err != nil {
			return caseless.Index{}, err
		}
		return caseless.Build(attributeFields(info)), nil
	}

	return caseless.Index{}, errors.E(errors.KindNotFound, "index", dir.String())
}

// Materialize synthesizes the node for a coordinate. Directory children
// come from the cached enumeration; file sizes are left to ReadFile so
// a metadata-only stat never pays for a value fetch.
func (t *Tree) Materialize(ctx context.Context, coord resolve.Coordinate) (*Node, error) {
	switch coord.Kind {
	case resolve.KindProperty, resolve.KindAttributeField:
		return &Node{Kind: RegularFile}, nil
	case resolve.KindCommand:
		return &Node{Kind: Executable}, nil
	case resolve.KindAttributesDir:
		return t.materializeAttributesDir(ctx, coord)
	case resolve.KindDevice:
		return t.materializeDevice(ctx, coord)
	}

	idx, err := t.Index(ctx, coord)
	if err != nil {
		return nil, err
	}
	kind := childNodeKind(coord.Kind)
	node := &Node{Kind: Directory, Children: make([]Child, 0, idx.Len())}
	for _, name := range idx.Names() {
		node.Children = append(node.Children, Child{Name: name, Kind: kind})
	}
	return node, nil
}

// materializeDevice lists the availability-gated markers and decorates
// the node with the database's registration record: exported devices
// get the execute bit, and the start date becomes the best-effort
// modification time.
func (t *Tree) materializeDevice(ctx context.Context, coord resolve.Coordinate) (*Node, error) {
	idx, err := t.Index(ctx, coord)
	if err != nil {
		return nil, err
	}
	node := &Node{Kind: Directory}
	for _, name := range idx.Names() {
		node.Children = append(node.Children, Child{Name: name, Kind: Directory})
	}

	if info, err := t.deviceInfo(ctx, coord.Device()); err == nil {
		node.Exec = info.Exported
		node.ModTime = parseStartedDate(info.StartedDate)
	} else {
		t.logger.Debug("device info unavailable",
			zap.String("device", coord.Device()), zap.Error(err))
	}
	return node, nil
}

// materializeAttributesDir renders expert-level attributes as dotfiles
// so plain ls shows the operator surface only.
func (t *Tree) materializeAttributesDir(ctx context.Context, coord resolve.Coordinate) (*Node, error) {
	set, err := t.attributeSet(ctx, coord)
	if err != nil {
		return nil, err
	}
	node := &Node{Kind: Directory, Children: make([]Child, 0, set.idx.Len())}
	for _, name := range set.idx.Names() {
		display := name
		if info, ok := set.infos[caseless.Fold(name)]; ok && info.DisplayLevel == tango.DisplayExpert {
			display = "." + name
		}
		node.Children = append(node.Children, Child{Name: display, Kind: Directory})
	}
	return node, nil
}

// ReadFile fetches the content of a file coordinate.
func (t *Tree) ReadFile(ctx context.Context, coord resolve.Coordinate) ([]byte, error) {
	switch coord.Kind {
	case resolve.KindProperty:
		lines, err := t.propertyLines(ctx, coord)
		if err != nil {
			return nil, err
		}
		return []byte(strings.Join(lines, "\n") + "\n"), nil

	case resolve.KindAttributeField:
		return t.readAttributeField(ctx, coord)

	case resolve.KindCommand:
		return t.commandScript(coord), nil
	}
	return nil, errors.E(errors.KindUnsupported, "read", coord.String())
}

// WriteFile stores property content. Every other coordinate kind,
// attribute fields included, rejects writes: the live side of the
// system is read-only through this interface.
func (t *Tree) WriteFile(ctx context.Context, coord resolve.Coordinate, data []byte) error {
	if coord.Kind != resolve.KindProperty {
		return errors.E(errors.KindUnsupported, "write", coord.String())
	}

	lines := splitPropertyLines(data)
	start := time.Now()
	err := t.client.SetProperty(ctx, coord.Device(), coord.Name, lines)
	t.observe("property.set", start, err)
	if err != nil {
		return errors.E("write", coord.String(), err)
	}

	// The next read must not see the pre-write value, TTL or not; the
	// listing entry goes too so a freshly created property appears
	// immediately.
	t.cache.Delete(coord.Key())
	t.cache.Delete(propertiesDirOf(coord).Key())
	t.logger.Info("property written",
		zap.String("device", coord.Device()), zap.String("property", coord.Name),
		zap.Int("lines", len(lines)))
	return nil
}

// DeleteProperty removes a property from the database and invalidates
// its cache entries.
func (t *Tree) DeleteProperty(ctx context.Context, coord resolve.Coordinate) error {
	if coord.Kind != resolve.KindProperty {
		return errors.E(errors.KindUnsupported, "delete", coord.String())
	}

	start := time.Now()
	err := t.client.DeleteProperty(ctx, coord.Device(), coord.Name)
	t.observe("property.delete", start, err)
	if err != nil {
		return errors.E("delete", coord.String(), err)
	}
	t.cache.Delete(coord.Key())
	t.cache.Delete(propertiesDirOf(coord).Key())
	t.logger.Info("property deleted",
		zap.String("device", coord.Device()), zap.String("property", coord.Name))
	return nil
}

// Invoke executes an argument-less command and returns its textual
// result. Results are never cached: commands are not idempotent
// lookups, every call forwards independently.
func (t *Tree) Invoke(ctx context.Context, coord resolve.Coordinate) (string, error) {
	if coord.Kind != resolve.KindCommand {
		return "", errors.E(errors.KindUnsupported, "invoke", coord.String())
	}

	start := time.Now()
	out, err := t.client.ExecuteCommand(ctx, coord.Device(), coord.Name)
	t.observe("command.invoke", start, err)
	if err != nil {
		return "", errors.E("invoke", coord.String(), err)
	}
	t.logger.Info("command invoked",
		zap.String("device", coord.Device()), zap.String("command", coord.Name))
	return out, nil
}

// Remote-backed fetch helpers. Each one is read-through cached under
// the coordinate's key.

func (t *Tree) cachedNames(ctx context.Context, dir resolve.Coordinate, op string,
	fetch func(context.Context) ([]string, error)) (caseless.Index, error) {

	if payload, ok := t.cache.Get(dir.Key()); ok {
		t.hit()
		return payload.(caseless.Index), nil
	}
	t.miss()

	start := time.Now()
	names, err := fetch(ctx)
	t.observe(op, start, err)
	if err != nil {
		return caseless.Index{}, errors.E(op, dir.String(), err)
	}
	idx := caseless.Build(names)
	t.cache.Put(dir.Key(), idx)
	return idx, nil
}

// deviceChildren gates attributes and commands on device liveness: an
// unreachable device still shows its database-side properties.
func (t *Tree) deviceChildren(ctx context.Context, device string) ([]string, error) {
	start := time.Now()
	err := t.client.Ping(ctx, device)
	t.observe("device.ping", start, err)
	if err != nil {
		if errors.KindOf(err) == errors.KindRemoteUnavailable {
			return nil, err
		}
		t.logger.Debug("device not responding", zap.String("device", device), zap.Error(err))
		return []string{"properties"}, nil
	}
	return []string{"properties", "attributes", "commands"}, nil
}

func (t *Tree) attributeSet(ctx context.Context, dir resolve.Coordinate) (attrSet, error) {
	key := dir.Key()
	if dir.Kind == resolve.KindAttribute {
		d := dir
		d.Kind = resolve.KindAttributesDir
		d.Name = ""
		key = d.Key()
	}

	if payload, ok := t.cache.Get(key); ok {
		t.hit()
		return payload.(attrSet), nil
	}
	t.miss()

	start := time.Now()
	infos, err := t.client.Attributes(ctx, dir.Device())
	t.observe("attributes.list", start, err)
	if err != nil {
		return attrSet{}, errors.E("attributes.list", dir.String(), err)
	}

	names := make([]string, len(infos))
	byName := make(map[string]tango.AttributeInfo, len(infos))
	for i, info := range infos {
		names[i] = info.Name
		byName[caseless.Fold(info.Name)] = info
	}
	set := attrSet{idx: caseless.Build(names), infos: byName}
	t.cache.Put(key, set)
	return set, nil
}

func (t *Tree) attributeInfo(ctx context.Context, coord resolve.Coordinate) (tango.AttributeInfo, error) {
	set, err := t.attributeSet(ctx, coord)
	if err != nil {
		return tango.AttributeInfo{}, err
	}
	info, ok := set.infos[caseless.Fold(coord.Name)]
	if !ok {
		return tango.AttributeInfo{}, errors.E(errors.KindNotFound, "attribute", coord.String())
	}
	return info, nil
}

func (t *Tree) propertyLines(ctx context.Context, coord resolve.Coordinate) ([]string, error) {
	if payload, ok := t.cache.Get(coord.Key()); ok {
		t.hit()
		return payload.([]string), nil
	}
	t.miss()

	start := time.Now()
	lines, err := t.client.Property(ctx, coord.Device(), coord.Name)
	t.observe("property.get", start, err)
	if err != nil {
		return nil, errors.E("property.get", coord.String(), err)
	}
	t.cache.Put(coord.Key(), lines)
	return lines, nil
}

func (t *Tree) attributeReading(ctx context.Context, coord resolve.Coordinate) (*tango.AttributeValue, error) {
	attr := coord
	attr.Kind = resolve.KindAttribute
	attr.Field = ""
	key := "reading\x00" + attr.Key()

	if payload, ok := t.cache.Get(key); ok {
		t.hit()
		return payload.(*tango.AttributeValue), nil
	}
	t.miss()

	start := time.Now()
	val, err := t.client.ReadAttribute(ctx, coord.Device(), coord.Name)
	t.observe("attribute.read", start, err)
	if err != nil {
		return nil, errors.E("attribute.read", coord.String(), err)
	}
	t.cache.Put(key, val)
	return val, nil
}

func (t *Tree) readAttributeField(ctx context.Context, coord resolve.Coordinate) ([]byte, error) {
	info, err := t.attributeInfo(ctx, coord)
	if err != nil {
		return nil, err
	}

	switch caseless.Fold(coord.Field) {
	case "value":
		reading, err := t.attributeReading(ctx, coord)
		if err != nil {
			return nil, err
		}
		return t.formats.Render(info, reading.Values), nil
	case "w_value":
		if !info.Writable.Writable() {
			return nil, errors.E(errors.KindNotFound, "read", coord.String())
		}
		reading, err := t.attributeReading(ctx, coord)
		if err != nil {
			return nil, err
		}
		return t.formats.Render(info, reading.WValues), nil
	}

	value, ok := configFieldValue(info, coord.Field)
	if !ok {
		return nil, errors.E(errors.KindNotFound, "read", coord.String())
	}
	return []byte(value + "\n"), nil
}

// commandScript renders a command file's content: a shell script that
// invokes the command through the gateway, so executing the file runs
// the command.
func (t *Tree) commandScript(coord resolve.Coordinate) []byte {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("# Runs the " + coord.Name + " command on " + coord.Device() + ".\n")
	if t.scriptBase == "" {
		b.WriteString("echo 'tangofs: no gateway URL configured; run with gateway.base_url set' >&2\n")
		b.WriteString("exit 1\n")
		return []byte(b.String())
	}
	b.WriteString("exec curl -fsS -X PUT \\\n")
	b.WriteString("    -H 'Content-Type: application/json' -d '{}' \\\n")
	b.WriteString("    '" + t.scriptBase + "/devices/" + strings.ReplaceAll(coord.Device(), "/", "%2F") +
		"/commands/" + coord.Name + "'\n")
	return []byte(b.String())
}

func (t *Tree) observe(op string, start time.Time, err error) {
	if t.metrics != nil {
		t.metrics.ObserveRemoteCall(op, time.Since(start), err)
	}
}

func (t *Tree) hit() {
	if t.metrics != nil {
		t.metrics.ObserveCacheHit()
	}
}

func (t *Tree) miss() {
	if t.metrics != nil {
		t.metrics.ObserveCacheMiss()
	}
}

func (t *Tree) deviceInfo(ctx context.Context, device string) (*tango.DeviceInfo, error) {
	key := "device_info\x00" + caseless.Fold(device)
	if payload, ok := t.cache.Get(key); ok {
		t.hit()
		return payload.(*tango.DeviceInfo), nil
	}
	t.miss()

	start := time.Now()
	info, err := t.client.DeviceInfo(ctx, device)
	t.observe("device.info", start, err)
	if err != nil {
		return nil, err
	}
	t.cache.Put(key, info)
	return info, nil
}

// attributeFields lists the leaf files under one attribute directory.
func attributeFields(info tango.AttributeInfo) []string {
	fields := make([]string, 0, len(attributeConfigFields)+2)
	fields = append(fields, "value")
	if info.Writable.Writable() {
		fields = append(fields, "w_value")
	}
	fields = append(fields, attributeConfigFields...)
	return fields
}

func configFieldValue(info tango.AttributeInfo, field string) (string, bool) {
	switch caseless.Fold(field) {
	case "writable":
		return info.Writable.String(), true
	case "data_type":
		return info.DataType, true
	case "data_format":
		return info.DataFormat.String(), true
	case "label":
		return info.Label, true
	case "unit":
		return info.Unit, true
	case "standard_unit":
		return info.StandardUnit, true
	case "display_unit":
		return info.DisplayUnit, true
	case "format":
		return info.Format, true
	case "description":
		return info.Description, true
	case "min_value":
		return info.MinValue, true
	case "max_value":
		return info.MaxValue, true
	case "min_alarm":
		return info.MinAlarm, true
	case "max_alarm":
		return info.MaxAlarm, true
	case "max_dim_x":
		return strconv.Itoa(info.MaxDimX), true
	case "max_dim_y":
		return strconv.Itoa(info.MaxDimY), true
	}
	return "", false
}

// splitPropertyLines turns written file bytes into property lines,
// mirroring how the content is rendered: trailing whitespace dropped,
// one line per element. Writing empty content clears the property.
func splitPropertyLines(data []byte) []string {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil
	}
	lines := strings.Split(trimmed, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func propertiesDirOf(coord resolve.Coordinate) resolve.Coordinate {
	dir := coord
	dir.Kind = resolve.KindPropertiesDir
	dir.Name = ""
	return dir
}

// childNodeKind maps a directory kind to the node kind of its children.
func childNodeKind(parent resolve.Kind) NodeKind {
	switch parent {
	case resolve.KindPropertiesDir, resolve.KindAttribute:
		return RegularFile
	case resolve.KindCommandsDir:
		return Executable
	default:
		return Directory
	}
}

var ordinalDay = regexp.MustCompile(`^(\d+)(st|nd|rd|th)`)

// startedDateLayouts are the formats databases have been seen to emit.
var startedDateLayouts = []string{
	"2 January 2006 at 15:04:05",
	"2/1/2006 15:04:05",
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
}

// parseStartedDate parses the database's human-formatted start
// timestamp best-effort; the zero time means unknown.
func parseStartedDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	normalized := ordinalDay.ReplaceAllString(strings.TrimSpace(s), "$1")
	for _, layout := range startedDateLayouts {
		if ts, err := time.Parse(layout, normalized); err == nil {
			return ts
		}
	}
	return time.Time{}
}
