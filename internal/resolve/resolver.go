package resolve

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tangofs/tangofs/internal/caseless"
	"github.com/tangofs/tangofs/pkg/errors"
)

// DeviceSeparator stands in for "/" inside a device name when the name
// appears as a single path segment: sys/tg_test/1 is exposed as
// sys%tg_test%1 under its class directory.
const DeviceSeparator = "%"

// Lister enumerates the children of a directory coordinate as a
// case-folded index. The namespace tree implements it on top of the
// cache, so repeated resolutions inside the TTL window do not re-hit
// the network.
type Lister interface {
	Index(ctx context.Context, dir Coordinate) (caseless.Index, error)
}

// Resolver parses paths into coordinates. It holds no state of its own:
// resolution is purely a function of the path and the current remote
// state as seen through the Lister.
type Resolver struct {
	lister Lister
	logger *zap.Logger
}

// NewResolver creates a resolver backed by the given lister.
func NewResolver(lister Lister, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{lister: lister, logger: logger.Named("resolver")}
}

// Resolve parses a slash-separated path into the coordinate it
// addresses. Every segment is matched case-insensitively against the
// remote-reported siblings at that depth; an unmatched segment yields
// KindNotFound.
func (r *Resolver) Resolve(ctx context.Context, path string) (Coordinate, error) {
	coord := Coordinate{Kind: KindRoot}
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		next, err := r.step(ctx, coord, segment)
		if err != nil {
			r.logger.Debug("resolution failed",
				zap.String("path", path), zap.String("segment", segment), zap.Error(err))
			return Coordinate{}, errors.E("resolve", path, err)
		}
		coord = next
	}
	return coord, nil
}

// step descends one segment from parent. The segment arrives in
// path encoding: DeviceSeparator stands for "/".
func (r *Resolver) step(ctx context.Context, parent Coordinate, segment string) (Coordinate, error) {
	name := strings.ReplaceAll(segment, DeviceSeparator, "/")

	switch parent.Kind {
	case KindRoot:
		switch caseless.Fold(name) {
		case "servers":
			return Coordinate{Kind: KindServersRoot}, nil
		case "devices":
			return Coordinate{Kind: KindDevicesRoot}, nil
		}
		return Coordinate{}, errors.E(errors.KindNotFound, "step", segment)

	case KindProperty, KindAttributeField, KindCommand:
		// Nothing lives below a leaf file.
		return Coordinate{}, errors.E(errors.KindNotFound, "step", segment)
	}

	// Expert attributes are listed dot-prefixed; the dot is display
	// only and is not part of the attribute's name.
	if parent.Kind == KindAttributesDir {
		name = strings.TrimPrefix(name, ".")
	}

	canonical, err := r.match(ctx, parent, name)
	if err != nil {
		return Coordinate{}, err
	}

	child := parent
	switch parent.Kind {
	case KindServersRoot:
		child.Kind = KindServer
		child.Server = canonical
	case KindServer:
		child.Kind = KindInstance
		child.Instance = canonical
	case KindInstance:
		child.Kind = KindClass
		child.Class = canonical
	case KindClass:
		dev, err := splitDevice(canonical)
		if err != nil {
			return Coordinate{}, err
		}
		// Below class level the physical address is dropped: the same
		// device reached through either view carries one coordinate, so
		// the cache holds one entry for it.
		child = Coordinate{Kind: KindDevice, Domain: dev[0], Family: dev[1], Member: dev[2]}
	case KindDevicesRoot:
		child.Kind = KindDomain
		child.Domain = canonical
	case KindDomain:
		child.Kind = KindFamily
		child.Family = canonical
	case KindFamily:
		child.Kind = KindDevice
		child.Member = canonical
	case KindDevice:
		switch caseless.Fold(canonical) {
		case "properties":
			child.Kind = KindPropertiesDir
		case "attributes":
			child.Kind = KindAttributesDir
		case "commands":
			child.Kind = KindCommandsDir
		default:
			return Coordinate{}, errors.E(errors.KindNotFound, "step", segment)
		}
	case KindPropertiesDir:
		child.Kind = KindProperty
		child.Name = canonical
	case KindAttributesDir:
		child.Kind = KindAttribute
		child.Name = canonical
	case KindCommandsDir:
		child.Kind = KindCommand
		child.Name = canonical
	case KindAttribute:
		child.Kind = KindAttributeField
		child.Field = canonical
	default:
		return Coordinate{}, errors.E(errors.KindNotFound, "step", segment)
	}
	return child, nil
}

// match establishes the canonical name of one segment among parent's
// remote-reported children.
func (r *Resolver) match(ctx context.Context, parent Coordinate, name string) (string, error) {
	idx, err := r.lister.Index(ctx, parent)
	if err != nil {
		return "", err
	}
	if idx.Collided() {
		return "", errors.E(errors.KindNameCollision, "enumerate", parent.String())
	}
	canonical, ok := idx.Lookup(name)
	if !ok {
		return "", errors.E(errors.KindNotFound, "match", name)
	}
	return canonical, nil
}

func splitDevice(name string) ([3]string, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 {
		return [3]string{}, errors.E(errors.KindInvalid, "device", name)
	}
	return [3]string{parts[0], parts[1], parts[2]}, nil
}
