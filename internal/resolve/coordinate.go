// Package resolve turns slash-separated paths into typed coordinates.
//
// A Coordinate is the resolved, canonical-case address of one remote
// entity. It is the sole key type the cache and the namespace tree work
// with: all pattern matching on path shape happens here, once, instead
// of being scattered across operation handlers.
package resolve

import (
	"strings"

	"github.com/tangofs/tangofs/internal/caseless"
)

// Kind enumerates every addressable depth of the two tree views.
type Kind int

const (
	// KindRoot is the mount root listing the two views.
	KindRoot Kind = iota
	// KindServersRoot is the "servers" view root.
	KindServersRoot
	// KindServer lists one server's instances.
	KindServer
	// KindInstance lists one server instance's classes.
	KindInstance
	// KindClass lists the devices of one class in one instance.
	KindClass
	// KindDevicesRoot is the "devices" view root, listing domains.
	KindDevicesRoot
	// KindDomain lists one domain's families.
	KindDomain
	// KindFamily lists one domain/family's members.
	KindFamily
	// KindDevice is one device's directory.
	KindDevice
	// KindPropertiesDir is the "properties" marker under a device.
	KindPropertiesDir
	// KindAttributesDir is the "attributes" marker under a device.
	KindAttributesDir
	// KindCommandsDir is the "commands" marker under a device.
	KindCommandsDir
	// KindProperty is one property file.
	KindProperty
	// KindAttribute is one attribute's directory.
	KindAttribute
	// KindAttributeField is one leaf file under an attribute.
	KindAttributeField
	// KindCommand is one command file.
	KindCommand
)

// String names the kind for logs and error paths.
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindServersRoot:
		return "servers"
	case KindServer:
		return "server"
	case KindInstance:
		return "instance"
	case KindClass:
		return "class"
	case KindDevicesRoot:
		return "devices"
	case KindDomain:
		return "domain"
	case KindFamily:
		return "family"
	case KindDevice:
		return "device"
	case KindPropertiesDir:
		return "properties"
	case KindAttributesDir:
		return "attributes"
	case KindCommandsDir:
		return "commands"
	case KindProperty:
		return "property"
	case KindAttribute:
		return "attribute"
	case KindAttributeField:
		return "attribute_field"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// IsDir reports whether coordinates of this kind materialize as
// directories.
func (k Kind) IsDir() bool {
	switch k {
	case KindProperty, KindAttributeField, KindCommand:
		return false
	default:
		return true
	}
}

// Coordinate identifies a remote entity by its resolved address. All
// components hold the canonical case reported by the database; equality
// and cache keying fold to lower case, matching how the database
// compares names. Coordinates are immutable values produced only by the
// Resolver.
type Coordinate struct {
	Kind Kind

	// Physical address, filled for the servers view.
	Server   string
	Instance string
	Class    string

	// Logical address, filled whenever the coordinate is at or below a
	// device (in either view).
	Domain string
	Family string
	Member string

	// Name is the property, attribute, or command name.
	Name string
	// Field is the attribute sub-field ("value", "unit", ...).
	Field string
}

// Device returns the full "domain/family/member" device name, empty for
// coordinates above device level.
func (c Coordinate) Device() string {
	if c.Domain == "" {
		return ""
	}
	return c.Domain + "/" + c.Family + "/" + c.Member
}

// Key returns the canonical cache key: the kind plus every component,
// lower-cased. Two coordinates naming the same entity through different
// path spellings produce the same key.
func (c Coordinate) Key() string {
	parts := []string{c.Kind.String()}
	for _, p := range []string{c.Server, c.Instance, c.Class, c.Domain, c.Family, c.Member, c.Name, c.Field} {
		if p != "" {
			parts = append(parts, caseless.Fold(p))
		}
	}
	return strings.Join(parts, "\x00")
}

// Equal compares coordinates by canonical components.
func (c Coordinate) Equal(other Coordinate) bool {
	return c.Key() == other.Key()
}

// String renders the coordinate for logs, in path-ish form.
func (c Coordinate) String() string {
	var b strings.Builder
	b.WriteString(c.Kind.String())
	if c.Server != "" {
		b.WriteString(" " + c.Server)
		if c.Instance != "" {
			b.WriteString("/" + c.Instance)
		}
		if c.Class != "" {
			b.WriteString("/" + c.Class)
		}
	}
	if dev := c.Device(); dev != "" {
		b.WriteString(" " + dev)
	}
	if c.Name != "" {
		b.WriteString(" " + c.Name)
	}
	if c.Field != "" {
		b.WriteString("." + c.Field)
	}
	return b.String()
}
