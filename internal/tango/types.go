package tango

import "fmt"

// DataFormat mirrors the control system's attribute data formats.
type DataFormat int

const (
	FormatScalar DataFormat = iota
	FormatSpectrum
	FormatImage
)

// String returns the format name as the database spells it.
func (f DataFormat) String() string {
	switch f {
	case FormatScalar:
		return "SCALAR"
	case FormatSpectrum:
		return "SPECTRUM"
	case FormatImage:
		return "IMAGE"
	default:
		return fmt.Sprintf("FORMAT(%d)", int(f))
	}
}

// ParseDataFormat parses a database-reported format name.
func ParseDataFormat(s string) DataFormat {
	switch s {
	case "SPECTRUM":
		return FormatSpectrum
	case "IMAGE":
		return FormatImage
	default:
		return FormatScalar
	}
}

// WriteType mirrors the database's attribute writability values.
type WriteType int

const (
	WriteTypeRead WriteType = iota
	WriteTypeWrite
	WriteTypeReadWrite
	WriteTypeReadWithWrite
)

// String returns the write type as the database spells it.
func (w WriteType) String() string {
	switch w {
	case WriteTypeRead:
		return "READ"
	case WriteTypeWrite:
		return "WRITE"
	case WriteTypeReadWrite:
		return "READ_WRITE"
	case WriteTypeReadWithWrite:
		return "READ_WITH_WRITE"
	default:
		return fmt.Sprintf("WRITE_TYPE(%d)", int(w))
	}
}

// Writable reports whether the attribute accepts writes at all.
func (w WriteType) Writable() bool { return w != WriteTypeRead }

// DisplayLevel mirrors the database's attribute display levels.
type DisplayLevel int

const (
	DisplayOperator DisplayLevel = iota
	DisplayExpert
)

// AttributeInfo is the static configuration of one device attribute as
// reported by the device server.
type AttributeInfo struct {
	Name         string
	DataType     string
	DataFormat   DataFormat
	Writable     WriteType
	DisplayLevel DisplayLevel
	Label        string
	Unit         string
	StandardUnit string
	DisplayUnit  string
	Format       string
	Description  string
	MinValue     string
	MaxValue     string
	MinAlarm     string
	MaxAlarm     string
	MaxDimX      int
	MaxDimY      int
}

// AttributeValue is one live reading. Scalar readings carry a single
// element in Values; spectra carry one element per point.
type AttributeValue struct {
	Name   string
	Format DataFormat
	// Values holds the reading's textual elements, already converted by
	// the transport. Image data arrives row-major with DimX columns.
	Values []string
	// WValues holds the set-point side of a writable attribute, empty
	// for read-only attributes.
	WValues []string
	DimX    int
	DimY    int
}

// CommandInfo describes one device command.
type CommandInfo struct {
	Name    string
	InType  string
	OutType string
}

// DeviceInfo is the database's registration record for one device.
type DeviceInfo struct {
	Name      string
	ClassName string
	Server    string // "ServerName/instance"
	Exported  bool
	// StartedDate is the human-formatted start timestamp the database
	// reports, empty when the device never ran. Formats vary by
	// database version; consumers parse best-effort.
	StartedDate string
}
