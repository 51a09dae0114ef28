package namespace

import (
	"strings"

	"github.com/tangofs/tangofs/internal/tango"
)

// Formatter renders one attribute reading as file content. Formatters
// are selected by declared attribute configuration, so new renderings
// (per data type or format) plug in without touching the tree.
type Formatter interface {
	// Matches reports whether this formatter handles the attribute.
	Matches(info tango.AttributeInfo) bool
	// Render produces the file bytes for a reading.
	Render(values []string) []byte
}

// FormatterRegistry picks the first matching formatter, falling back to
// plain text. Registration happens at construction time; the registry
// is read-only afterwards and safe for concurrent use.
type FormatterRegistry struct {
	formatters []Formatter
	fallback   Formatter
}

// NewFormatterRegistry returns a registry with the built-in scalar and
// spectrum text formatters.
func NewFormatterRegistry() *FormatterRegistry {
	return &FormatterRegistry{
		formatters: []Formatter{scalarFormatter{}, spectrumFormatter{}},
		fallback:   textFormatter{},
	}
}

// Register appends a formatter, consulted before the built-ins so
// callers can override them.
func (r *FormatterRegistry) Register(f Formatter) {
	r.formatters = append([]Formatter{f}, r.formatters...)
}

// Render formats a reading's values using the first matching formatter.
func (r *FormatterRegistry) Render(info tango.AttributeInfo, values []string) []byte {
	for _, f := range r.formatters {
		if f.Matches(info) {
			return f.Render(values)
		}
	}
	return r.fallback.Render(values)
}

// scalarFormatter renders a scalar reading as a single line.
type scalarFormatter struct{}

func (scalarFormatter) Matches(info tango.AttributeInfo) bool {
	return info.DataFormat == tango.FormatScalar
}

func (scalarFormatter) Render(values []string) []byte {
	if len(values) == 0 {
		return []byte("\n")
	}
	return []byte(values[0] + "\n")
}

// spectrumFormatter renders a spectrum one value per line, the shape
// plotting tools consume directly.
type spectrumFormatter struct{}

func (spectrumFormatter) Matches(info tango.AttributeInfo) bool {
	return info.DataFormat == tango.FormatSpectrum
}

func (spectrumFormatter) Render(values []string) []byte {
	return []byte(strings.Join(values, "\n") + "\n")
}

// textFormatter is the fallback for anything without a better match,
// image data included: one element per line.
type textFormatter struct{}

func (textFormatter) Matches(tango.AttributeInfo) bool { return true }

func (textFormatter) Render(values []string) []byte {
	return []byte(strings.Join(values, "\n") + "\n")
}
