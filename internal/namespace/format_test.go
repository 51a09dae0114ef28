package namespace

import (
	"testing"

	"github.com/tangofs/tangofs/internal/tango"
)

func TestFormatterRegistry(t *testing.T) {
	reg := NewFormatterRegistry()

	cases := []struct {
		name   string
		info   tango.AttributeInfo
		values []string
		want   string
	}{
		{"scalar", tango.AttributeInfo{DataFormat: tango.FormatScalar}, []string{"45.6"}, "45.6\n"},
		{"scalar empty", tango.AttributeInfo{DataFormat: tango.FormatScalar}, nil, "\n"},
		{"spectrum", tango.AttributeInfo{DataFormat: tango.FormatSpectrum}, []string{"1", "2", "3"}, "1\n2\n3\n"},
		{"image falls back to text", tango.AttributeInfo{DataFormat: tango.FormatImage}, []string{"1", "2"}, "1\n2\n"},
	}
	for _, tc := range cases {
		if got := string(reg.Render(tc.info, tc.values)); got != tc.want {
			t.Errorf("%s: Render = %q, want %q", tc.name, got, tc.want)
		}
	}
}

type unitFormatter struct{ unit string }

func (f unitFormatter) Matches(info tango.AttributeInfo) bool { return info.Unit == f.unit }
func (f unitFormatter) Render(values []string) []byte {
	if len(values) == 0 {
		return []byte("\n")
	}
	return []byte(values[0] + " " + f.unit + "\n")
}

func TestRegisteredFormatterTakesPrecedence(t *testing.T) {
	reg := NewFormatterRegistry()
	reg.Register(unitFormatter{unit: "mm"})

	info := tango.AttributeInfo{DataFormat: tango.FormatScalar, Unit: "mm"}
	if got := string(reg.Render(info, []string{"4.2"})); got != "4.2 mm\n" {
		t.Errorf("Render = %q, want %q", got, "4.2 mm\n")
	}

	plain := tango.AttributeInfo{DataFormat: tango.FormatScalar}
	if got := string(reg.Render(plain, []string{"4.2"})); got != "4.2\n" {
		t.Errorf("Render = %q, want %q", got, "4.2\n")
	}
}
