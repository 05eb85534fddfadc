package inspect

import (
	"encoding/json"
	"strings"
	"testing"
)

type sample struct {
	Value  float32 `inspect:"bar,of:Max"`
	Max    float32 `inspect:"skip"`
	Fuel   float64 `inspect:"bar,max:200"`
	Angle  float32 `inspect:"angle"`
	Label  float32 `inspect:"label,fmt:%.1f"`
	Ready  bool
	Count  int
	hidden int
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag     string
		widget  Widget
		options map[string]string
	}{
		{"", WidgetAuto, map[string]string{}},
		{"bar", WidgetBar, map[string]string{}},
		{"bar,max:200", WidgetBar, map[string]string{"max": "200"}},
		{"label, fmt:%.1f", WidgetLabel, map[string]string{"fmt": "%.1f"}},
		{"skip", WidgetSkip, map[string]string{}},
		{"nonsense", WidgetAuto, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			widget, options := ParseTag(tt.tag)
			if widget != tt.widget {
				t.Errorf("widget = %v, want %v", widget, tt.widget)
			}
			if len(options) != len(tt.options) {
				t.Fatalf("options = %v, want %v", options, tt.options)
			}
			for k, v := range tt.options {
				if options[k] != v {
					t.Errorf("options[%q] = %q, want %q", k, options[k], v)
				}
			}
		})
	}
}

func TestExtract(t *testing.T) {
	s := &sample{Value: 25, Max: 50, Fuel: 300, Angle: 90, Label: 1.34, Ready: true, Count: 3, hidden: 7}
	fields := Extract(s)

	byName := make(map[string]Field)
	for _, f := range fields {
		byName[f.Name] = f
	}
	if _, ok := byName["Max"]; ok {
		t.Error("skipped field extracted")
	}
	if _, ok := byName["hidden"]; ok {
		t.Error("unexported field extracted")
	}
	if len(fields) != 6 {
		t.Errorf("got %d fields, want 6", len(fields))
	}

	tests := []struct {
		name     string
		widget   Widget
		text     string
		fraction float32
	}{
		{"Value", WidgetBar, "25.00", 0.5},
		{"Fuel", WidgetBar, "300.00", 1},
		{"Angle", WidgetAngle, "90.00", 0},
		{"Label", WidgetLabel, "1.3", 0},
		{"Ready", WidgetBool, "true", 0},
		{"Count", WidgetLabel, "3", 0},
	}
	for _, tt := range tests {
		f := byName[tt.name]
		if f.Widget != tt.widget || f.Text != tt.text || f.Fraction != tt.fraction {
			t.Errorf("%s = %+v, want widget %v text %q fraction %v", tt.name, f, tt.widget, tt.text, tt.fraction)
		}
	}
}

func TestExtractNonStruct(t *testing.T) {
	if fields := Extract(42); fields != nil {
		t.Errorf("Extract(42) = %v, want nil", fields)
	}
}

func TestSectionJSON(t *testing.T) {
	data, err := json.Marshal(Describe("sample", sample{Value: 1, Max: 2}))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"component":"sample"`, `"widget":"bar"`, `"fraction":0.5`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON %s missing %s", data, want)
		}
	}
}
