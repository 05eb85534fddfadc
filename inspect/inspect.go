// Package inspect turns ECS components into labelled fields for read-only
// display, driven by `inspect` struct tags.
package inspect

import (
	"fmt"
	"reflect"
	"strings"
)

// Widget is the display hint for a field.
type Widget int

const (
	WidgetAuto Widget = iota
	WidgetLabel
	WidgetBar
	WidgetAngle
	WidgetBool
	WidgetSkip
)

var widgetNames = map[Widget]string{
	WidgetAuto:  "auto",
	WidgetLabel: "label",
	WidgetBar:   "bar",
	WidgetAngle: "angle",
	WidgetBool:  "bool",
	WidgetSkip:  "skip",
}

func (w Widget) String() string {
	if name, ok := widgetNames[w]; ok {
		return name
	}
	return fmt.Sprintf("widget(%d)", int(w))
}

// MarshalText writes the widget name, so JSON clients see "bar" not 2.
func (w Widget) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// Field is one exported component field with its display hint.
type Field struct {
	Name     string  `json:"name"`
	Value    any     `json:"value"`
	Text     string  `json:"text"`
	Widget   Widget  `json:"widget"`
	Fraction float32 `json:"fraction,omitempty"` // Bar fill in [0,1]
}

// Section groups the fields of one component.
type Section struct {
	Component string  `json:"component"`
	Fields    []Field `json:"fields"`
}

// ParseTag parses an inspect struct tag.
// Format: `inspect:"widget[,option:value...]"`
//
//	`inspect:"bar,of:Max"`  bar filled relative to the sibling field Max
//	`inspect:"bar,max:200"` bar filled relative to a constant
//	`inspect:"label,fmt:%.1f"`
//	`inspect:"skip"`
func ParseTag(tag string) (Widget, map[string]string) {
	options := make(map[string]string)
	if tag == "" {
		return WidgetAuto, options
	}

	parts := strings.Split(tag, ",")
	widget := WidgetAuto
	for w, name := range widgetNames {
		if name == strings.TrimSpace(parts[0]) {
			widget = w
		}
	}

	for _, part := range parts[1:] {
		if k, v, ok := strings.Cut(strings.TrimSpace(part), ":"); ok {
			options[k] = v
		}
	}
	return widget, options
}

// Describe extracts the fields of component under a section name.
func Describe(name string, component any) Section {
	return Section{Component: name, Fields: Extract(component)}
}

// Extract reflects over the exported fields of a struct or struct pointer.
// Anything else yields no fields.
func Extract(component any) []Field {
	v := reflect.ValueOf(component)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	var fields []Field
	for i := range v.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		widget, options := ParseTag(sf.Tag.Get("inspect"))
		if widget == WidgetSkip {
			continue
		}
		fv := v.Field(i)
		if widget == WidgetAuto {
			widget = autoDetectWidget(fv)
		}

		f := Field{
			Name:   sf.Name,
			Value:  fv.Interface(),
			Text:   FormatValue(fv.Interface(), options["fmt"]),
			Widget: widget,
		}
		if widget == WidgetBar {
			f.Fraction = fraction(v, fv, options)
		}
		fields = append(fields, f)
	}
	return fields
}

func autoDetectWidget(v reflect.Value) Widget {
	if v.Kind() == reflect.Bool {
		return WidgetBool
	}
	return WidgetLabel
}

// fraction scales a bar value by its sibling "of" field or constant "max".
func fraction(parent, v reflect.Value, options map[string]string) float32 {
	value, ok := FloatValue(v.Interface())
	if !ok {
		return 0
	}
	limit := float32(1)
	if name, ok := options["of"]; ok {
		if sib := parent.FieldByName(name); sib.IsValid() {
			limit, _ = FloatValue(sib.Interface())
		}
	} else if s, ok := options["max"]; ok {
		var m float64
		if _, err := fmt.Sscanf(s, "%g", &m); err == nil {
			limit = float32(m)
		}
	}
	if limit <= 0 {
		return 0
	}
	return min(max(value/limit, 0), 1)
}

// FormatValue formats a field value. Floats default to two decimals.
func FormatValue(value any, fmtStr string) string {
	if fmtStr != "" {
		return fmt.Sprintf(fmtStr, value)
	}
	switch v := value.(type) {
	case float32:
		return fmt.Sprintf("%.2f", v)
	case float64:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// FloatValue extracts a float32 from numeric values.
func FloatValue(value any) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	case int32:
		return float32(v), true
	case int64:
		return float32(v), true
	case uint32:
		return float32(v), true
	default:
		return 0, false
	}
}
