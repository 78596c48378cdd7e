package task

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldKind identifies the type of a planner property value. The set is
// closed: every kind the mapper understands is listed here, and extraction
// switches over it exhaustively. Unknown kinds decode to KindUnknown and map
// to nothing, which is not an error.
type FieldKind string

// Planner property kinds as they appear on the wire.
const (
	KindTitle       FieldKind = "title"
	KindRichText    FieldKind = "rich_text"
	KindSelect      FieldKind = "select"
	KindMultiSelect FieldKind = "multi_select"
	KindStatus      FieldKind = "status"
	KindDate        FieldKind = "date"
	KindCheckbox    FieldKind = "checkbox"
	KindNumber      FieldKind = "number"
	KindRelation    FieldKind = "relation"
	KindUnknown     FieldKind = ""
)

// FieldValue is the tagged-variant representation of one planner property.
// Exactly the fields matching Kind are populated; the rest are zero.
type FieldValue struct {
	Kind FieldKind

	Text     string   // KindTitle, KindRichText
	Option   string   // KindSelect, KindStatus: selected option name
	Options  []string // KindMultiSelect: selected option names
	Date     *DateValue
	Checked  bool     // KindCheckbox
	Number   *float64 // KindNumber: nil when the property is empty
	Relation []string // KindRelation: related page ids
}

// DateValue is a planner date property: a start value that is either a
// date-only string or a full timestamp, with an optional end for ranges.
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// HasTime reports whether the start value carries a time component.
func (d *DateValue) HasTime() bool {
	return d != nil && strings.Contains(d.Start, "T")
}

// IsEmpty reports whether the field has no extractable content.
func (v *FieldValue) IsEmpty() bool {
	switch v.Kind {
	case KindTitle, KindRichText:
		return v.Text == ""
	case KindSelect, KindStatus:
		return v.Option == ""
	case KindMultiSelect:
		return len(v.Options) == 0
	case KindDate:
		return v.Date == nil || v.Date.Start == ""
	case KindCheckbox:
		return false
	case KindNumber:
		return v.Number == nil
	case KindRelation:
		return len(v.Relation) == 0
	case KindUnknown:
		return true
	}

	return true
}

// PlainText extracts the field's content as a single display string, for
// description synthesis. Returns "" for empty fields (skipped silently) and
// for unknown kinds.
func (v *FieldValue) PlainText() string {
	switch v.Kind {
	case KindTitle, KindRichText:
		return v.Text
	case KindSelect, KindStatus:
		return v.Option
	case KindMultiSelect:
		return strings.Join(v.Options, ", ")
	case KindDate:
		if v.Date == nil {
			return ""
		}

		return v.Date.Start
	case KindCheckbox:
		if v.Checked {
			return "Yes"
		}

		return "No"
	case KindNumber:
		if v.Number == nil {
			return ""
		}

		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case KindRelation:
		if len(v.Relation) == 0 {
			return ""
		}

		return v.Relation[0]
	case KindUnknown:
		return ""
	}

	return ""
}

// --- wire decoding ---

// richTextSpan is one span of planner rich text; only the plain text is kept.
type richTextSpan struct {
	PlainText string `json:"plain_text"`
}

// namedOption is a select/status/multi-select option on the wire.
type namedOption struct {
	Name string `json:"name"`
}

// idRef is a relation entry on the wire.
type idRef struct {
	ID string `json:"id"`
}

// wireField mirrors the planner API's property value envelope. Each property
// carries a "type" discriminator plus one payload key named after it.
type wireField struct {
	Type        string         `json:"type"`
	Title       []richTextSpan `json:"title"`
	RichText    []richTextSpan `json:"rich_text"`
	Select      *namedOption   `json:"select"`
	MultiSelect []namedOption  `json:"multi_select"`
	Status      *namedOption   `json:"status"`
	Date        *DateValue     `json:"date"`
	Checkbox    bool           `json:"checkbox"`
	Number      *float64       `json:"number"`
	Relation    []idRef        `json:"relation"`
}

// UnmarshalJSON decodes a planner property value into the tagged variant.
// Properties of a kind not in the closed set decode to KindUnknown.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var w wireField
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("task: decoding field value: %w", err)
	}

	*v = FieldValue{}

	switch FieldKind(w.Type) {
	case KindTitle:
		v.Kind = KindTitle
		v.Text = joinSpans(w.Title)
	case KindRichText:
		v.Kind = KindRichText
		v.Text = joinSpans(w.RichText)
	case KindSelect:
		v.Kind = KindSelect
		if w.Select != nil {
			v.Option = w.Select.Name
		}
	case KindMultiSelect:
		v.Kind = KindMultiSelect
		for _, o := range w.MultiSelect {
			v.Options = append(v.Options, o.Name)
		}
	case KindStatus:
		v.Kind = KindStatus
		if w.Status != nil {
			v.Option = w.Status.Name
		}
	case KindDate:
		v.Kind = KindDate
		v.Date = w.Date
	case KindCheckbox:
		v.Kind = KindCheckbox
		v.Checked = w.Checkbox
	case KindNumber:
		v.Kind = KindNumber
		v.Number = w.Number
	case KindRelation:
		v.Kind = KindRelation
		for _, r := range w.Relation {
			v.Relation = append(v.Relation, r.ID)
		}
	case KindUnknown:
		v.Kind = KindUnknown
	default:
		v.Kind = KindUnknown
	}

	return nil
}

// joinSpans concatenates rich text spans into one plain string.
func joinSpans(spans []richTextSpan) string {
	if len(spans) == 0 {
		return ""
	}

	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.PlainText)
	}

	return b.String()
}
