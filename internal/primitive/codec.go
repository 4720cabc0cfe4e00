package primitive

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope wraps a Value for JSON transport. The wire format tags every value
// with its kind so decoding is lossless:
//
//	{"type":"NUMBER","value":23}
//	{"type":"JOURNAL_ENTRY","value":{"id":"e1","timestamp":0,"fields":{...}}}
//
// This format is persisted in index rows; changing it invalidates caches.
type Envelope struct {
	Value Value
}

type envelopeJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

type journalEntryJSON struct {
	ID        string              `json:"id"`
	Timestamp int64               `json:"timestamp"`
	Fields    map[string]Envelope `json:"fields,omitempty"`
}

type tagEntryJSON struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

type displayJSON struct {
	Value        Envelope `json:"value"`
	DisplayValue *string  `json:"display_value,omitempty"`
}

type comparisonJSON struct {
	Source Envelope `json:"source"`
	Target Envelope `json:"target"`
	Met    bool     `json:"met"`
}

// Marshal encodes v in the envelope format.
func Marshal(v Value) ([]byte, error) {
	return json.Marshal(Envelope{Value: v})
}

// Unmarshal decodes an envelope encoded value.
func Unmarshal(data []byte) (Value, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e.Value, nil
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	v := OrNull(e.Value)

	var payload any
	switch t := v.(type) {
	case Null:
		return json.Marshal(envelopeJSON{Type: KindNull.String()})
	case String:
		payload = string(t)
	case Number:
		payload = float64(t)
	case Boolean:
		payload = bool(t)
	case List:
		items := make([]Envelope, len(t))
		for i, item := range t {
			items[i] = Envelope{Value: item}
		}
		payload = items
	case Map:
		payload = wrapFields(t)
	case JournalEntryRef:
		payload = journalEntryJSON{ID: t.ID, Timestamp: t.Timestamp.UnixMilli(), Fields: wrapFields(t.Fields)}
	case TagEntryRef:
		payload = tagEntryJSON{ID: t.ID, Timestamp: t.Timestamp.UnixMilli()}
	case Display:
		payload = displayJSON{Value: Envelope{Value: t.Value}, DisplayValue: t.DisplayValue}
	case ComparisonResult:
		payload = comparisonJSON{Source: Envelope{Value: t.Source}, Target: Envelope{Value: t.Target}, Met: t.Met}
	default:
		return nil, fmt.Errorf("primitive: cannot marshal value of type %T", v)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeJSON{Type: v.Kind().String(), Value: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("primitive: invalid envelope: %w", err)
	}

	kind, ok := parseKind(raw.Type)
	if !ok {
		return fmt.Errorf("primitive: unknown value type %q", raw.Type)
	}

	v, err := decodePayload(kind, raw.Value)
	if err != nil {
		return fmt.Errorf("primitive: invalid %s payload: %w", raw.Type, err)
	}
	e.Value = v
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Value, error) {
	switch kind {
	case KindNull:
		return Null{}, nil
	case KindString:
		var s string
		err := json.Unmarshal(raw, &s)
		return String(s), err
	case KindNumber:
		var f float64
		err := json.Unmarshal(raw, &f)
		return Number(f), err
	case KindBoolean:
		var b bool
		err := json.Unmarshal(raw, &b)
		return Boolean(b), err
	case KindList:
		var items []Envelope
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make(List, len(items))
		for i, item := range items {
			out[i] = OrNull(item.Value)
		}
		return out, nil
	case KindMap:
		var fields map[string]Envelope
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		return Map(unwrapFields(fields)), nil
	case KindJournalEntry:
		var j journalEntryJSON
		if err := json.Unmarshal(raw, &j); err != nil {
			return nil, err
		}
		return JournalEntryRef{ID: j.ID, Timestamp: time.UnixMilli(j.Timestamp).UTC(), Fields: unwrapFields(j.Fields)}, nil
	case KindTagEntry:
		var t tagEntryJSON
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		return TagEntryRef{ID: t.ID, Timestamp: time.UnixMilli(t.Timestamp).UTC()}, nil
	case KindDisplay:
		var d displayJSON
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return Display{Value: OrNull(d.Value.Value), DisplayValue: d.DisplayValue}, nil
	case KindComparison:
		var c comparisonJSON
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return ComparisonResult{Source: OrNull(c.Source.Value), Target: OrNull(c.Target.Value), Met: c.Met}, nil
	}
	return nil, fmt.Errorf("unsupported kind %s", kind)
}

// WrapFields converts a value map into its envelope form for JSON encoding.
func WrapFields(fields map[string]Value) map[string]Envelope {
	return wrapFields(fields)
}

// UnwrapFields is the inverse of WrapFields.
func UnwrapFields(fields map[string]Envelope) map[string]Value {
	return unwrapFields(fields)
}

func wrapFields(fields map[string]Value) map[string]Envelope {
	if fields == nil {
		return nil
	}
	out := make(map[string]Envelope, len(fields))
	for k, v := range fields {
		out[k] = Envelope{Value: v}
	}
	return out
}

func unwrapFields(fields map[string]Envelope) map[string]Value {
	if fields == nil {
		return nil
	}
	out := make(map[string]Value, len(fields))
	for k, v := range fields {
		out[k] = OrNull(v.Value)
	}
	return out
}
