package primitive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestEqual(t *testing.T) {
	t.Parallel()

	ts := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{name: "same numbers", a: Number(1.5), b: Number(1.5), want: true},
		{name: "number vs string is type checked", a: Number(1), b: String("1"), want: false},
		{name: "nil equals null", a: nil, b: Null{}, want: true},
		{name: "lists compare element-wise", a: List{Number(1), String("a")}, b: List{Number(1), String("a")}, want: true},
		{name: "lists with different order differ", a: List{Number(1), Number(2)}, b: List{Number(2), Number(1)}, want: false},
		{name: "maps ignore key order", a: Map{"a": Number(1), "b": Boolean(true)}, b: Map{"b": Boolean(true), "a": Number(1)}, want: true},
		{
			name: "journal refs compare fields",
			a:    JournalEntryRef{ID: "e1", Timestamp: ts, Fields: map[string]Value{"ok": Number(10)}},
			b:    JournalEntryRef{ID: "e1", Timestamp: ts.UTC(), Fields: map[string]Value{"ok": Number(10)}},
			want: true,
		},
		{
			name: "journal refs with different fields differ",
			a:    JournalEntryRef{ID: "e1", Timestamp: ts, Fields: map[string]Value{"ok": Number(10)}},
			b:    JournalEntryRef{ID: "e1", Timestamp: ts, Fields: map[string]Value{"ok": Number(11)}},
			want: false,
		},
		{name: "display requires same label", a: Display{Value: String("x"), DisplayValue: strPtr("X")}, b: Display{Value: String("x")}, want: false},
		{
			name: "comparison results",
			a:    ComparisonResult{Source: Number(23), Target: Number(30), Met: false},
			b:    ComparisonResult{Source: Number(23), Target: Number(30), Met: false},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}

func TestLooseEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		left, right Value
		want        bool
	}{
		{name: "string coerced to number", left: String("10"), right: Number(10), want: true},
		{name: "number coerced to string", left: Number(10), right: String("10"), want: true},
		{name: "fractional number to string", left: Number(1.5), right: String("1.5"), want: true},
		{name: "boolean from string", left: String("true"), right: Boolean(true), want: true},
		{name: "single element list is unwrapped", left: List{String("a")}, right: String("a"), want: true},
		{name: "list membership", left: List{String("a"), String("b")}, right: String("b"), want: true},
		{name: "list without member", left: List{String("a")}, right: String("c"), want: false},
		{name: "display unwrapped to raw value", left: Display{Value: Number(3), DisplayValue: strPtr("three")}, right: Number(3), want: true},
		{name: "non numeric string does not match number", left: String("abc"), right: Number(0), want: false},
		{name: "null never matches a number", left: Null{}, right: Number(0), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LooseEqual(tt.left, tt.right))
		})
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		op          Operator
		left, right Value
		want        bool
	}{
		{name: "greater or equal met", op: OpGreaterEqual, left: Number(30), right: Number(30), want: true},
		{name: "greater or equal not met", op: OpGreaterEqual, left: Number(23), right: Number(30), want: false},
		{name: "ordering coerces strings", op: OpGreater, left: String("13"), right: Number(10), want: true},
		{name: "ordering on non numeric is false", op: OpLess, left: String("abc"), right: Number(10), want: false},
		{name: "not equal is loose", op: OpNotEqual, left: String("5"), right: Number(5), want: false},
		{name: "less or equal", op: OpLessEqual, left: Number(2), right: Number(3), want: true},
		{name: "unknown operator", op: Operator("~"), left: Number(2), right: Number(3), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Compare(tt.op, tt.left, tt.right))
		})
	}
}

func TestEnvelope_PreservesNestedValues(t *testing.T) {
	t.Parallel()

	original := Map{
		"group-a": List{
			JournalEntryRef{
				ID:        "e1",
				Timestamp: time.UnixMilli(86_400_000).UTC(),
				Fields: map[string]Value{
					"mood":  Display{Value: Number(3), DisplayValue: strPtr("Good")},
					"notes": Null{},
				},
			},
			TagEntryRef{ID: "t1", Timestamp: time.UnixMilli(5).UTC()},
		},
		"goal": ComparisonResult{Source: Number(23), Target: Number(30)},
	}

	data, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, Equal(original, decoded), "decoded value differs: %#v", decoded)
}

func TestEnvelope_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := Unmarshal([]byte(`{"type":"DATE","value":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown value type")
}

func TestClone_DoesNotAlias(t *testing.T) {
	t.Parallel()

	original := List{JournalEntryRef{ID: "e1", Fields: map[string]Value{"ok": Number(1)}}}
	cloned := Clone(original).(List)

	cloned[0].(JournalEntryRef).Fields["ok"] = Number(2)

	assert.Equal(t, Number(1), original[0].(JournalEntryRef).Fields["ok"])
}
