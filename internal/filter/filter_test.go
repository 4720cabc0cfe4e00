package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tally/internal/primitive"
)

func TestIsFilterMet(t *testing.T) {
	t.Parallel()

	answers := map[string]primitive.Value{
		"ok":     primitive.Number(13),
		"mood":   primitive.String("good"),
		"tags":   primitive.List{primitive.String("a"), primitive.String("b")},
		"rating": primitive.String("4"),
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "greater than met", filter: Filter{Field: "ok", Operator: Greater, Value: primitive.Number(10)}, want: true},
		{name: "greater than not met", filter: Filter{Field: "ok", Operator: Greater, Value: primitive.Number(13)}, want: false},
		{name: "greater or equal boundary", filter: Filter{Field: "ok", Operator: GreaterEqual, Value: primitive.Number(13)}, want: true},
		{name: "less than", filter: Filter{Field: "ok", Operator: Less, Value: primitive.Number(20)}, want: true},
		{name: "less or equal", filter: Filter{Field: "ok", Operator: LessEqual, Value: primitive.Number(12)}, want: false},
		{name: "equal string", filter: Filter{Field: "mood", Operator: Equal, Value: primitive.String("good")}, want: true},
		{name: "not equal string", filter: Filter{Field: "mood", Operator: NotEqual, Value: primitive.String("good")}, want: false},
		{name: "equal coerces string answer to number", filter: Filter{Field: "rating", Operator: Equal, Value: primitive.Number(4)}, want: true},
		{name: "ordering coerces string answer", filter: Filter{Field: "rating", Operator: Greater, Value: primitive.Number(3)}, want: true},
		{name: "list answer membership on equal", filter: Filter{Field: "tags", Operator: Equal, Value: primitive.String("b")}, want: true},
		{
			name:   "in list",
			filter: Filter{Field: "mood", Operator: In, Value: primitive.List{primitive.String("bad"), primitive.String("good")}},
			want:   true,
		},
		{
			name:   "not in list",
			filter: Filter{Field: "mood", Operator: NotIn, Value: primitive.List{primitive.String("bad")}},
			want:   true,
		},
		{name: "in with scalar value", filter: Filter{Field: "ok", Operator: In, Value: primitive.Number(13)}, want: true},
		{name: "unknown operator", filter: Filter{Field: "ok", Operator: Operator("LIKE"), Value: primitive.Number(13)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFilterMet(answers, tt.filter, true))
		})
	}
}

func TestIsFilterMet_MissingAnswer(t *testing.T) {
	t.Parallel()

	f := Filter{Field: "absent", Operator: Equal, Value: primitive.Number(1)}
	answers := map[string]primitive.Value{"other": primitive.Number(1)}

	assert.False(t, IsFilterMet(answers, f, true), "missing answers are excluded by default")
	assert.True(t, IsFilterMet(answers, f, false), "missing answers are kept when filterOutMissing is false")

	answers["absent"] = primitive.Null{}
	assert.False(t, IsFilterMet(answers, f, true), "null answers count as missing")
}

func TestAllMet(t *testing.T) {
	t.Parallel()

	answers := map[string]primitive.Value{"ok": primitive.Number(13)}

	assert.True(t, AllMet(answers, nil, true))
	assert.True(t, AllMet(answers, []Filter{
		{Field: "ok", Operator: Greater, Value: primitive.Number(10)},
		{Field: "ok", Operator: Less, Value: primitive.Number(20)},
	}, true))
	assert.False(t, AllMet(answers, []Filter{
		{Field: "ok", Operator: Greater, Value: primitive.Number(10)},
		{Field: "ok", Operator: Less, Value: primitive.Number(11)},
	}, true))
}

func TestFilter_JSON(t *testing.T) {
	t.Parallel()

	f := Filter{Field: "mood", Operator: In, Value: primitive.List{primitive.String("a"), primitive.Number(2)}}
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded Filter
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, f.Field, decoded.Field)
	assert.Equal(t, f.Operator, decoded.Operator)
	assert.True(t, primitive.Equal(f.Value, decoded.Value))

	err = json.Unmarshal([]byte(`{"field":"x","operator":"LIKE","value":{"type":"NULL"}}`), &decoded)
	require.Error(t, err)
}
