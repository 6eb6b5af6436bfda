package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLabels(t *testing.T) {
	tests := []struct {
		name      string
		in        map[string]string
		numLabels int
		want      []string
	}{
		{"nil", nil, 0, OCTLabels},
		{"empty", map[string]string{}, 0, OCTLabels},
		{
			"named",
			map[string]string{"0": "CNV", "1": "DME", "2": "DRUSEN", "3": "NORMAL"},
			0,
			[]string{"CNV", "DME", "DRUSEN", "NORMAL"},
		},
		{
			"ordered by id not map order",
			map[string]string{"2": "c", "0": "a", "1": "b"},
			0,
			[]string{"a", "b", "c"},
		},
		{
			"four generic placeholders",
			map[string]string{"0": "LABEL_0", "1": "LABEL_1", "2": "label_2", "3": "LABEL_3"},
			0,
			OCTLabels,
		},
		{
			"generic placeholders of another size are kept",
			map[string]string{"0": "LABEL_0", "1": "LABEL_1"},
			0,
			[]string{"LABEL_0", "LABEL_1"},
		},
		{
			"non-integer key",
			map[string]string{"0": "a", "one": "b"},
			0,
			OCTLabels,
		},
		{
			"id past mapping size",
			map[string]string{"0": "a", "2": "c"},
			0,
			OCTLabels,
		},
		{
			"huge id",
			map[string]string{"0": "a", "9223372036854775806": "b"},
			0,
			OCTLabels,
		},
		{
			"sparse id within num_labels",
			map[string]string{"0": "a", "2": "c"},
			3,
			[]string{"a", "1", "c"},
		},
		{
			"num_labels pads unnamed classes",
			map[string]string{"0": "a", "1": "b"},
			4,
			[]string{"a", "b", "2", "3"},
		},
		{
			"negative ids are ignored",
			map[string]string{"-1": "background", "0": "a", "1": "b"},
			0,
			[]string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLabels(tt.in, tt.numLabels))
		})
	}
}

func TestResolveLabels_ReturnsCopy(t *testing.T) {
	labels := ResolveLabels(nil, 0)
	labels[0] = "changed"
	assert.Equal(t, "CNV", OCTLabels[0])
}
