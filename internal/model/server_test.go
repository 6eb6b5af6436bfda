package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func tensorInfo(name string, dims ...int64) ort.InputOutputInfo {
	return ort.InputOutputInfo{Name: name, Dimensions: ort.NewShape(dims...)}
}

func TestResolveIO(t *testing.T) {
	pixels := tensorInfo("pixel_values", -1, 3, 224, 224)

	tests := []struct {
		name       string
		inputs     []ort.InputOutputInfo
		outputs    []ort.InputOutputInfo
		numLabels  int
		labelCount int
		want       tensorIO
		errSubstr  string
	}{
		{
			name:       "preferred names",
			inputs:     []ort.InputOutputInfo{tensorInfo("mask", 1, 1), pixels},
			outputs:    []ort.InputOutputInfo{tensorInfo("hidden", 1, 197, 768), tensorInfo("logits", -1, 4)},
			labelCount: 4,
			want:       tensorIO{input: "pixel_values", output: "logits", numClasses: 4},
		},
		{
			name:       "first tensor fallback",
			inputs:     []ort.InputOutputInfo{tensorInfo("input", 1, 3, 224, 224)},
			outputs:    []ort.InputOutputInfo{tensorInfo("output", 1, 4)},
			labelCount: 4,
			want:       tensorIO{input: "input", output: "output", numClasses: 4},
		},
		{
			name:       "static width wins over labels",
			inputs:     []ort.InputOutputInfo{pixels},
			outputs:    []ort.InputOutputInfo{tensorInfo("logits", 1, 5)},
			labelCount: 4,
			want:       tensorIO{input: "pixel_values", output: "logits", numClasses: 5},
		},
		{
			name:       "dynamic width uses num_labels",
			inputs:     []ort.InputOutputInfo{pixels},
			outputs:    []ort.InputOutputInfo{tensorInfo("logits", -1, -1)},
			numLabels:  5,
			labelCount: 4,
			want:       tensorIO{input: "pixel_values", output: "logits", numClasses: 5},
		},
		{
			name:       "dynamic width without num_labels uses labels",
			inputs:     []ort.InputOutputInfo{pixels},
			outputs:    []ort.InputOutputInfo{tensorInfo("logits", -1, -1)},
			labelCount: 4,
			want:       tensorIO{input: "pixel_values", output: "logits", numClasses: 4},
		},
		{
			name:      "3D output rejected",
			inputs:    []ort.InputOutputInfo{pixels},
			outputs:   []ort.InputOutputInfo{tensorInfo("logits", 1, 197, 4)},
			errSubstr: "2D logits",
		},
		{
			name:      "no width anywhere",
			inputs:    []ort.InputOutputInfo{pixels},
			outputs:   []ort.InputOutputInfo{tensorInfo("logits", -1, -1)},
			errSubstr: "number of classes",
		},
		{
			name:      "absurd static width",
			inputs:    []ort.InputOutputInfo{pixels},
			outputs:   []ort.InputOutputInfo{tensorInfo("logits", 1, maxNumLabels+1)},
			errSubstr: "limit",
		},
		{
			name:      "no inputs",
			outputs:   []ort.InputOutputInfo{tensorInfo("logits", 1, 4)},
			errSubstr: "model inputs",
		},
		{
			name:      "no outputs",
			inputs:    []ort.InputOutputInfo{pixels},
			errSubstr: "model outputs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveIO(tt.inputs, tt.outputs, tt.numLabels, tt.labelCount)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// An unparseable id2label key falls back to four names while the model still
// ranks five classes; the fifth is named by its index.
func TestLabelFallbackWithWiderModel(t *testing.T) {
	dir := writeArtifact(t,
		`{"num_labels": 5, "id2label": {"0": "a", "x": "b"}}`,
		vitPreprocessor, "model.onnx")
	a, err := LoadArtifact(dir)
	require.NoError(t, err)
	require.Equal(t, OCTLabels, a.Labels)

	binding, err := resolveIO(
		[]ort.InputOutputInfo{tensorInfo("pixel_values", 1, 3, 224, 224)},
		[]ort.InputOutputInfo{tensorInfo("logits", -1, -1)},
		a.Config.NumLabels, len(a.Labels))
	require.NoError(t, err)
	assert.EqualValues(t, 5, binding.numClasses)

	preds := TopK([]float32{0.1, 0.1, 0.1, 0.1, 0.6}, a.Labels, 1)
	assert.Equal(t, "4", preds[0].Label)
}
