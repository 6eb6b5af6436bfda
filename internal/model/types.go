package model

import (
	"encoding/json"
	"fmt"
)

// ModelConfig is the subset of a Hugging Face config.json the server reads.
type ModelConfig struct {
	ID2Label    map[string]string `json:"id2label"`
	NumLabels   int               `json:"num_labels"`
	ImageSize   int               `json:"image_size"`
	NumChannels int               `json:"num_channels"`
}

// PreprocessorConfig mirrors preprocessor_config.json for ViT image processors.
type PreprocessorConfig struct {
	DoResize      *bool      `json:"do_resize"`
	Size          *ImageSize `json:"size"`
	Resample      *int       `json:"resample"`
	DoRescale     *bool      `json:"do_rescale"`
	RescaleFactor *float64   `json:"rescale_factor"`
	DoNormalize   *bool      `json:"do_normalize"`
	ImageMean     []float32  `json:"image_mean"`
	ImageStd      []float32  `json:"image_std"`
}

// ImageSize is the target resolution. The JSON form is either a bare integer,
// {"height": h, "width": w} or {"shortest_edge": n}; the last two collapse to a
// square when only one edge is known.
type ImageSize struct {
	Height int
	Width  int
}

func (s *ImageSize) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		s.Height, s.Width = n, n
		return nil
	}

	var obj struct {
		Height       int `json:"height"`
		Width        int `json:"width"`
		ShortestEdge int `json:"shortest_edge"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("size: %w", err)
	}
	switch {
	case obj.Height > 0 && obj.Width > 0:
		s.Height, s.Width = obj.Height, obj.Width
	case obj.ShortestEdge > 0:
		s.Height, s.Width = obj.ShortestEdge, obj.ShortestEdge
	default:
		return fmt.Errorf("size: no usable dimensions in %s", data)
	}
	return nil
}

// Preprocessing is the resolved, defaults-applied form of PreprocessorConfig.
type Preprocessing struct {
	Resize        bool
	Height        int
	Width         int
	Resample      int
	Rescale       bool
	RescaleFactor float32
	Normalize     bool
	Mean          [3]float32
	Std           [3]float32
}

// Prediction is a single ranked label.
type Prediction struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// PredictionResponse is the body returned by POST /predict.
type PredictionResponse struct {
	Predictions []Prediction `json:"predictions"`
}
