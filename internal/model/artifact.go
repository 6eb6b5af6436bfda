package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrArtifactNotFound means the model directory does not exist.
	ErrArtifactNotFound = errors.New("model directory not found")
	// ErrMalformedArtifact means the directory exists but cannot be loaded.
	ErrMalformedArtifact = errors.New("malformed model directory")
)

const (
	configFile       = "config.json"
	preprocessorFile = "preprocessor_config.json"
)

// onnxCandidates are checked in order; optimum exports to the directory root,
// some pipelines nest the file under onnx/.
var onnxCandidates = []string{
	"model.onnx",
	filepath.Join("onnx", "model.onnx"),
}

// ViT image processor defaults.
const (
	defaultImageSize     = 224
	defaultResample      = 2 // bilinear
	defaultRescaleFactor = 1.0 / 255.0
)

var defaultMeanStd = [3]float32{0.5, 0.5, 0.5}

// maxNumLabels bounds num_labels; it sizes the label list and the logits tensor.
const maxNumLabels = 1 << 16

// Artifact is a loaded model directory. It is read-only after LoadArtifact.
type Artifact struct {
	Dir          string
	ModelPath    string
	Config       ModelConfig
	Preprocessor PreprocessorConfig
	Preprocess   Preprocessing
	Labels       []string
}

// LoadArtifact reads the model and preprocessing configuration from dir and
// locates the ONNX weights. It does not touch the inference runtime.
func LoadArtifact(dir string) (*Artifact, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, dir)
		}
		return nil, fmt.Errorf("failed to stat model directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrArtifactNotFound, dir)
	}

	var cfg ModelConfig
	if err := readJSON(filepath.Join(dir, configFile), &cfg); err != nil {
		return nil, err
	}

	if cfg.NumLabels < 0 || cfg.NumLabels > maxNumLabels {
		return nil, fmt.Errorf("%w: num_labels is %d", ErrMalformedArtifact, cfg.NumLabels)
	}

	var pre PreprocessorConfig
	if err := readJSON(filepath.Join(dir, preprocessorFile), &pre); err != nil {
		return nil, err
	}

	modelPath, err := findONNX(dir)
	if err != nil {
		return nil, err
	}

	prep, err := resolvePreprocessing(pre, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArtifact, err)
	}

	return &Artifact{
		Dir:          dir,
		ModelPath:    modelPath,
		Config:       cfg,
		Preprocessor: pre,
		Preprocess:   prep,
		Labels:       ResolveLabels(cfg.ID2Label, cfg.NumLabels),
	}, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %v", ErrMalformedArtifact, filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: failed to parse %s: %v", ErrMalformedArtifact, filepath.Base(path), err)
	}
	return nil
}

func findONNX(dir string) (string, error) {
	for _, name := range onnxCandidates {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no ONNX weights in %s (looked for %v)", ErrMalformedArtifact, dir, onnxCandidates)
}

func resolvePreprocessing(pre PreprocessorConfig, cfg ModelConfig) (Preprocessing, error) {
	p := Preprocessing{
		Resize:        boolOr(pre.DoResize, true),
		Height:        defaultImageSize,
		Width:         defaultImageSize,
		Resample:      defaultResample,
		Rescale:       boolOr(pre.DoRescale, true),
		RescaleFactor: defaultRescaleFactor,
		Normalize:     boolOr(pre.DoNormalize, true),
		Mean:          defaultMeanStd,
		Std:           defaultMeanStd,
	}

	switch {
	case pre.Size != nil:
		p.Height, p.Width = pre.Size.Height, pre.Size.Width
	case cfg.ImageSize > 0:
		p.Height, p.Width = cfg.ImageSize, cfg.ImageSize
	}
	if p.Height <= 0 || p.Width <= 0 {
		return p, fmt.Errorf("invalid image size %dx%d", p.Width, p.Height)
	}

	if pre.Resample != nil {
		p.Resample = *pre.Resample
	}
	if pre.RescaleFactor != nil {
		p.RescaleFactor = float32(*pre.RescaleFactor)
	}

	var err error
	if p.Mean, err = channelTriple(pre.ImageMean, defaultMeanStd, "image_mean"); err != nil {
		return p, err
	}
	if p.Std, err = channelTriple(pre.ImageStd, defaultMeanStd, "image_std"); err != nil {
		return p, err
	}
	for i, s := range p.Std {
		if s == 0 {
			return p, fmt.Errorf("image_std[%d] is zero", i)
		}
	}
	return p, nil
}

// channelTriple accepts either one value per RGB channel or a single value
// broadcast to all three.
func channelTriple(v []float32, fallback [3]float32, name string) ([3]float32, error) {
	switch len(v) {
	case 0:
		return fallback, nil
	case 1:
		return [3]float32{v[0], v[0], v[0]}, nil
	case 3:
		return [3]float32{v[0], v[1], v[2]}, nil
	default:
		return fallback, fmt.Errorf("%s: expected 1 or 3 values, got %d", name, len(v))
	}
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}
