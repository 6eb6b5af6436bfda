package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ortEnv guards process-wide ONNX Runtime initialization.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// Options tunes the inference session.
type Options struct {
	// SharedLibraryPath points at libonnxruntime; empty uses the runtime default.
	SharedLibraryPath string
	IntraOpThreads    int
}

// Server owns the loaded artifact and its inference session. It is safe for
// concurrent use: the session is never mutated and every call allocates its
// own tensors.
type Server struct {
	artifact   *Artifact
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	numClasses int64
}

// NewServer starts an ONNX Runtime session for a loaded artifact.
func NewServer(a *Artifact, opts Options) (*Server, error) {
	if err := initORT(opts.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(a.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	binding, err := resolveIO(inputs, outputs, a.Config.NumLabels, len(a.Labels))
	if err != nil {
		return nil, err
	}
	if binding.numClasses != int64(len(a.Labels)) {
		slog.Warn("model output width differs from label count; extra classes are named by index",
			"classes", binding.numClasses, "labels", len(a.Labels))
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}
	if err := sessOpts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(a.ModelPath,
		[]string{binding.input}, []string{binding.output}, sessOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Info("model session ready",
		"model", a.ModelPath,
		"input", binding.input,
		"output", binding.output,
		"classes", binding.numClasses,
		"image_size", fmt.Sprintf("%dx%d", a.Preprocess.Width, a.Preprocess.Height))

	return &Server{
		artifact:   a,
		session:    session,
		inputName:  binding.input,
		outputName: binding.output,
		numClasses: binding.numClasses,
	}, nil
}

// tensorIO is the resolved input/output binding of a classification model.
type tensorIO struct {
	input      string
	output     string
	numClasses int64
}

// resolveIO picks the pixel input and logits output and decides the logits
// width: the model's static width when it declares one, else num_labels, else
// the number of resolved labels.
func resolveIO(inputs, outputs []ort.InputOutputInfo, numLabels, labelCount int) (tensorIO, error) {
	var binding tensorIO
	var err error
	if binding.input, err = pickTensor(inputs, "pixel_values"); err != nil {
		return binding, fmt.Errorf("model inputs: %w", err)
	}
	if binding.output, err = pickTensor(outputs, "logits"); err != nil {
		return binding, fmt.Errorf("model outputs: %w", err)
	}

	for _, o := range outputs {
		if o.Name != binding.output {
			continue
		}
		dims := o.Dimensions
		if len(dims) != 2 {
			return binding, fmt.Errorf("expected 2D logits output, got %v", dims)
		}
		binding.numClasses = dims[1]
		break
	}

	switch {
	case binding.numClasses > 0:
	case numLabels > 0:
		binding.numClasses = int64(numLabels)
	default:
		binding.numClasses = int64(labelCount)
	}
	if binding.numClasses <= 0 {
		return binding, fmt.Errorf("cannot determine number of classes")
	}
	if binding.numClasses > maxNumLabels {
		return binding, fmt.Errorf("model declares %d classes, limit is %d", binding.numClasses, maxNumLabels)
	}
	return binding, nil
}

func pickTensor(infos []ort.InputOutputInfo, preferred string) (string, error) {
	if len(infos) == 0 {
		return "", fmt.Errorf("model declares no tensors")
	}
	for _, info := range infos {
		if info.Name == preferred {
			return info.Name, nil
		}
	}
	return infos[0].Name, nil
}

// Labels returns the class vocabulary indexed by class id.
func (s *Server) Labels() []string {
	out := make([]string, len(s.artifact.Labels))
	copy(out, s.artifact.Labels)
	return out
}

// Classify decodes data, runs the classifier and returns the topK most
// probable labels. topK is clamped to [1, number of classes]. Decode failures
// wrap ErrInvalidImage.
func (s *Server) Classify(ctx context.Context, data []byte, topK int) ([]Prediction, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := CheckInputSize(img, s.artifact.Preprocess); err != nil {
		return nil, err
	}

	pixels := Preprocess(img, s.artifact.Preprocess)
	logits, err := s.infer(pixels)
	if err != nil {
		return nil, err
	}
	return TopK(Softmax(logits), s.artifact.Labels, topK), nil
}

func (s *Server) infer(pixels []float32) ([]float32, error) {
	p := s.artifact.Preprocess
	if want := 3 * p.Height * p.Width; len(pixels) != want {
		return nil, fmt.Errorf("preprocessed %d values, input tensor needs %d", len(pixels), want)
	}
	in, err := ort.NewTensor(ort.NewShape(1, 3, int64(p.Height), int64(p.Width)), pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, s.numClasses))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	logits := make([]float32, s.numClasses)
	copy(logits, out.GetData())
	return logits, nil
}

// Close releases the session and the ONNX environment.
func (s *Server) Close() {
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
