// Package embedding provides the dual-encoder engine: deterministic
// image and text encoding into one shared, unit-normalized vector space,
// plus similarity scoring between encoded vectors.
package embedding

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"semanticgallery/apperr"
	"semanticgallery/config"
)

// CLIP ViT-B/32 input geometry. The text context length bounds tokenizer
// output; longer inputs are truncated.
const (
	imageInputSize = 224
	maxTextTokens  = 77
	padToken       = "<|endoftext|>"
)

// Candidate encoder filenames inside the model directory, in preference
// order. Matches the naming used by standard ONNX exports of CLIP-style
// checkpoints.
var (
	visualEncoderNames = []string{"visual_model.onnx", "vision_model.onnx", "image_model.onnx"}
	textEncoderNames   = []string{"text_model.onnx", "model.onnx"}
)

// Device identifies the compute backend bound at engine construction.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// Encoder is the read-only surface shared by the ingestion and retrieval
// pipelines. Implementations must be safe for concurrent use.
type Encoder interface {
	EncodeImage(ctx context.Context, img image.Image) ([]float32, error)
	EncodeText(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	ModelVersion() string
	Dimension() int
}

// Engine runs the loaded dual-encoder model. The model, tokenizer and
// device binding are immutable after New; the engine holds no per-call
// state, so one instance may be shared by any number of callers without
// locking.
type Engine struct {
	visual *ort.DynamicAdvancedSession
	text   *ort.DynamicAdvancedSession
	tk     *tokenizer.Tokenizer
	padID  int64

	visualInput, visualOutput string
	textInput, textOutput     string

	dim          int
	modelName    string
	modelVersion string
	device       Device
	log          *logrus.Logger
}

var _ Encoder = (*Engine)(nil)

var ortInitOnce sync.Once
var ortInitErr error

func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// New loads the visual and text encoders from cfg.ModelPath and the
// tokenizer from cfg.TokenizerPath, binding the compute device once.
// A missing, malformed or dimension-incompatible artifact fails fast
// with an artifact error; there is no retry path.
func New(cfg config.EmbeddingConfig, log *logrus.Logger) (*Engine, error) {
	const op = "embedding.New"

	if err := initRuntime(cfg.ONNXLibraryPath); err != nil {
		return nil, apperr.Wrap(apperr.KindArtifact, op, fmt.Errorf("initializing onnx runtime: %w", err))
	}

	visualPath, err := findArtifact(cfg.ModelPath, visualEncoderNames)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindArtifact, op, err)
	}
	textPath, err := findArtifact(cfg.ModelPath, textEncoderNames)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindArtifact, op, err)
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindArtifact, op, fmt.Errorf("loading tokenizer %s: %w", cfg.TokenizerPath, err))
	}
	padID, ok := tk.TokenToId(padToken)
	if !ok {
		return nil, apperr.New(apperr.KindArtifact, op, "tokenizer has no %s token", padToken)
	}

	device, opts, err := bindDevice(cfg.Device, log)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindArtifact, op, err)
	}
	if opts != nil {
		defer opts.Destroy()
	}

	e := &Engine{
		tk:           tk,
		padID:        int64(padID),
		dim:          cfg.Dimension,
		modelName:    cfg.ModelName,
		modelVersion: cfg.ModelVersion,
		device:       device,
		log:          log,
	}

	e.visualInput, e.visualOutput, err = inspectEncoder(visualPath, cfg.Dimension)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindArtifact, op, err)
	}
	e.textInput, e.textOutput, err = inspectEncoder(textPath, cfg.Dimension)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindArtifact, op, err)
	}

	e.visual, err = ort.NewDynamicAdvancedSession(visualPath,
		[]string{e.visualInput}, []string{e.visualOutput}, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindArtifact, op, fmt.Errorf("loading visual encoder %s: %w", visualPath, err))
	}
	e.text, err = ort.NewDynamicAdvancedSession(textPath,
		[]string{e.textInput}, []string{e.textOutput}, opts)
	if err != nil {
		e.visual.Destroy()
		return nil, apperr.Wrap(apperr.KindArtifact, op, fmt.Errorf("loading text encoder %s: %w", textPath, err))
	}

	log.WithFields(logrus.Fields{
		"model":     cfg.ModelName,
		"version":   cfg.ModelVersion,
		"dimension": cfg.Dimension,
		"device":    device,
	}).Info("embedding engine loaded")
	return e, nil
}

// findArtifact returns the first candidate that exists under dir.
func findArtifact(dir string, names []string) (string, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no encoder found in %s (tried %v)", dir, names)
}

// inspectEncoder reads the model's IO metadata, returning its input and
// output names and rejecting a static output dimension that disagrees
// with the configured one.
func inspectEncoder(path string, wantDim int) (inputName, outputName string, err error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return "", "", fmt.Errorf("reading model metadata %s: %w", path, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return "", "", fmt.Errorf("model %s declares no inputs or outputs", path)
	}

	dims := outputs[0].Dimensions
	if n := len(dims); n > 0 {
		if last := dims[n-1]; last > 0 && int(last) != wantDim {
			return "", "", fmt.Errorf("model %s outputs dimension %d, configured %d", path, last, wantDim)
		}
	}
	return inputs[0].Name, outputs[0].Name, nil
}

// bindDevice resolves the device selector. "auto" prefers CUDA and
// falls back to CPU when the provider cannot be appended.
func bindDevice(selector string, log *logrus.Logger) (Device, *ort.SessionOptions, error) {
	if selector == string(DeviceCPU) {
		return DeviceCPU, nil, nil
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return "", nil, fmt.Errorf("creating session options: %w", err)
	}

	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err == nil {
		err = opts.AppendExecutionProviderCUDA(cudaOpts)
		cudaOpts.Destroy()
	}
	if err != nil {
		if selector == string(DeviceCUDA) {
			opts.Destroy()
			return "", nil, fmt.Errorf("cuda requested but unavailable: %w", err)
		}
		log.WithError(err).Debug("cuda unavailable, using cpu")
		opts.Destroy()
		return DeviceCPU, nil, nil
	}
	return DeviceCUDA, opts, nil
}

// ModelName returns the loaded model's name.
func (e *Engine) ModelName() string { return e.modelName }

// ModelVersion returns the loaded model's version.
func (e *Engine) ModelVersion() string { return e.modelVersion }

// Dimension returns the encoder's output dimension.
func (e *Engine) Dimension() int { return e.dim }

// Device returns the compute device bound at construction.
func (e *Engine) Device() Device { return e.device }

// EncodeImage maps img to a unit-normalized vector. The result for a
// given image is deterministic for the engine's lifetime.
func (e *Engine) EncodeImage(ctx context.Context, img image.Image) ([]float32, error) {
	vecs, err := e.EncodeImageBatch(ctx, []image.Image{img})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeImageBatch encodes images in one forward pass. Output order
// matches input order.
func (e *Engine) EncodeImageBatch(ctx context.Context, images []image.Image) ([][]float32, error) {
	const op = "embedding.EncodeImageBatch"
	if len(images) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plane := 3 * imageInputSize * imageInputSize
	data := make([]float32, len(images)*plane)
	for i, img := range images {
		copy(data[i*plane:], preprocessImage(img, imageInputSize))
	}

	input, err := ort.NewTensor(ort.NewShape(int64(len(images)), 3, imageInputSize, imageInputSize), data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInference, op, err)
	}
	defer input.Destroy()

	return e.run(op, e.visual, input, len(images))
}

// EncodeText maps text to a unit-normalized vector. The empty string is
// valid input and produces the degenerate-context embedding.
func (e *Engine) EncodeText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EncodeTextBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeTextBatch tokenizes and encodes texts in one forward pass,
// padding shorter sequences to the batch maximum with the tokenizer's
// pad token. Output order matches input order.
func (e *Engine) EncodeTextBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.EncodeTextBatch"
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sequences := make([][]int64, len(texts))
	maxLen := 0
	for i, text := range texts {
		ids, err := e.tokenize(text)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInference, op, err)
		}
		sequences[i] = ids
		if len(ids) > maxLen {
			maxLen = len(ids)
		}
	}

	data := make([]int64, 0, len(texts)*maxLen)
	for _, seq := range sequences {
		data = append(data, seq...)
		for j := len(seq); j < maxLen; j++ {
			data = append(data, e.padID)
		}
	}

	input, err := ort.NewTensor(ort.NewShape(int64(len(texts)), int64(maxLen)), data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInference, op, err)
	}
	defer input.Destroy()

	return e.run(op, e.text, input, len(texts))
}

// tokenize encodes text with the model's special tokens, truncated to
// the context length.
func (e *Engine) tokenize(text string) ([]int64, error) {
	encoding, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}
	ids := encoding.Ids
	if len(ids) > maxTextTokens {
		ids = ids[:maxTextTokens]
	}
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out, nil
}

// run executes one forward pass and L2-normalizes each output row. A
// failed pass is non-retryable for that input but leaves the engine
// usable for subsequent calls.
func (e *Engine) run(op string, session *ort.DynamicAdvancedSession, input ort.Value, batch int) ([][]float32, error) {
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch), int64(e.dim)))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInference, op, err)
	}
	defer output.Destroy()

	if err := session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, apperr.Wrap(apperr.KindInference, op, fmt.Errorf("forward pass: %w", err))
	}

	flat := output.GetData()
	vecs := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		row := make([]float32, e.dim)
		copy(row, flat[i*e.dim:(i+1)*e.dim])
		vecs[i] = NormalizeL2(row)
	}
	return vecs, nil
}

// Similarity returns the dot product of two vectors already normalized
// at encode time.
func (e *Engine) Similarity(a, b []float32) float32 {
	return Similarity(a, b)
}

// Close releases the loaded sessions. The engine must not be used after
// Close.
func (e *Engine) Close() error {
	var first error
	if e.visual != nil {
		if err := e.visual.Destroy(); err != nil {
			first = err
		}
	}
	if e.text != nil {
		if err := e.text.Destroy(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
