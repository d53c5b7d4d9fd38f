package embedding

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

const defaultMaxSeqLen = 512

// ortInit guards the process-wide onnxruntime environment. The runtime must
// be initialized exactly once per process no matter how many encoders exist.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// OnnxConfig points at the model artifacts on disk.
type OnnxConfig struct {
	// SharedLibrary is the path to the onnxruntime shared library. Empty
	// means the loader default.
	SharedLibrary string
	ModelPath     string
	TokenizerPath string
	ModelID       string
	MaxSeqLen     int
}

// OnnxEncoder runs a sentence-embedding model through onnxruntime and mean
// pools the last hidden state.
type OnnxEncoder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizer.Tokenizer
	cfg       OnnxConfig
}

// NewOnnxEncoder loads the tokenizer and creates the inference session.
// Failures here are fatal for the caller: there is no fallback below the
// embedding layer.
func NewOnnxEncoder(cfg OnnxConfig) (*OnnxEncoder, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("embedding model path is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, errors.New("tokenizer path is required")
	}
	if cfg.ModelID == "" {
		cfg.ModelID = filepath.Base(cfg.ModelPath)
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = defaultMaxSeqLen
	}

	ortInitOnce.Do(func() {
		if cfg.SharedLibrary != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibrary)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", ortInitErr)
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", cfg.TokenizerPath, err)
	}
	tk.WithTruncation(&tokenizer.TruncationParams{MaxLength: cfg.MaxSeqLen})

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session %s: %w", cfg.ModelPath, err)
	}

	return &OnnxEncoder{session: session, tokenizer: tk, cfg: cfg}, nil
}

func (e *OnnxEncoder) ModelID() string { return e.cfg.ModelID }

// Encode tokenizes the text and returns the mean-pooled hidden state.
// Inference calls are serialized; the surrounding batch loop is sequential
// anyway, and onnxruntime sessions are not safe for concurrent Run calls
// with shared tensors.
func (e *OnnxEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, errors.New("encoder is closed")
	}

	encoding, err := e.tokenizer.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	seqLen := len(encoding.Ids)
	if seqLen == 0 {
		return nil, errors.New("tokenizer produced no tokens")
	}

	ids := make([]int64, seqLen)
	mask := make([]int64, seqLen)
	for i, id := range encoding.Ids {
		ids[i] = int64(id)
	}
	for i, m := range encoding.AttentionMask {
		mask[i] = int64(m)
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("create mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}
	defer outputs[0].Destroy()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	return meanPool(hidden.GetData(), hidden.GetShape(), mask)
}

// meanPool averages token vectors, skipping padding positions.
func meanPool(data []float32, shape []int64, mask []int64) ([]float32, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	seqLen := int(shape[1])
	hiddenSize := int(shape[2])
	if len(data) < seqLen*hiddenSize || len(mask) < seqLen {
		return nil, fmt.Errorf("output tensor smaller than shape %v", shape)
	}

	vec := make([]float32, hiddenSize)
	count := 0
	for tok := 0; tok < seqLen; tok++ {
		if mask[tok] == 0 {
			continue
		}
		offset := tok * hiddenSize
		for i := 0; i < hiddenSize; i++ {
			vec[i] += data[offset+i]
		}
		count++
	}
	if count == 0 {
		return nil, errors.New("attention mask is all zeros")
	}

	inv := 1.0 / float32(count)
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

// Close releases the onnxruntime session.
func (e *OnnxEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		return err
	}
	return nil
}
