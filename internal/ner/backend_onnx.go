//go:build onnx
// +build onnx

package ner

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxBackend implements TaggerBackend using ONNX Runtime (via yalue/onnxruntime_go).
type OnnxBackend struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	numLabels  int
	logger     *zap.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewTaggerBackend initializes the ONNX Runtime backend for a token
// classification model. Requires build tag 'onnx'.
func NewTaggerBackend(logger *zap.Logger, modelPath string, numLabels int) TaggerBackend {
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			logger.Error("ONNX Runtime environment init failed", zap.Error(err))
			return nil
		}
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		logger.Error("Failed to inspect ONNX model IO", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	preferredInputs := []string{"input_ids", "attention_mask", "token_type_ids"}
	available := map[string]string{}
	for _, ii := range inputsInfo {
		available[strings.ToLower(ii.Name)] = ii.Name
	}
	var inputNames []string
	for _, name := range preferredInputs {
		if declared, ok := available[name]; ok {
			inputNames = append(inputNames, declared)
		}
	}
	if len(inputNames) == 0 && len(inputsInfo) > 0 {
		sorted := make([]string, 0, len(inputsInfo))
		for _, ii := range inputsInfo {
			sorted = append(sorted, ii.Name)
		}
		sort.Strings(sorted)
		inputNames = sorted
	}

	if len(outputsInfo) == 0 {
		logger.Error("ONNX model reports no outputs", zap.String("model", modelPath))
		return nil
	}
	outputName := outputsInfo[0].Name

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, nil)
	if err != nil {
		logger.Error("ONNX Runtime session creation failed", zap.Error(err), zap.String("model", modelPath))
		return nil
	}

	logger.Info("ONNX Runtime tagger ready",
		zap.String("model", modelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputName),
		zap.Int("labels", numLabels),
	)
	return &OnnxBackend{
		session:    sess,
		inputNames: inputNames,
		outputName: outputName,
		numLabels:  numLabels,
		logger:     logger,
		ready:      true,
	}
}

// IsReady reports whether the backend is initialized.
func (b *OnnxBackend) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready && b.session != nil
}

// Close releases session and environment resources.
func (b *OnnxBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.Destroy()
		b.session = nil
	}
	ort.DestroyEnvironment()
	b.ready = false
	return nil
}

// TagBatch runs inference and returns the arg-max label per position.
func (b *OnnxBackend) TagBatch(ctx context.Context, inputs []*TokenizedInput) ([][]Tag, error) {
	if !b.IsReady() {
		return nil, fmt.Errorf("onnx backend not ready")
	}

	batch := len(inputs)
	if batch == 0 {
		return [][]Tag{}, nil
	}
	seqLen := len(inputs[0].InputIDs)

	inputIDs := make([]int64, 0, batch*seqLen)
	attention := make([]int64, 0, batch*seqLen)
	tokenTypes := make([]int64, 0, batch*seqLen)
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if len(in.InputIDs) != seqLen {
			return nil, fmt.Errorf("ragged batch: window length %d, want %d", len(in.InputIDs), seqLen)
		}
		inputIDs = append(inputIDs, in.InputIDs...)
		attention = append(attention, in.AttentionMask...)
		tokenTypes = append(tokenTypes, in.TokenTypeIDs...)
	}

	shape := ort.NewShape(int64(batch), int64(seqLen))
	idsTensor, err := ort.NewTensor[int64](shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor[int64](shape, attention)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor[int64](shape, tokenTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	values := make([]ort.Value, 0, len(b.inputNames))
	for _, rawName := range b.inputNames {
		name := strings.ToLower(rawName)
		switch {
		case strings.Contains(name, "attention") || strings.Contains(name, "mask"):
			values = append(values, maskTensor)
		case strings.Contains(name, "token_type") || strings.Contains(name, "segment"):
			values = append(values, typeTensor)
		default:
			values = append(values, idsTensor)
		}
	}

	outputs := make([]ort.Value, 1)
	b.mu.RLock()
	err = b.session.Run(values, outputs)
	b.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer func() {
		_ = outputs[0].Destroy()
	}()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	data := logits.GetData()
	outShape := logits.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unsupported output shape %v (want [batch, seq, labels])", outShape)
	}
	seq, labels := int(outShape[1]), int(outShape[2])
	if b.numLabels > 0 && labels != b.numLabels {
		return nil, fmt.Errorf("model emits %d labels, label file has %d", labels, b.numLabels)
	}
	if len(data) != batch*seq*labels {
		return nil, fmt.Errorf("unexpected flat data length %d for shape %v", len(data), outShape)
	}

	tags := make([][]Tag, batch)
	for w := 0; w < batch; w++ {
		tags[w] = make([]Tag, seq)
		for s := 0; s < seq; s++ {
			offset := (w*seq + s) * labels
			tags[w][s] = argmaxSoftmax(data[offset : offset+labels])
		}
	}
	return tags, nil
}

func argmaxSoftmax(logits []float32) Tag {
	best := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[best] {
			best = i
		}
	}
	var sum float64
	for _, l := range logits {
		sum += math.Exp(float64(l - logits[best]))
	}
	return Tag{Label: best, Score: float32(1 / sum)}
}
