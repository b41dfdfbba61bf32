package ner

import (
	"fmt"
	"path/filepath"

	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"go.uber.org/zap"
)

// New selects the entity recognizer once, at startup. Disabled config and
// builds without a tagger backend both yield privacy.NoEntities; load
// failures for an enabled recognizer are returned so misconfiguration is
// noticed before scanning.
func New(cfg config.EntityConfig, log *logger.Logger) (privacy.EntityRecognizer, error) {
	log = log.WithComponent("ner")

	if !cfg.Enabled {
		log.Info("Entity recognizer disabled, detection is pattern-only")
		return privacy.NoEntities, nil
	}

	vocab, err := LoadVocab(cfg.VocabPath)
	if err != nil {
		return nil, &privacy.ConfigurationError{Field: "entity.vocab_path", Reason: "cannot load vocabulary", Err: err}
	}
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, &privacy.ConfigurationError{Field: "entity.labels_path", Reason: "cannot load labels", Err: err}
	}
	tokenizer, err := NewTokenizer(vocab, cfg.MaxLength)
	if err != nil {
		return nil, &privacy.ConfigurationError{Field: "entity.max_length", Reason: err.Error()}
	}

	backend := NewTaggerBackend(log.Logger, cfg.ModelPath, len(labels))
	if backend == nil {
		log.Warn("Entity tagger backend unavailable in this build, detection is pattern-only",
			zap.String("model", cfg.ModelPath),
		)
		return privacy.NoEntities, nil
	}

	name := fmt.Sprintf("ner:%s", filepath.Base(cfg.ModelPath))
	log.Info("Entity recognizer ready",
		zap.String("recognizer", name),
		zap.Int("vocab_size", len(vocab)),
		zap.Int("labels", len(labels)),
		zap.Int("max_length", cfg.MaxLength),
	)

	// ONNX sessions are shared; one inference at a time keeps memory bounded
	return privacy.Serialized(NewRecognizer(tokenizer, labels, backend, name)), nil
}
