package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareModel(t *testing.T) {
	t.Run("Valid cached model is returned without download", func(t *testing.T) {
		modelDir := t.TempDir()
		t.Setenv("MODELS_DIR", modelDir)
		cached := filepath.Join(modelDir, "sentence-transformers_all-MiniLM-L6-v2")
		require.NoError(t, os.MkdirAll(cached, 0750))

		path, err := PrepareModel("sentence-transformers/all-MiniLM-L6-v2")

		require.NoError(t, err)
		assert.Equal(t, cached, path)
	})

	t.Run("Valid model name without slash", func(t *testing.T) {
		modelDir := t.TempDir()
		t.Setenv("MODELS_DIR", modelDir)
		cached := filepath.Join(modelDir, "legal-ner")
		require.NoError(t, os.MkdirAll(cached, 0750))

		path, err := PrepareModel("legal-ner")

		require.NoError(t, err)
		assert.Equal(t, cached, path)
	})

	t.Run("Valid empty onnx path falls back to default", func(t *testing.T) {
		modelDir := t.TempDir()
		t.Setenv("MODELS_DIR", modelDir)
		cached := filepath.Join(modelDir, "test_onnx-model")
		require.NoError(t, os.MkdirAll(cached, 0750))

		path, err := PrepareModel("test/onnx-model", "")

		require.NoError(t, err)
		assert.Equal(t, cached, path)
	})
}
