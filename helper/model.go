package helper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
)

const defaultModelDir = "./models"

// PrepareModel downloads an ONNX model for the embedding and extraction
// stages if it is not cached locally and returns the model path. The model
// directory can be overridden with the MODELS_DIR environment variable. The
// optional onnxFilePath selects which ONNX file to fetch from the model
// repository (defaults to "onnx/model.onnx").
func PrepareModel(modelName string, onnxFilePath ...string) (string, error) {
	modelDir := os.Getenv("MODELS_DIR")
	if modelDir == "" {
		modelDir = defaultModelDir
	}
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(modelDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create model directory: %w", err)
		}
		downloadOptions := hugot.NewDownloadOptions()
		downloadOptions.OnnxFilePath = "onnx/model.onnx"
		if len(onnxFilePath) > 0 && onnxFilePath[0] != "" {
			downloadOptions.OnnxFilePath = onnxFilePath[0]
		}
		downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("failed to download model: %w", err)
		}
		modelPath = downloadedPath
	}

	return modelPath, nil
}
