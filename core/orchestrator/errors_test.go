package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/siherrmann/docketflow/core/ocr"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("Tagged errors keep their kind", func(t *testing.T) {
		assert.Equal(t, ErrorKindTransient, Classify(Transient(fmt.Errorf("busy"))))
		assert.Equal(t, ErrorKindValidation, Classify(Validation(fmt.Errorf("bad input"))))
		assert.Equal(t, ErrorKindPermanent, Classify(Permanent(fmt.Errorf("broken"))))
	})

	t.Run("Wrapped tagged errors keep their kind", func(t *testing.T) {
		err := fmt.Errorf("stage context: %w", Transient(fmt.Errorf("busy")))
		assert.Equal(t, ErrorKindTransient, Classify(err))
	})

	t.Run("Failed OCR job is permanent", func(t *testing.T) {
		err := fmt.Errorf("%w: unsupported format", ocr.ErrJobFailed)
		assert.Equal(t, ErrorKindPermanent, Classify(err))
	})

	t.Run("Poll timeout is transient", func(t *testing.T) {
		assert.Equal(t, ErrorKindTransient, Classify(ocr.ErrPollTimeout))
		assert.Equal(t, ErrorKindTransient, Classify(context.DeadlineExceeded))
	})

	t.Run("Untagged errors are unknown", func(t *testing.T) {
		assert.Equal(t, ErrorKindUnknown, Classify(fmt.Errorf("something odd")))
	})
}

func TestRetryable(t *testing.T) {
	t.Run("Transient retries up to max attempts", func(t *testing.T) {
		assert.True(t, retryable(ErrorKindTransient, 1, 3))
		assert.True(t, retryable(ErrorKindTransient, 2, 3))
		assert.False(t, retryable(ErrorKindTransient, 3, 3))
	})

	t.Run("Unknown retries exactly once", func(t *testing.T) {
		assert.True(t, retryable(ErrorKindUnknown, 1, 5))
		assert.False(t, retryable(ErrorKindUnknown, 2, 5))
	})

	t.Run("Validation and permanent never retry", func(t *testing.T) {
		assert.False(t, retryable(ErrorKindValidation, 1, 3))
		assert.False(t, retryable(ErrorKindPermanent, 1, 3))
	})
}
