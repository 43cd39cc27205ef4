package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataMarshal(t *testing.T) {
	t.Run("Valid marshal of empty metadata", func(t *testing.T) {
		m := Metadata{}

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), bytes)
	})

	t.Run("Valid marshal of document metadata", func(t *testing.T) {
		m := Metadata{
			"case_number": "2024-CV-0042",
			"page_count":  12,
			"sealed":      false,
		}

		bytes, err := m.Marshal()

		require.NoError(t, err)
		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes, &result))
		assert.Equal(t, "2024-CV-0042", result["case_number"])
		// JSON numbers decode as float64.
		assert.Equal(t, float64(12), result["page_count"])
		assert.Equal(t, false, result["sealed"])
	})
}

func TestMetadataUnmarshal(t *testing.T) {
	t.Run("Valid unmarshal of JSON bytes", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal([]byte(`{"case_number":"2024-CV-0042","attachments":["a.pdf","b.pdf"]}`))

		require.NoError(t, err)
		assert.Equal(t, "2024-CV-0042", m["case_number"])
		attachments, ok := m["attachments"].([]interface{})
		require.True(t, ok)
		assert.Len(t, attachments, 2)
	})

	t.Run("Valid unmarshal of nil yields empty metadata", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Empty(t, m)
	})

	t.Run("Valid unmarshal of Metadata directly", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(Metadata{"court": "N.D. Cal."})

		require.NoError(t, err)
		assert.Equal(t, "N.D. Cal.", m["court"])
	})

	t.Run("Error with invalid JSON", func(t *testing.T) {
		var m Metadata
		assert.Error(t, m.Unmarshal([]byte(`{invalid json}`)))
	})

	t.Run("Error with unsupported source type", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(12345)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "type assertion")
	})
}

func TestMetadataValueScan(t *testing.T) {
	t.Run("Valid Value then Scan preserves data", func(t *testing.T) {
		original := Metadata{
			"case_number": "2024-CV-0042",
			"filing": map[string]interface{}{
				"court": "N.D. Cal.",
			},
		}

		value, err := original.Value()
		require.NoError(t, err)

		var restored Metadata
		require.NoError(t, restored.Scan(value))

		assert.Equal(t, "2024-CV-0042", restored["case_number"])
		filing, ok := restored["filing"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "N.D. Cal.", filing["court"])
	})

	t.Run("Valid scan from nil column", func(t *testing.T) {
		var m Metadata

		require.NoError(t, m.Scan(nil))

		assert.NotNil(t, m)
		assert.Empty(t, m)
	})
}
