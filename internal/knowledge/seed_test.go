package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDocuments(t *testing.T) {
	t.Parallel()
	docs, err := SeedDocuments()
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	ids := make(map[string]bool)
	for _, d := range docs {
		assert.True(t, d.Static, d.ID)
		assert.NotEqual(t, TypeEntity, d.Type, d.ID)
		ids[d.ID] = true
	}
	assert.True(t, ids["base-children-treks"])
	assert.True(t, ids["base-cancellation-refund"])
}

func TestParseSeed_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{"missing id", "- {type: faq, content: x}"},
		{"missing content", "- {id: a, type: faq}"},
		{"bad type", "- {id: a, type: blog, content: x}"},
		{"empty type", "- {id: a, content: x}"},
		{"duplicate", "- {id: a, type: faq, content: x}\n- {id: a, type: faq, content: y}"},
		{"not a list", "id: a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseSeed([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
