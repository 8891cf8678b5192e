package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchKey_Deterministic(t *testing.T) {
	t.Parallel()

	a := SearchKey("  Winter  TREKS ", map[string]string{"type": "entity", "region": "north"})
	b := SearchKey("winter treks", map[string]string{"region": "north", "type": "entity"})
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, SearchKey("winter treks", nil))
	assert.NotEqual(t, a, SearchKey("summer treks", map[string]string{"region": "north", "type": "entity"}))
	assert.Len(t, a, 32)
}

func TestChatKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ChatKey("hi", `{"a":1}`), ChatKey("hi", `{"a":1}`))
	assert.NotEqual(t, ChatKey("hi", `{"a":1}`), ChatKey("hi", `{"a":2}`))
	// The separator keeps "ab"+"c" distinct from "a"+"bc".
	assert.NotEqual(t, ChatKey("ab", "c"), ChatKey("a", "bc"))
}

func TestUserKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "u1:6", RecommendationKey("u1", 6))
	assert.Equal(t, "u1", AnalyticsKey("u1"))
	assert.Equal(t, "recommendation:u1:6", storeKey(Recommendation, RecommendationKey("u1", 6)))
}
