package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// SearchKey hashes a normalized query together with its filters. Filter
// order and query whitespace or case do not change the key.
func SearchKey(query string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(normalizeQuery(query))
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(filters[k])
	}
	return digest(b.String())
}

// RecommendationKey identifies one user's recommendation list of a given size.
func RecommendationKey(userID string, limit int) string {
	return userID + ":" + strconv.Itoa(limit)
}

// AnalyticsKey identifies one user's analytics snapshot.
func AnalyticsKey(userID string) string {
	return userID
}

// ChatKey hashes a message with its serialized conversation context.
func ChatKey(message, serializedContext string) string {
	return digest(message + "\x00" + serializedContext)
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
