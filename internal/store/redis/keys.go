package redis

const (
	// KeyPrefixCache is the prefix for cached websites
	KeyPrefixCache = "sitemeta:cache:"
	// KeyColors is the hash mapping host -> color
	KeyColors = "sitemeta:colors"
)

// CacheKey returns the Redis key for a normalized URL
func CacheKey(normalizedURL string) string {
	return KeyPrefixCache + normalizedURL
}
