package models

// CreateURLRequest represents the request body for creating a short URL
type CreateURLRequest struct {
	URL        string `json:"url" binding:"required"`
	ShortCode  string `json:"short_code,omitempty"`  // Optional custom short code
	TTLMinutes int    `json:"ttl_minutes,omitempty"` // Optional TTL, defaults server-side
}

// UpdateExpiryRequest represents the request body for moving an entry's expiry
type UpdateExpiryRequest struct {
	ExpiresAt int64 `json:"expires_at" binding:"required"` // epoch milliseconds
}
