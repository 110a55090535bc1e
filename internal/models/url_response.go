package models

// CreateURLResponse represents the response after creating a short URL
type CreateURLResponse struct {
	ShortCode string `json:"short_code"`
	LongURL   string `json:"long_url"`
	ShortURL  string `json:"short_url"` // Full short URL (base URL + short code)
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// URLStatsResponse represents the response for URL statistics
type URLStatsResponse struct {
	ShortCode  string `json:"short_code"`
	LongURL    string `json:"long_url"`
	ClickCount int    `json:"click_count"`
	CreatedAt  int64  `json:"created_at"`
	ExpiresAt  int64  `json:"expires_at"`
	Expired    bool   `json:"expired"`
}
