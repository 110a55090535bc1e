package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"shortlink/internal/analytics"
	"shortlink/internal/eventlog"
	"shortlink/internal/models"
	"shortlink/internal/registry"
)

type ShortenerController struct {
	registry   *registry.Registry
	recorder   *analytics.Recorder
	events     *eventlog.Log
	baseURL    string
	defaultTTL time.Duration
}

func NewShortenerController(reg *registry.Registry, recorder *analytics.Recorder, events *eventlog.Log, baseURL string, defaultTTL time.Duration) *ShortenerController {
	return &ShortenerController{
		registry:   reg,
		recorder:   recorder,
		events:     events,
		baseURL:    baseURL,
		defaultTTL: defaultTTL,
	}
}

// CreateShortURL handles POST /api/v1/shorten
func (sc *ShortenerController) CreateShortURL(c *gin.Context) {
	var req models.CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ttl := sc.defaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	entry, err := sc.registry.Shorten(c.Request.Context(), req.URL, req.ShortCode, ttl)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidURL), errors.Is(err, registry.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, registry.ErrDuplicateCode):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, registry.ErrGenerationExhausted):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	sc.logEvent(c, eventlog.ShortenCreated, gin.H{"shortcode": entry.ShortCode, "long_url": entry.LongURL})

	c.JSON(http.StatusCreated, models.CreateURLResponse{
		ShortCode: entry.ShortCode,
		LongURL:   entry.LongURL,
		ShortURL:  sc.baseURL + "/" + entry.ShortCode,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	})
}

// RedirectToURL handles GET /:shortCode - records the click and redirects
func (sc *ShortenerController) RedirectToURL(c *gin.Context) {
	shortCode := c.Param("shortCode")

	entry, err := sc.registry.Resolve(c.Request.Context(), shortCode)
	if err != nil {
		var expired *registry.ExpiredError
		if errors.As(err, &expired) {
			sc.logEvent(c, eventlog.RedirectExpired, gin.H{"shortcode": shortCode})
			c.JSON(http.StatusGone, gin.H{
				"error":      "Short URL has expired",
				"shortcode":  expired.Entry.ShortCode,
				"expires_at": expired.Entry.ExpiresAt,
			})
			return
		}
		sc.logEvent(c, eventlog.RedirectNotFound, gin.H{"shortcode": shortCode})
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Short URL not found",
		})
		return
	}

	if _, err := sc.recorder.Record(c.Request.Context(), entry, analytics.ClickContext{
		Referrer:  c.GetHeader("Referer"),
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}); err != nil {
		// The redirect still goes through; analytics must never block it.
		log.Printf("Warning: failed to record click for %s: %v", shortCode, err)
	}
	sc.logEvent(c, eventlog.Redirect, gin.H{"shortcode": shortCode})

	c.Redirect(http.StatusFound, entry.LongURL)
}

// GetURLStats handles GET /api/v1/url/:shortCode - returns URL statistics
func (sc *ShortenerController) GetURLStats(c *gin.Context) {
	entry, found := sc.lookup(c)
	if !found {
		return
	}

	c.JSON(http.StatusOK, models.URLStatsResponse{
		ShortCode:  entry.ShortCode,
		LongURL:    entry.LongURL,
		ClickCount: len(entry.Clicks),
		CreatedAt:  entry.CreatedAt,
		ExpiresAt:  entry.ExpiresAt,
		Expired:    entry.Expired(time.Now().UnixMilli()),
	})
}

// GetClickAnalytics handles GET /api/v1/url/:shortCode/analytics
func (sc *ShortenerController) GetClickAnalytics(c *gin.Context) {
	entry, found := sc.lookup(c)
	if !found {
		return
	}

	// Bucket granularity in minutes, hourly by default
	bucket := time.Hour
	if raw := c.Query("bucket_minutes"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			bucket = time.Duration(minutes) * time.Minute
		}
	}

	c.JSON(http.StatusOK, analytics.Aggregate(entry, bucket))
}

// ListURLs handles GET /api/v1/urls - returns every entry, expired included
func (sc *ShortenerController) ListURLs(c *gin.Context) {
	entries, err := sc.registry.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UnixMilli()
	responses := make([]models.URLStatsResponse, len(entries))
	for i, entry := range entries {
		responses[i] = models.URLStatsResponse{
			ShortCode:  entry.ShortCode,
			LongURL:    entry.LongURL,
			ClickCount: len(entry.Clicks),
			CreatedAt:  entry.CreatedAt,
			ExpiresAt:  entry.ExpiresAt,
			Expired:    entry.Expired(now),
		}
	}

	c.JSON(http.StatusOK, responses)
}

// UpdateURLExpiresAt handles PATCH /api/v1/url/:shortCode
func (sc *ShortenerController) UpdateURLExpiresAt(c *gin.Context) {
	shortCode := c.Param("shortCode")

	var req models.UpdateExpiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := sc.registry.UpdateExpiry(c.Request.Context(), shortCode, req.ExpiresAt); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiry must be after creation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "URL expiration updated successfully"})
}

// DeleteURL handles DELETE /api/v1/url/:shortCode
func (sc *ShortenerController) DeleteURL(c *gin.Context) {
	shortCode := c.Param("shortCode")

	if err := sc.registry.Delete(c.Request.Context(), shortCode); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "URL deleted successfully"})
}

// Sweep handles POST /api/v1/maintenance/sweep - removes expired entries
func (sc *ShortenerController) Sweep(c *gin.Context) {
	removed, err := sc.registry.Sweep(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// lookup resolves the path shortcode for stats purposes: expired entries
// are still returned, only a genuinely unknown code is a 404.
func (sc *ShortenerController) lookup(c *gin.Context) (*registry.UrlEntry, bool) {
	shortCode := c.Param("shortCode")

	entry, err := sc.registry.Resolve(c.Request.Context(), shortCode)
	if err != nil {
		var expired *registry.ExpiredError
		if errors.As(err, &expired) {
			return expired.Entry, true
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "URL not found"})
		return nil, false
	}
	return entry, true
}

func (sc *ShortenerController) logEvent(c *gin.Context, eventType string, payload gin.H) {
	if err := sc.events.Append(c.Request.Context(), eventType, payload); err != nil {
		log.Printf("Warning: failed to log %s event: %v", eventType, err)
	}
}
