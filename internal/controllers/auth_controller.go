package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"shortlink/internal/auth"
	"shortlink/internal/eventlog"
	"shortlink/internal/models"
	"shortlink/internal/session"
)

type AuthController struct {
	manager *session.Manager
	issuer  *auth.Issuer // nil when a remote auth service is configured
	events  *eventlog.Log
}

func NewAuthController(manager *session.Manager, issuer *auth.Issuer, events *eventlog.Log) *AuthController {
	return &AuthController{
		manager: manager,
		issuer:  issuer,
		events:  events,
	}
}

// Register handles POST /api/v1/auth/register
func (ac *AuthController) Register(c *gin.Context) {
	if ac.issuer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "Registration is handled by the external auth service",
		})
		return
	}

	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	creds := auth.Credentials{Email: req.Email, Password: req.Password}
	user, err := ac.issuer.Register(c.Request.Context(), creds, req.Name, req.RollNo)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    user,
	})
}

// Login handles POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var creds auth.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	ac.logEvent(c, eventlog.LoginAttempt, gin.H{"email": creds.Email})

	sess, err := ac.manager.Login(c.Request.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrRejected) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Authentication service unavailable"})
		return
	}

	ac.logEvent(c, eventlog.LoginSuccess, gin.H{"email": sess.User.Email})

	c.JSON(http.StatusOK, sess)
}

// Logout handles POST /api/v1/auth/logout
func (ac *AuthController) Logout(c *gin.Context) {
	if err := ac.manager.Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me handles GET /api/v1/auth/me - returns the current session
func (ac *AuthController) Me(c *gin.Context) {
	sess := ac.manager.Session()
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No active session"})
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (ac *AuthController) logEvent(c *gin.Context, eventType string, payload gin.H) {
	if err := ac.events.Append(c.Request.Context(), eventType, payload); err != nil {
		log.Printf("Warning: failed to log %s event: %v", eventType, err)
	}
}
