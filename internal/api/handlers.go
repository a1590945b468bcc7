package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ctfleet/instancer/internal/lifecycle"
	"github.com/ctfleet/instancer/internal/settings"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, m *lifecycle.Manager, db *gorm.DB) {
	apiGroup := router.Group("/api")

	// Player-facing instance operations.
	apiGroup.POST("/request", handleRequest(m))
	apiGroup.POST("/renew", handleRenew(m))
	apiGroup.POST("/view", handleView(m))
	apiGroup.POST("/stop", handleStop(m))
	apiGroup.GET("/connect_type/:id", handleConnectType(m))

	// Administrative operations.
	apiGroup.GET("/images", handleImages(m))
	apiGroup.GET("/running", handleRunning(m))
	apiGroup.POST("/purge", handlePurge(m))
	apiGroup.GET("/settings", handleGetSettings(db))
	apiGroup.POST("/settings/update", handleUpdateSettings(m, db))
}

// instancePayload identifies a (challenge, subject) pair for instance
// operations. The caller resolves team membership; the core doesn't.
type instancePayload struct {
	ChallengeID uint `json:"challenge_id" binding:"required"`
	SubjectID   uint `json:"subject_id" binding:"required"`
	UserID      uint `json:"user_id"`
	IsTeam      bool `json:"is_team"`
}

func handleRequest(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p instancePayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if p.UserID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no user_id specified"})
			return
		}

		view, err := m.Request(c.Request.Context(), p.ChallengeID, p.SubjectID, p.UserID, p.IsTeam)
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func handleRenew(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p instancePayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		view, err := m.Renew(c.Request.Context(), p.ChallengeID, p.SubjectID, p.IsTeam)
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      "instance renewed",
			"expires":      view.Expires,
			"hostname":     view.Hostname,
			"port":         view.Port,
			"connect":      view.ConnectType,
			"ssh_username": view.SSHUsername,
			"ssh_password": view.SSHPassword,
		})
	}
}

func handleView(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p instancePayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		view, err := m.Instance(c.Request.Context(), p.ChallengeID, p.SubjectID, p.IsTeam)
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func handleStop(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p struct {
			InstanceID string `json:"instance_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no instance_id specified"})
			return
		}

		if err := m.Stop(c.Request.Context(), p.InstanceID); err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": "instance stopped"})
	}
}

func handleConnectType(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge id"})
			return
		}

		ct, err := m.ConnectType(uint(id))
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connect": ct})
	}
}

func handleImages(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		images, err := m.ListImages(c.Request.Context())
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"images": images})
	}
}

func handleRunning(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := m.ListRunning(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"containers": list,
			"connected":  m.Connected(c.Request.Context()),
		})
	}
}

func handlePurge(m *lifecycle.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		purged := m.PurgeAll(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"success": "purged all instances", "purged": purged})
	}
}

func handleGetSettings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := settings.Load(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st.ToMap())
	}
}

func handleUpdateSettings(m *lifecycle.Manager, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var values map[string]string
		if err := c.ShouldBindJSON(&values); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		for _, key := range settings.Keys {
			if _, ok := values[key]; !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing required field: " + key})
				return
			}
		}

		if err := settings.Save(db, values); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := m.ApplySettings(c.Request.Context(), settings.FromMap(values)); err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": "settings updated"})
	}
}

// errStatus maps lifecycle error kinds to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrChallengeNotFound),
		errors.Is(err, lifecycle.ErrInstanceNotFound),
		errors.Is(err, lifecycle.ErrQuotaExceeded),
		errors.Is(err, lifecycle.ErrInvalidVolumeSpec),
		errors.Is(err, lifecycle.ErrNoPortAvailable):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
