// Package api serves the content plan over HTTP in schedule mode.
package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"ai-course-pipeline/plan"
)

// PlanLoader reads the persisted content plan.
type PlanLoader interface {
	Load(ctx context.Context) (map[string]plan.Entry, error)
}

// TriggerFunc starts a run in the background. It reports false when a run
// is already going.
type TriggerFunc func() bool

// Server exposes health, plan and manual trigger endpoints.
type Server struct {
	plans   PlanLoader
	trigger TriggerFunc
	mu      sync.Mutex // plan.Store is not safe for concurrent Load
}

func NewServer(plans PlanLoader, trigger TriggerFunc) *Server {
	return &Server{plans: plans, trigger: trigger}
}

// NewRouter constructs a Gin engine with registered routes.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handleHealth)
	g := r.Group("/api")
	g.GET("/plan", s.handleListPlan)
	g.GET("/plan/:date", s.handleGetEntry)
	if s.trigger != nil {
		g.POST("/run", s.handleRun)
	}
	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) load(c *gin.Context) (map[string]plan.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.plans.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load content plan: " + err.Error()})
		return nil, false
	}
	return entries, true
}

// GET /api/plan?status=failed
func (s *Server) handleListPlan(c *gin.Context) {
	entries, ok := s.load(c)
	if !ok {
		return
	}
	status := plan.Status(c.Query("status"))
	if status != "" && !plan.IsKnownStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}

	out := make([]plan.Entry, 0, len(entries))
	for _, e := range entries {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	c.JSON(http.StatusOK, gin.H{"count": len(out), "entries": out})
}

func (s *Server) handleGetEntry(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse(plan.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	entries, ok := s.load(c)
	if !ok {
		return
	}
	e, found := entries[date]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no plan entry for " + date})
		return
	}
	c.JSON(http.StatusOK, e)
}

func (s *Server) handleRun(c *gin.Context) {
	if !s.trigger() {
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
