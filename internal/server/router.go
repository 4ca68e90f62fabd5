package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkfleet/fleetctl/internal/orchestrator"
)

// Router exposes a read-only HTTP view of the fleet for dashboards and
// scripted checks. It never mutates fleet state.
//
//	GET {basePath}/healthz      liveness of the supervisor itself
//	GET {basePath}/api/fleet    static service table
//	GET {basePath}/api/status   full fleet report (live probes)
//	GET {basePath}/metrics      Prometheus metrics
type Router struct {
	orch     *orchestrator.Orchestrator
	basePath string
}

func NewRouter(orch *orchestrator.Orchestrator, basePath string) *Router {
	return &Router{orch: orch, basePath: sanitizeBase(basePath)}
}

// Handler returns a gin-powered http.Handler that can be mounted anywhere.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/api/fleet", r.handleFleet)
	group.GET("/api/status", r.handleStatus)
	group.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		prometheus.DefaultGatherer, promhttp.HandlerOpts{})))
	return g
}

// NewServer starts a standalone HTTP server on addr with conservative
// timeouts. Callers own shutdown via the returned *http.Server.
func NewServer(addr, basePath string, orch *orchestrator.Orchestrator) *http.Server {
	r := NewRouter(orch, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleFleet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": r.orch.Fleet().Services()})
}

func (r *Router) handleStatus(c *gin.Context) {
	report := r.orch.Status(c.Request.Context())
	report.Finalize()
	c.JSON(http.StatusOK, report)
}

func sanitizeBase(bp string) string {
	if bp == "" || bp == "/" {
		return ""
	}
	if bp[0] != '/' {
		bp = "/" + bp
	}
	for len(bp) > 1 && bp[len(bp)-1] == '/' {
		bp = bp[:len(bp)-1]
	}
	return bp
}
