package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"research-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

type registration struct {
	check    Check
	critical bool
}

// Checker manages health checks for the system. The system is healthy while
// no critical component is down.
type Checker struct {
	checks      map[string]registration
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	listeners   []func(healthy bool)
	mutex       sync.RWMutex
	log         *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	if checkPeriod <= 0 {
		checkPeriod = 30 * time.Second
	}
	return &Checker{
		checks:      make(map[string]registration),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     5 * time.Second,
		log:         log.WithComponent("health"),
	}
}

// RegisterCheck registers a new health check
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = registration{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Critical:    critical,
		Description: "Not checked yet",
	}
}

// OnChange registers fn to receive the overall status after every run
func (c *Checker) OnChange(fn func(healthy bool)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = append(c.listeners, fn)
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, r := range c.checks {
		checks[name] = r
	}
	c.mutex.RUnlock()

	// checks run without the lock held; they may block on the network
	results := make(map[string]Component, len(checks))
	for name, r := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, description, err := r.check(checkCtx)
		cancel()

		result := Component{
			Name:        name,
			Status:      status,
			Critical:    r.critical,
			Description: description,
			LastChecked: time.Now(),
		}
		if err != nil {
			result.Error = err.Error()
			c.log.Warn("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			c.log.Debug("Health check completed",
				"component", name,
				"status", string(status),
			)
		}
		results[name] = result
	}

	c.mutex.Lock()
	for name, result := range results {
		result := result
		c.components[name] = &result
	}
	listeners := append([]func(bool){}, c.listeners...)
	c.mutex.Unlock()

	healthy := c.IsSystemHealthy()
	for _, fn := range listeners {
		fn(healthy)
	}
}

// Run checks immediately and then every check period until ctx is done
func (c *Checker) Run(ctx context.Context) {
	c.RunChecks(ctx)

	ticker := time.NewTicker(c.checkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunChecks(ctx)
		}
	}
}

// GetStatus returns a copy of the last results
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}
	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// Handler serves the last results; unhealthy systems answer 503
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status := http.StatusOK
		overall := "healthy"
		if !c.IsSystemHealthy() {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
		}

		ctx.JSON(status, gin.H{
			"status":     overall,
			"timestamp":  float64(time.Now().UnixMicro()) / 1e6,
			"components": c.GetStatus(),
		})
	}
}

// PingCheck adapts a ping function into a Check
func PingCheck(up string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Ping failed", err
		}
		return StatusUp, up, nil
	}
}
