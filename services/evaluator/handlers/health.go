package handlers

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"
)

// Version is the evaluator service's reported version.
const Version = "1.0.0"

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Healthy bool              `json:"healthy"`
	Version string            `json:"version"`
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func HealthCheck(c *gin.Context) {
	checks := map[string]string{
		"workers": fmt.Sprintf("%d CPUs", runtime.NumCPU()),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		checks["memory"] = fmt.Sprintf("%.1f%% used", vm.UsedPercent)
	}

	c.JSON(http.StatusOK, HealthResponse{
		Healthy: true,
		Version: Version,
		Status:  "ok",
		Checks:  checks,
	})
}
