package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Health reports whether a browser session is running and basic host load.
// Host stats are left out when they cannot be read.
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	info := gin.H{"status": "ok"}

	if h.Gate != nil {
		busy, since := h.Gate.Held()
		info["browser_busy"] = busy
		if busy {
			info["browser_busy_since"] = since
		}
	}

	// interval 0 compares against the previous call instead of sampling
	if cpuUsage, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(cpuUsage) > 0 {
		info["cpu_usage"] = cpuUsage[0]
	}
	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info["memory_total"] = memInfo.Total
		info["memory_used"] = memInfo.Used
		info["memory_used_percent"] = memInfo.UsedPercent
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    info,
	})
}
