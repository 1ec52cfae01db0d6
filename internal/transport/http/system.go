package httptransport

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReady reports readiness: the process is up and the synthesis
// engine answers.
func (s *Server) handleReady(c *gin.Context) {
	if err := s.gateway.Healthy(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleLimits exposes the effective quotas so clients can pace themselves.
func (s *Server) handleLimits(c *gin.Context) {
	rl := s.cfg.RateLimit
	RespondSuccess(c, http.StatusOK, gin.H{
		"global_per_minute":       rl.GlobalPerMinute,
		"tts_per_minute":          rl.TTSPerMinute,
		"clone_per_minute":        rl.ClonePerMinute,
		"clone_per_source_hourly": rl.ClonePerSourceHourly,
		"max_total_chars":         s.cfg.Narrate.MaxTotalChars,
		"max_chunks":              s.cfg.Narrate.MaxChunks,
		"clone_min_seconds":       s.cfg.Clone.MinSeconds,
		"clone_max_seconds":       s.cfg.Clone.MaxSeconds,
	}, "")
}

// handleSystem reports host and process resource usage for operators.
func (s *Server) handleSystem(c *gin.Context) {
	info := gin.H{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info["cpu_percent"] = percents[0]
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil {
			info["process_rss_bytes"] = mi.RSS
		}
	}

	RespondSuccess(c, http.StatusOK, info, "")
}
