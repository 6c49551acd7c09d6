package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/ballast/internal/database"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	ledgerDB  *database.DB
	configDB  *database.DB
	startTime time.Time
}

// NewSystemHandlers creates system monitoring handlers
func NewSystemHandlers(log zerolog.Logger, ledgerDB, configDB *database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		ledgerDB:  ledgerDB,
		configDB:  configDB,
		startTime: time.Now(),
	}
}

// HandleSystemStatus returns process health: uptime, CPU, and memory usage
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.getSystemStats()

	h.writeJSON(w, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
	})
}

// HandleDatabaseStats returns per-database health
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]map[string]interface{}, 0, 2)
	for _, db := range []*database.DB{h.ledgerDB, h.configDB} {
		if db == nil {
			continue
		}
		entry := map[string]interface{}{
			"name": db.Name(),
			"path": db.Path(),
			"ok":   true,
		}
		if err := db.Conn().Ping(); err != nil {
			entry["ok"] = false
			entry["error"] = err.Error()
		}
		stats = append(stats, entry)
	}

	h.writeJSON(w, map[string]interface{}{"databases": stats})
}

// getSystemStats samples CPU over a short interval so the endpoint responds
// quickly; memory is an instant read.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
