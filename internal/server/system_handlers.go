package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/portfolio-engine/internal/database"
)

// SystemHandlers handles system-wide monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startedAt   time.Time
	historyDB   *database.DB
	analyticsDB *database.DB
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(historyDB, analyticsDB *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startedAt:   time.Now(),
		historyDB:   historyDB,
		analyticsDB: analyticsDB,
	}
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	UptimeSeconds float64  `json:"uptime_seconds"`
	CPUPercent    float64  `json:"cpu_percent"`
	RAMPercent    float64  `json:"ram_percent"`
	Databases     []DBInfo `json:"databases"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	SizeMB  float64 `json:"size_mb"`
	Healthy bool    `json:"healthy"`
}

// HandleSystemStatus returns process and database health
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := h.getSystemStats()

	databases := make([]DBInfo, 0, 2)
	for _, db := range []*database.DB{h.historyDB, h.analyticsDB} {
		if db == nil {
			continue
		}
		info := DBInfo{Name: db.Name(), Path: db.Path()}
		if stat, err := os.Stat(db.Path()); err == nil {
			info.SizeMB = float64(stat.Size()) / 1024 / 1024
		}
		info.Healthy = db.QuickCheck(r.Context()) == nil
		databases = append(databases, info)
	}

	response := SystemStatusResponse{
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		CPUPercent:    cpuPct,
		RAMPercent:    ramPct,
		Databases:     databases,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// getSystemStats samples CPU and memory usage. The short CPU window keeps the
// endpoint responsive for dashboard polling.
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
