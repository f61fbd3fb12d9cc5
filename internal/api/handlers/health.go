package handlers

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hannah-ric/esg-scraper/internal/cache"
	"github.com/hannah-ric/esg-scraper/internal/store"
)

// DetailedHealth reports process resource usage plus the reachability of
// the cache and store backends.
type DetailedHealth struct {
	cache *cache.Cache
	db    store.Database
}

func NewDetailedHealth(c *cache.Cache, db store.Database) *DetailedHealth {
	return &DetailedHealth{cache: c, db: db}
}

type detailedHealthResponse struct {
	Status      string  `json:"status"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	DiskPercent float64 `json:"disk_percent"`
	CacheOK     bool    `json:"cache_ok"`
	DatabaseOK  bool    `json:"database_ok"`
}

// ServeHTTP handles GET /health/detailed.
func (h *DetailedHealth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := detailedHealthResponse{Status: "ok"}

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		resp.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemPercent = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		resp.DiskPercent = du.UsedPercent
	}

	ctx := r.Context()
	if h.cache != nil {
		resp.CacheOK = h.cache.Health(ctx) == nil
	}
	if h.db != nil {
		resp.DatabaseOK = h.db.Ping(ctx) == nil
	}
	if !resp.CacheOK || !resp.DatabaseOK {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
