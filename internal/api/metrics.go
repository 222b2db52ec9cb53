package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Link          *LinkMetrics   `json:"link,omitempty"`
	Device        DeviceMetrics  `json:"device"`
	Loop          *LoopMetrics   `json:"loop,omitempty"`
	Spool         *SpoolMetrics  `json:"spool,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int   `json:"connected_clients"`
	DroppedEvents    int64 `json:"dropped_events"`
}

// LinkMetrics describes the cloud link.
type LinkMetrics struct {
	Connected  bool `json:"connected"`
	Reconnects int  `json:"reconnects"`
}

// DeviceMetrics counts the declarations.
type DeviceMetrics struct {
	Variables   int `json:"variables"`
	Diagnostics int `json:"diagnostics"`
}

// LoopMetrics contains driver loop counters.
type LoopMetrics struct {
	DataPublished  int    `json:"data_published"`
	DiagPublished  int    `json:"diagnostics_published"`
	Failures       int    `json:"failures"`
	CommandsPolled int    `json:"commands_polled"`
	Replayed       int    `json:"replayed"`
	LastPublish    string `json:"last_publish,omitempty"`
}

// SpoolMetrics describes the offline spool.
type SpoolMetrics struct {
	Pending int    `json:"pending"`
	Error   string `json:"error,omitempty"`
}

// handleMetrics returns runtime and daemon metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		Device: DeviceMetrics{
			Variables:   s.device.VariableCount(),
			Diagnostics: s.device.DiagnosticCount(),
		},
	}

	if s.link != nil {
		metrics.Link = &LinkMetrics{
			Connected:  s.link.IsConnected(),
			Reconnects: s.link.Reconnects(),
		}
	}

	if s.runner != nil {
		st := s.runner.Stats()
		metrics.Loop = &LoopMetrics{
			DataPublished:  st.DataPublished,
			DiagPublished:  st.DiagPublished,
			Failures:       st.Failures,
			CommandsPolled: st.CommandsPolled,
			Replayed:       st.Replayed,
		}
		if !st.LastPublish.IsZero() {
			metrics.Loop.LastPublish = st.LastPublish.UTC().Format(time.RFC3339)
		}
	}

	if s.spool != nil {
		n, err := s.spool.Len(r.Context())
		metrics.Spool = &SpoolMetrics{Pending: n}
		if err != nil {
			metrics.Spool.Error = err.Error()
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
