package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/core/services"
)

// NewReclaimHandler triggers one reclamation pass. It is wired to an external
// scheduler (cron hitting the endpoint), never to a request path.
func NewReclaimHandler(reclaimer *services.Reclaimer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := reclaimer.Run(r.Context())
		if err != nil {
			log.Printf("reclaim failed: %v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
	}
}

// HealthHandler is the liveness probe.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
