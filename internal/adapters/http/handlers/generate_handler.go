// Package handlers groups the HTTP handlers served behind the admission
// middleware.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/komugidappei/ai-pose-editor-sub001/internal/adapters/http/middleware"
)

// Generator runs the downstream image-generation call. It is an external
// collaborator; this subsystem only cares whether it succeeded.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Image string `json:"image"`
}

// NewGenerateHandler invokes the generator and settles the quota charge made
// at admission: commit on success, release on failure, so callers are never
// billed for work that did not happen.
func NewGenerateHandler(generator Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		charge, _ := middleware.ChargeFromContext(r.Context())

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			releaseCharge(r.Context(), charge)
			http.Error(w, "prompt is required", http.StatusBadRequest)
			return
		}

		image, err := generator.Generate(r.Context(), req.Prompt)
		if err != nil {
			log.Printf("generate: downstream call failed: %v", err)
			releaseCharge(r.Context(), charge)
			http.Error(w, "generation failed", http.StatusBadGateway)
			return
		}

		if err := charge.Commit(r.Context()); err != nil {
			// The slot is already counted; a failed commit is log-only.
			log.Printf("generate: failed to commit quota charge: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(generateResponse{Image: image})
	}
}

func releaseCharge(ctx context.Context, charge *middleware.QuotaCharge) {
	if err := charge.Release(ctx); err != nil {
		log.Printf("generate: failed to release quota charge: %v", err)
	}
}
