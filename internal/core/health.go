package core

import (
	"net/http"
)

// healthResponse is the body returned by the health check endpoint.
type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// HandleHealth reports process liveness along with build metadata. It does
// not probe downstream dependencies; load balancers use it purely to decide
// whether the process should keep receiving traffic.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	version := s.Config.Build.Version
	if version == "" {
		version = "dev"
	}

	JSON(w, r, http.StatusOK, healthResponse{
		Status:      "ok",
		Version:     version,
		Environment: s.Config.Environment,
	})
}
