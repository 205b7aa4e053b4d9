package handlers

import "net/http"

// HealthCheck answers liveness probes. It deliberately skips the database so
// a degraded ledger still reports the process as up.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
