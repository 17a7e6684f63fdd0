package api

import (
	"net/http"
	"time"

	"github.com/AgentMesh-Net/bulkops/internal/bulk"
	"github.com/AgentMesh-Net/bulkops/internal/util"
)

func (h *handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"name":         "Bulk Operations",
		"version":      "0.1",
		"service_time": time.Now().UTC().Format(time.RFC3339),
		"capabilities": map[string]any{
			"operations":   []string{bulk.OpComplete, bulk.OpVerify, bulk.OpSaveAttributes},
			"object_types": []string{bulk.ObjectTypeAssessment, bulk.ObjectTypeLCAComment},
		},
	}
	util.WriteJSON(w, http.StatusOK, resp)
}
