package http

import (
	"encoding/json"
	"net/http"
)

func MarshalJSON(w http.ResponseWriter, i any) {
	MarshalJSONWithStatus(w, i, http.StatusOK)
}

func MarshalJSONWithStatus(w http.ResponseWriter, i any, status int) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if i == nil {
		return
	}
	err := json.NewEncoder(w).Encode(i)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// MarshalJSONNoStore writes i like MarshalJSONWithStatus and forbids caching,
// as required for token and backchannel responses.
func MarshalJSONNoStore(w http.ResponseWriter, i any, status int) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	MarshalJSONWithStatus(w, i, status)
}
