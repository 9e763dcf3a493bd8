package prices

import (
	"encoding/json"
	"net/http"
	"time"
)

type PriceResponse struct {
	Name  string  `json:"name"`
	Key   string  `json:"key"`
	Price float64 `json:"price,omitempty"`
	Found bool    `json:"found"`
}

type HealthResponse struct {
	State    string     `json:"state"`
	Items    int        `json:"items"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}

// Handler serves GET /price?name=...
func (s *Service) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}

		price, found := s.PriceFor(r.Context(), name)
		resp := PriceResponse{Name: name, Key: Normalize(name), Price: price, Found: found}

		w.Header().Set("Content-Type", "application/json")
		if !found {
			w.WriteHeader(http.StatusNotFound)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.Log.WithError(err).Warn("could not write price response")
		}
	}
}

// HealthHandler reports the updater state and the cached snapshot size.
func HealthHandler(u *Updater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			State: u.State().String(),
			Items: u.Cache().Len(),
		}
		if at := u.Cache().LoadedAt(); !at.IsZero() {
			resp.LoadedAt = &at
		}
		w.Header().Set("Content-Type", "application/json")
		if resp.Items == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			u.log.WithError(err).Warn("could not write health response")
		}
	}
}
