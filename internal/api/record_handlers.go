package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carvik/geodex/internal/models"
	"github.com/carvik/geodex/internal/storage"
)

// HandleCreateRecord persists an aggregated geo record. The
// authenticatedBy fields come from the request principal, never from
// the submitted payload.
func HandleCreateRecord(store storage.RecordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			// The router only mounts this behind AuthMiddleware.
			http.Error(w, noCredentialsHint, http.StatusUnauthorized)
			return
		}

		var rec models.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if rec.IP == "" {
			http.Error(w, "ip is required", http.StatusBadRequest)
			return
		}

		rec.ID = 0
		rec.AuthEmail = principal.Email
		rec.AuthProvider = string(principal.Provider)
		rec.AuthSubject = principal.ID
		rec.CreatedAt = time.Now()

		if err := store.Create(r.Context(), &rec); err != nil {
			log.Println("Records: failed to create record:", err)
			http.Error(w, "Failed to save record", http.StatusInternalServerError)
			return
		}

		log.Printf("Records: saved record %d for %s (by %s)", rec.ID, rec.IP, principal.Email)
		writeJSON(w, http.StatusCreated, rec)
	}
}

// HandleGetRecords lists stored records, newest first.
func HandleGetRecords(store storage.RecordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		recs, err := store.List(r.Context(), limit)
		if err != nil {
			log.Println("Records: failed to list records:", err)
			http.Error(w, "Failed to fetch records", http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []models.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

// HandleGetRecord returns a single record by id.
func HandleGetRecord(store storage.RecordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "Invalid record id", http.StatusBadRequest)
			return
		}

		rec, err := store.Get(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Record not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Println("Records: failed to get record:", err)
			http.Error(w, "Failed to fetch record", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}
