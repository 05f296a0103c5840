package main

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ndfz-analytics/gridview/internal/feed"
	"github.com/ndfz-analytics/gridview/internal/forecast"
	"github.com/ndfz-analytics/gridview/internal/frame"
	"github.com/ndfz-analytics/gridview/internal/pipeline"
	"github.com/ndfz-analytics/gridview/internal/store"
	"github.com/ndfz-analytics/gridview/internal/view"
)

type Server struct {
	records    *store.RecordService
	pipeline   *pipeline.Pipeline
	forecaster *forecast.Forecaster
	limiter    *rate.Limiter
	spravkaCSV string
	pogodaCSV  string
	horizon    int
	rangeDays  int
}

// runPipeline recomputes the reconciled table from the live feeds. Each
// request recomputes synchronously; there is no background refresh.
func (s *Server) runPipeline(r *http.Request) (*pipeline.Result, error) {
	restrictions, err := s.records.Rows(r.Context())
	if err != nil {
		return nil, err
	}

	var spravka, pogoda []feed.Row
	if s.spravkaCSV != "" {
		if spravka, err = feed.ReadCSVFile(s.spravkaCSV); err != nil {
			return nil, err
		}
	}
	if s.pogodaCSV != "" {
		if pogoda, err = feed.ReadCSVFile(s.pogodaCSV); err != nil {
			return nil, err
		}
	}

	return s.pipeline.Run(r.Context(), pipeline.Feeds{
		Restrictions: restrictions,
		Spravka:      spravka,
		Pogoda:       pogoda,
	})
}

func (s *Server) handleReconciled(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}

	res, err := s.runPipeline(r)
	if err != nil {
		respondPipelineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fingerprint": res.Fingerprint,
		"dropped":     res.Dropped,
		"columns":     res.Table.Columns(),
		"rows":        tableRows(res.Table),
	})
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}

	res, err := s.runPipeline(r)
	if err != nil {
		respondPipelineError(w, err)
		return
	}

	// Default interval: the most recent rangeDays days ending today. The
	// default policy lives here in the presentation layer; the core only
	// applies explicit bounds.
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(s.rangeDays - 1))
	if q := r.URL.Query().Get("start"); q != "" {
		if start, err = feed.ParseISO(q); err != nil {
			http.Error(w, "start: want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	if q := r.URL.Query().Get("end"); q != "" {
		if end, err = feed.ParseISO(q); err != nil {
			http.Error(w, "end: want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	sub, err := view.Range(res.Table, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payload := map[string]interface{}{
		"start":   feed.FormatISO(start),
		"end":     feed.FormatISO(end),
		"columns": sub.Columns(),
		"rows":    tableRows(sub),
	}

	if meanCols := r.URL.Query().Get("mean"); meanCols != "" {
		means, err := view.RowMean(sub, strings.Split(meanCols, ","))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cells := make([]interface{}, len(means))
		for i, v := range means {
			if !math.IsNaN(v) {
				cells[i] = v // missing aggregates render as null
			}
		}
		payload["mean"] = cells
	}

	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}

	series := r.URL.Query().Get("series")
	if series == "" {
		http.Error(w, "series parameter required", http.StatusBadRequest)
		return
	}

	horizon := s.horizon
	if q := r.URL.Query().Get("horizon"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			http.Error(w, "horizon: want positive integer", http.StatusBadRequest)
			return
		}
		horizon = n
	}

	order := forecast.DefaultOrder
	for _, param := range []struct {
		name string
		dst  *int
	}{{"p", &order.P}, {"d", &order.D}, {"q", &order.Q}} {
		if q := r.URL.Query().Get(param.name); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 0 {
				http.Error(w, param.name+": want non-negative integer", http.StatusBadRequest)
				return
			}
			*param.dst = n
		}
	}

	res, err := s.runPipeline(r)
	if err != nil {
		respondPipelineError(w, err)
		return
	}

	// Comma-separated series names forecast independently: one failing
	// series must not sink the others.
	names := strings.Split(series, ",")
	results := make([]interface{}, 0, len(names))
	for _, name := range names {
		sr, err := res.Series(strings.TrimSpace(name))
		if err != nil {
			results = append(results, map[string]string{"series_name": name, "error": err.Error()})
			continue
		}
		fc, err := s.forecaster.Forecast(r.Context(), sr, order, horizon)
		if err != nil {
			results = append(results, map[string]string{"series_name": name, "error": err.Error()})
			continue
		}
		results = append(results, fc)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fingerprint": res.Fingerprint,
		"forecasts":   results,
	})
}

func (s *Server) handleRestrictions(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	switch r.Method {
	case http.MethodGet:
		records, err := s.records.List(r.Context())
		if err != nil {
			log.Printf("record list error: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, records)

	case http.MethodPost:
		var rec store.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		created, err := s.records.Append(r.Context(), rec)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSON(w, http.StatusCreated, created)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRestrictionByID(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	idText := strings.TrimPrefix(r.URL.Path, "/api/restrictions/")
	id, err := strconv.Atoi(idText)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid record ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := s.records.Get(r.Context(), id)
		if err != nil {
			respondRecordError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, rec)

	case http.MethodPut:
		var rec store.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		rec.ID = id
		if err := s.records.Update(r.Context(), rec); err != nil {
			respondRecordError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, rec)

	case http.MethodDelete:
		if err := s.records.Delete(r.Context(), id); err != nil {
			respondRecordError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return false
	}
	return true
}

func tableRows(f *frame.Frame) []map[string]interface{} {
	rows := make([]map[string]interface{}, f.Len())
	for i := range rows {
		rows[i] = f.Row(i)
	}
	return rows
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("response encode error: %v", err)
	}
}

func respondPipelineError(w http.ResponseWriter, err error) {
	var schema *feed.SchemaMismatchError
	if errors.As(err, &schema) {
		http.Error(w, schema.Error(), http.StatusUnprocessableEntity)
		return
	}
	log.Printf("pipeline error: %v", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func respondRecordError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	log.Printf("record store error: %v", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
