package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/classifier/classification"
)

// Classification handler
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Record) == 0 {
		respondError(w, http.StatusBadRequest, "record is required", nil)
		return
	}

	result, cached, err := s.engine.GetOrCompute(req.Record)
	if err != nil {
		respondClassifyError(w, err)
		return
	}
	if !req.IncludeLog && !verbose(r) {
		result = result.WithoutLog()
	}

	respondJSON(w, http.StatusOK, ClassifyResponse{Result: result, Cached: cached})
}

// Dry-run handler: evaluates with the log, stores and counts nothing
func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Record) == 0 {
		respondError(w, http.StatusBadRequest, "record is required", nil)
		return
	}

	result, err := s.engine.DryRun(req.Record)
	if err != nil {
		respondClassifyError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Stored result handler
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")

	result, err := s.engine.Retrieve(hash)
	if errors.Is(err, classification.ErrNotFound) {
		respondError(w, http.StatusNotFound, "result not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load result", err)
		return
	}
	if !verbose(r) {
		result = result.WithoutLog()
	}

	respondJSON(w, http.StatusOK, result)
}

// Statistics handler
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Statistics())
}

func respondClassifyError(w http.ResponseWriter, err error) {
	if errors.Is(err, classification.ErrInvalidRecord) {
		respondError(w, http.StatusBadRequest, "invalid record", err)
		return
	}
	respondError(w, http.StatusInternalServerError, "classification failed", err)
}

// decodeJSON reads a bounded JSON body. Numbers are kept as json.Number so
// record values hash the same however the client formatted them.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}

func verbose(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("verbose"))
	return v
}
