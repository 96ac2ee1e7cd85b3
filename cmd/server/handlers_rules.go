package main

import (
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/classifier/rules"
)

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.registry.List()
	if err != nil {
		respondRuleError(w, "failed to list rules", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}

	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := decodeJSON(w, r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	// Add rule (this validates it and publishes a new snapshot)
	if err := s.registry.AddRule(&rule); err != nil {
		respondRuleError(w, "failed to add rule", err)
		return
	}

	s.respondStoredRule(w, http.StatusCreated, rule.ID)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	s.respondStoredRule(w, http.StatusOK, chi.URLParam(r, "ruleId"))
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	var rule rules.Rule
	if err := decodeJSON(w, r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if rule.ID != "" && rule.ID != ruleID {
		respondError(w, http.StatusBadRequest, "rule id in body does not match path", nil)
		return
	}
	rule.ID = ruleID

	if err := s.registry.UpdateRule(&rule); err != nil {
		respondRuleError(w, "failed to update rule", err)
		return
	}

	s.respondStoredRule(w, http.StatusOK, ruleID)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondRuleError(w, "failed to delete rule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Import handler: accepts a YAML or JSON rule list
func (s *Server) handleImportRules(w http.ResponseWriter, r *http.Request) {
	format, err := requestFormat(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported format", err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	list, err := rules.DecodeRules(data, format)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule list", err)
		return
	}

	report, err := s.registry.Import(list)
	if err != nil {
		respondRuleError(w, "import failed", err)
		return
	}

	respondJSON(w, http.StatusOK, ImportResponse{ImportReport: report, Total: len(list)})
}

// Export handler
func (s *Server) handleExportRules(w http.ResponseWriter, r *http.Request) {
	format, err := rules.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported format", err)
		return
	}

	list, err := s.registry.Export()
	if err != nil {
		respondRuleError(w, "failed to export rules", err)
		return
	}
	data, err := rules.EncodeRules(list, format)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rules", err)
		return
	}

	contentType := "application/yaml"
	if format == rules.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="rules.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) respondStoredRule(w http.ResponseWriter, status int, id string) {
	rule, err := s.registry.Get(id)
	if err != nil {
		respondRuleError(w, "failed to load rule", err)
		return
	}
	respondJSON(w, status, rule)
}

// requestFormat picks the import format from ?format= or the Content-Type.
func requestFormat(r *http.Request) (rules.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return rules.ParseFormat(f)
	}
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		return rules.FormatJSON, nil
	}
	return rules.FormatYAML, nil
}

func respondRuleError(w http.ResponseWriter, message string, err error) {
	respondError(w, ruleErrorStatus(err), message, err)
}

func ruleErrorStatus(err error) int {
	switch {
	case errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, rules.ErrDuplicateRule), errors.Is(err, rules.ErrReadOnlyStore):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
