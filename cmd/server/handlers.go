package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mahino/scalar"
	"github.com/mahino/scalar/internal"
)

// scaleRequest is the body of preview and generate requests. When a
// ruleset_id is given and no inline rules are, the stored rule set is
// used.
type scaleRequest struct {
	Payload   scalar.Document       `json:"payload"`
	Counts    scalar.EntityCountMap `json:"counts"`
	Rules     scalar.RuleSet        `json:"rules"`
	RuleSetID string                `json:"ruleset_id,omitempty"`
}

// handleAnalyze handles POST /api/v1/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, ok := s.readScaleRequest(w, r)
	if !ok {
		return
	}

	entities, err := s.components.Engine.Analyze(r.Context(), req.Payload)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"scalable_entities": entities})
}

// handlePreview handles POST /api/v1/preview
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, ok := s.readScaleRequest(w, r)
	if !ok {
		return
	}
	rules, err := s.resolveRules(r, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	result, err := s.components.Engine.Preview(r.Context(), req.Payload, req.Counts, rules)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleGenerate handles POST /api/v1/generate
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, ok := s.readScaleRequest(w, r)
	if !ok {
		return
	}
	rules, err := s.resolveRules(r, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// With a rule set id the response is recorded against that id, so
	// the pipeline's anonymous recording is bypassed.
	var result *scalar.PipelineResult
	if req.RuleSetID != "" {
		result, err = s.components.Engine.Preview(r.Context(), req.Payload, req.Counts, rules)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		record := &scalar.GenerationRecord{
			ID:        uuid.New().String(),
			RuleSetID: req.RuleSetID,
			Document:  result.Document,
			Warnings:  result.Warnings,
			CreatedAt: time.Now().Unix(),
		}
		if err := s.components.History.Record(r.Context(), record); err != nil {
			writeEngineError(w, err)
			return
		}
	} else {
		result, err = s.components.Engine.Generate(r.Context(), req.Payload, req.Counts, rules)
		if err != nil {
			writeEngineError(w, err)
			return
		}
	}

	// Export is best effort; a failed upload never fails the request.
	if s.exporter != nil {
		name := req.RuleSetID
		if name == "" {
			name = "adhoc"
		}
		if key, err := s.exporter.Export(r.Context(), name, result); err != nil {
			zap.S().Errorw("failed to export generated payload", "error", err)
		} else {
			zap.S().Infow("exported generated payload", "key", key)
		}
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleRuleSets dispatches rule set CRUD and the history/responses
// subresources
func (s *Server) handleRuleSets(w http.ResponseWriter, r *http.Request) {
	id, sub, err := parseRuleSetPath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}

	switch {
	case id == "":
		switch r.Method {
		case http.MethodGet:
			s.listRuleSets(w, r)
		case http.MethodPost:
			s.saveRuleSet(w, r, "")
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case sub == "history":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.ruleSetHistory(w, r, id)
	case sub == "responses":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.ruleSetResponses(w, r, id)
	default:
		switch r.Method {
		case http.MethodGet:
			s.getRuleSet(w, r, id)
		case http.MethodPut:
			s.saveRuleSet(w, r, id)
		case http.MethodDelete:
			s.deleteRuleSet(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) listRuleSets(w http.ResponseWriter, r *http.Request) {
	ids, err := s.components.Rules.List(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"ids": ids})
}

func (s *Server) getRuleSet(w http.ResponseWriter, r *http.Request, id string) {
	doc, err := s.components.Rules.Load(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, doc)
}

func (s *Server) saveRuleSet(w http.ResponseWriter, r *http.Request, id string) {
	var doc scalar.RuleSetDocument
	if err := readJSONBody(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	if id != "" {
		doc.ID = id
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if err := s.components.Rules.Save(r.Context(), &doc); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"id": doc.ID})
}

func (s *Server) deleteRuleSet(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.components.Rules.Delete(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"id": id})
}

func (s *Server) ruleSetHistory(w http.ResponseWriter, r *http.Request, id string) {
	docs, err := s.components.Rules.RuleHistory(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"revisions": docs})
}

func (s *Server) ruleSetResponses(w http.ResponseWriter, r *http.Request, id string) {
	records, err := s.components.History.Responses(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"responses": records})
}

// handleSeed handles POST /api/v1/seed: live reference UUIDs are
// fetched from the control plane and written into the payload template.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.seeder == nil {
		writeError(w, http.StatusServiceUnavailable, "no reference provider configured")
		return
	}

	req, ok := s.readScaleRequest(w, r)
	if !ok {
		return
	}
	if err := s.seeder.Seed(r.Context(), req.Payload); err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"payload": req.Payload})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.providerCfg.Endpoint != "" {
		if err := internal.ProviderHealthCheck(r.Context(), s.providerCfg, 3*time.Second); err != nil {
			status["provider"] = err.Error()
		} else {
			status["provider"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// readScaleRequest reads, schema validates, and decodes the body of an
// analyze/preview/generate request.
func (s *Server) readScaleRequest(w http.ResponseWriter, r *http.Request) (*scaleRequest, bool) {
	raw, err := readRawBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return nil, false
	}
	if err := scalar.ValidateScaleRequest(raw); err != nil {
		writeEngineError(w, err)
		return nil, false
	}
	var req scaleRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return nil, false
	}
	return &req, true
}

// resolveRules returns the request's inline rules, falling back to the
// stored rule set when only an id was sent.
func (s *Server) resolveRules(r *http.Request, req *scaleRequest) (scalar.RuleSet, error) {
	if req.RuleSetID == "" || req.Rules.Len() > 0 {
		return req.Rules, nil
	}
	doc, err := s.components.Rules.Load(r.Context(), req.RuleSetID)
	if err != nil {
		return scalar.RuleSet{}, err
	}
	return doc.Rules, nil
}
