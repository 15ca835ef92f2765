package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/ayemaqu/pedrisk/internal/decision"
	"github.com/ayemaqu/pedrisk/internal/redact"
	"github.com/ayemaqu/pedrisk/internal/schema"
	"github.com/ayemaqu/pedrisk/internal/variant"
)

// requestIDRe bounds caller-supplied X-Request-Id values before they are
// echoed into events and logs.
var requestIDRe = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,64}$`)

type predictRequest struct {
	Features schema.Record `json:"features"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
}

// featureInfo is what a form needs to render one input.
type featureInfo struct {
	Name    string      `json:"name"`
	Kind    schema.Kind `json:"kind"`
	Levels  []string    `json:"levels,omitempty"`
	Other   string      `json:"other,omitempty"`
	Min     *float64    `json:"min,omitempty"`
	Max     *float64    `json:"max,omitempty"`
	Default *float64    `json:"default,omitempty"`
}

type variantInfo struct {
	Name         string          `json:"name"`
	Title        string          `json:"title"`
	Version      string          `json:"version,omitempty"`
	Features     []featureInfo   `json:"features"`
	Classes      []string        `json:"classes"`
	TestAccuracy *float64        `json:"test_accuracy,omitempty"`
	Rule         decision.Config `json:"rule"`
}

func describe(v *variant.Variant) variantInfo {
	info := variantInfo{
		Name:         v.Name,
		Title:        v.Title,
		Version:      v.Version,
		Classes:      v.Service.Classes(),
		TestAccuracy: v.Bundle.Metadata.TestAccuracy,
		Rule:         v.Config.Rule,
	}
	for _, f := range v.Service.Schema().Features {
		fi := featureInfo{
			Name:   f.Name,
			Kind:   f.Kind,
			Levels: f.Levels,
			Other:  f.Other,
			Min:    f.Min,
			Max:    f.Max,
		}
		// Metadata ranges are the slider bounds a model was trained over and
		// take precedence over the schema's hard limits.
		if r, ok := v.Bundle.Metadata.Features[f.Name]; ok {
			lo, hi, def := r.Min, r.Max, r.Default
			fi.Min, fi.Max, fi.Default = &lo, &hi, &def
		}
		info.Features = append(info.Features, fi)
	}
	return info
}

func (s *Server) handleListVariants(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	out := make([]variantInfo, 0, len(list))
	for _, v := range list {
		out = append(out, describe(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"variants": out})
}

func (s *Server) handleGetVariant(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.Get(r.PathValue("name"))
	if err != nil {
		writePredictError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(v))
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.registry.Get(name); err != nil {
		writePredictError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req predictRequest
	if err := dec.Decode(&req); err != nil {
		if isRequestTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "invalid_request", "")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request", "")
		return
	}
	if req.Features == nil {
		writeError(w, http.StatusBadRequest, "features must be an object", "invalid_request", "features")
		return
	}

	requestID := r.Header.Get("X-Request-Id")
	if !requestIDRe.MatchString(requestID) {
		requestID = ""
	}

	res, err := s.registry.PredictWithID(r.Context(), name, requestID, req.Features)
	if err != nil {
		writePredictError(w, err)
		return
	}
	w.Header().Set("X-Request-Id", res.RequestID)
	writeJSON(w, http.StatusOK, res)
}

// writePredictError maps registry errors onto HTTP status codes. Per-request
// failures never touch the loaded artifacts.
func writePredictError(w http.ResponseWriter, err error) {
	var field string
	var fe *schema.FieldError
	if errors.As(err, &fe) {
		field = fe.Field
	}

	switch {
	case errors.Is(err, variant.ErrUnknownVariant):
		writeError(w, http.StatusNotFound, err.Error(), "unknown_variant", "")
	case errors.Is(err, schema.ErrUnknownCategory):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), variant.KindUnknownCategory, field)
	case errors.Is(err, schema.ErrSchemaViolation):
		writeError(w, http.StatusBadRequest, err.Error(), variant.KindSchemaViolation, field)
	default:
		redact.Logf("predict failed: %v", err)
		writeError(w, http.StatusInternalServerError, "prediction failed", variant.KindInternal, "")
	}
}

func writeError(w http.ResponseWriter, status int, message, typ, field string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: typ, Field: field}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		redact.Logf("failed to write response: %v", err)
	}
}

func isRequestTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
