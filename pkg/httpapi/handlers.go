package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
	"github.com/brightlane/crm-intake/pkg/intake"
	"github.com/brightlane/crm-intake/pkg/logging"
	"github.com/brightlane/crm-intake/pkg/webhook"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	maxRequestBody   = 10 << 20
)

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.processor.Process(r.Context(), req.rawEmail())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDetail(record))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.repo.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetail(record))
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.repo.ListByStatus(r.Context(), intake.StatusPendingReview, skip, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]intakeDetail, 0, len(page.Records))
	for _, record := range page.Records {
		items = append(items, toDetail(record))
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Items: items,
		Total: page.Total,
		Skip:  skip,
		Limit: limit,
	})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.decider.Submit(r.Context(), intake.DecisionRequest{
		IntakeID:            r.PathValue("id"),
		ApprovedTaskIndices: req.ApprovedTaskIndices,
		ApprovedDealIndices: req.ApprovedDealIndices,
		DecidedBy:           req.DecidedBy,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetail(record))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := webhook.Provider(r.PathValue("provider"))

	raw, err := webhook.Parse(provider, r)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.processor.Process(r.Context(), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, webhookAck{ID: record.ID, Status: record.Status})
}

// writeError maps domain errors to their HTTP representations.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if pde, ok := cierrors.IsPartialDispatch(err); ok {
		writeJSON(w, http.StatusMultiStatus, partialDispatchResponse{
			Error:                pde.Error(),
			SucceededTaskIndices: emptyIfNil(pde.SucceededTaskIndices),
			SucceededDealIndices: emptyIfNil(pde.SucceededDealIndices),
			FailedKind:           pde.FailedKind,
			FailedIndex:          pde.FailedIndex,
		})
		return
	}

	var status int
	switch {
	case cierrors.IsNotFound(err):
		status = http.StatusNotFound
	case cierrors.IsInvalidState(err):
		status = http.StatusConflict
	case cierrors.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case cierrors.IsNormalization(err):
		status = http.StatusBadRequest
	case cierrors.IsAIAnalysis(err):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		s.logger.WithContext(r.Context()).Error("unhandled error", logging.Err(err))
	}
	writeErrorMessage(w, status, err.Error())
}

func decodeBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// pagination reads skip and limit query parameters, applying the defaults
// and the limit cap.
func pagination(r *http.Request) (skip, limit int, err error) {
	skip, err = queryInt(r, "skip", 0)
	if err != nil || skip < 0 {
		return 0, 0, fmt.Errorf("skip must be a non-negative integer")
	}
	limit, err = queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit < 1 || limit > maxPageLimit {
		return 0, 0, fmt.Errorf("limit must be between 1 and %d", maxPageLimit)
	}
	return skip, limit, nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func emptyIfNil(indices []int) []int {
	if indices == nil {
		return []int{}
	}
	return indices
}
