package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/batch"
	"pharmatrace/internal/custody"
	"pharmatrace/internal/metrics"
	"pharmatrace/internal/models"
)

// ErrorResponse is the JSON body returned for any failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// actorPayload is the acting identity carried by mutating requests.
type actorPayload struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
}

func (a actorPayload) toModel() (models.Actor, error) {
	if a.ID == "" {
		return models.Actor{}, &apperr.ValidationError{Field: "actor.id", Reason: "required"}
	}
	role := models.Role(a.Role)
	if !role.Valid() {
		return models.Actor{}, &apperr.ValidationError{Field: "actor.role", Reason: fmt.Sprintf("unknown role %q", a.Role)}
	}
	return models.Actor{
		ID:             a.ID,
		Name:           a.Name,
		Role:           role,
		OrganizationID: a.OrganizationID,
	}, nil
}

// actorFromQuery builds an actor from query parameters on read endpoints.
func actorFromQuery(r *http.Request) (models.Actor, error) {
	q := r.URL.Query()
	return actorPayload{
		ID:             q.Get("actor_id"),
		Name:           q.Get("actor_name"),
		Role:           q.Get("actor_role"),
		OrganizationID: q.Get("organization_id"),
	}.toModel()
}

// createBatchRequest mirrors batch.CreateInput with wire-level date parsing.
type createBatchRequest struct {
	BatchNumber      string `json:"batch_number"`
	Name             string `json:"name"`
	ActiveIngredient string `json:"active_ingredient"`
	Dosage           string `json:"dosage"`
	Form             string `json:"form"`
	ProductionDate   string `json:"production_date"`
	ExpiryDate       string `json:"expiry_date"`

	QualityTest       models.QualityTest       `json:"quality_test"`
	StorageConditions models.StorageConditions `json:"storage_conditions"`

	Actor actorPayload `json:"actor"`
}

func (req *createBatchRequest) toInput() (batch.CreateInput, error) {
	production, err := parseDate("production_date", req.ProductionDate)
	if err != nil {
		return batch.CreateInput{}, err
	}
	expiry, err := parseDate("expiry_date", req.ExpiryDate)
	if err != nil {
		return batch.CreateInput{}, err
	}
	return batch.CreateInput{
		BatchNumber:       req.BatchNumber,
		Name:              req.Name,
		ActiveIngredient:  req.ActiveIngredient,
		Dosage:            req.Dosage,
		Form:              req.Form,
		ProductionDate:    production,
		ExpiryDate:        expiry,
		QualityTest:       req.QualityTest,
		StorageConditions: req.StorageConditions,
	}, nil
}

// parseDate accepts full RFC 3339 timestamps and bare dates.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &apperr.ValidationError{Field: field, Reason: "required"}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, &apperr.ValidationError{Field: field, Reason: "expected RFC 3339 timestamp or YYYY-MM-DD"}
	}
	return t, nil
}

type recallRequest struct {
	Reason        string       `json:"reason"`
	Action        string       `json:"action"`
	AffectedUnits int          `json:"affected_units"`
	Actor         actorPayload `json:"actor"`
}

type statusRequest struct {
	Status   string       `json:"status"`
	Location string       `json:"location"`
	Actor    actorPayload `json:"actor"`
}

type createLedgerRequest struct {
	BatchID     string       `json:"batch_id"`
	BatchNumber string       `json:"batch_number"`
	Actor       actorPayload `json:"actor"`
}

type addStepRequest struct {
	Action             string                `json:"action"`
	Location           models.StepLocation   `json:"location"`
	Conditions         models.StepConditions `json:"conditions"`
	Metadata           map[string]any        `json:"metadata"`
	Verified           bool                  `json:"verified"`
	VerificationMethod string                `json:"verification_method"`
	Actor              actorPayload          `json:"actor"`
}

func (req *addStepRequest) toInput() custody.StepInput {
	return custody.StepInput{
		Action:             models.StepAction(req.Action),
		Location:           req.Location,
		Conditions:         req.Conditions,
		Metadata:           req.Metadata,
		Verified:           req.Verified,
		VerificationMethod: req.VerificationMethod,
	}
}

type addCheckRequest struct {
	Check models.QualityCheck `json:"check"`
	Actor actorPayload        `json:"actor"`
}

type signRequest struct {
	TargetType string       `json:"target_type"`
	TargetID   string       `json:"target_id"`
	Actor      actorPayload `json:"actor"`
}

type registerOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
}

type registerPatientRequest struct {
	LoginName   string `json:"login_name"`
	DisplayName string `json:"display_name"`
}

// decodeJSON decodes a request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &apperr.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// sendJSON writes a JSON response with the given status code.
func (s *Server) sendJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendAppError maps a service error onto the taxonomy status codes and writes
// a JSON error body. Internal errors are logged but not echoed to the client.
func (s *Server) sendAppError(w http.ResponseWriter, err error) {
	code := apperr.HTTPStatus(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		metrics.ErrorsTotal.WithLabelValues("api").Inc()
		slog.Error("Request failed", "error", err)
		message = "internal server error"
	}
	s.sendError(w, message, code)
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
