/*
handlers.go - HTTP API handlers for the kindergarten attendance service

PURPOSE:
  Exposes the attendance accrual engine and the child/caretaker directory
  via REST API. Handles HTTP request/response and JSON serialization, and
  delegates everything else to attendance.Service.

ENDPOINTS:
  Attendance:
    POST   /api/attendance                         Create record
    GET    /api/attendance                         List (childId, from, to)
    GET    /api/attendance/{id}                    Get one record
    PUT    /api/attendance/{id}                    Set departure / allotment

  Children:
    GET    /api/children                           List children
    POST   /api/children                           Register child
    GET    /api/children/{id}                      Get child
    GET    /api/children/{id}/attendance/summary   Week or month summary

  Caretakers:
    GET    /api/caretakers                         List caretakers
    POST   /api/caretakers                         Register caretaker
    GET    /api/caretakers/{id}                    Get caretaker

  Auth:
    POST   /api/auth/logout                        Revoke the caller's token

REQUEST FLOW:
  1. Parse HTTP request into a request DTO
  2. Convert to attendance input (time parsing only)
  3. Call the service, which validates and computes derived hours
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as ErrorResponse JSON:
  - 400: Validation errors, malformed JSON or timestamps
  - 401: Missing, invalid or revoked token
  - 403: Role not allowed on route
  - 404: Child, caretaker or record not found
  - 500: Storage failures

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Token verification
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/logger"
)

// Error codes carried in ErrorResponse.Code.
const (
	codeBadRequest   = "bad_request"
	codeValidation   = "validation_error"
	codeNotFound     = "not_found"
	codeStorage      = "storage_error"
	codeUnauthorized = "unauthorized"
	codeForbidden    = "forbidden"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Attendance *attendance.Service
	Directory  attendance.DirectoryStore
	Auth       *Authenticator
	Log        logger.Logger

	// Location is the zone bare dates (YYYY-MM-DD) are read in.
	Location *time.Location

	now func() time.Time
}

// NewHandler creates a handler around svc. The service's location is used
// for parsing dates so the HTTP layer and the engine agree on days.
func NewHandler(svc *attendance.Service, dir attendance.DirectoryStore, auth *Authenticator, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		Attendance: svc,
		Directory:  dir,
		Auth:       auth,
		Log:        log,
		Location:   svc.Location,
		now:        time.Now,
	}
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// CreateAttendance records a child's arrival, and optionally departure.
func (h *Handler) CreateAttendance(w http.ResponseWriter, r *http.Request) {
	var req CreateAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body", err)
		return
	}

	in, err := h.createInput(req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	rec, err := h.Attendance.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	view, err := h.Attendance.GetView(r.Context(), rec.ID)
	if err != nil {
		// The record is saved; fall back to the bare record.
		writeJSON(w, http.StatusCreated, toAttendanceDTO(rec))
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceViewDTO(view))
}

// UpdateAttendance sets the departure time and/or the allotment.
func (h *Handler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	id := attendance.RecordID(chi.URLParam(r, "id"))

	var req UpdateAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body", err)
		return
	}

	patch := attendance.UpdatePatch{Allotment: req.MonthHours}
	if req.DepartureTime != nil && *req.DepartureTime != "" {
		dep, err := parseTimestamp("departureTime", *req.DepartureTime)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		patch.DepartureTime = &dep
	}

	rec, err := h.Attendance.Update(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	view, err := h.Attendance.GetView(r.Context(), rec.ID)
	if err != nil {
		writeJSON(w, http.StatusOK, toAttendanceDTO(rec))
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceViewDTO(view))
}

// ListAttendance returns records with child and caretaker populated.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := attendance.Filter{ChildID: attendance.ChildID(q.Get("childId"))}

	if s := q.Get("from"); s != "" {
		from, err := h.parseDate("from", s)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		filter.From = &from
	}
	if s := q.Get("to"); s != "" {
		to, err := h.parseDate("to", s)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		filter.To = &to
	}

	views, err := h.Attendance.ListViews(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	dtos := make([]AttendanceDTO, len(views))
	for i, v := range views {
		dtos[i] = toAttendanceViewDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAttendance returns a single record. Stored derived hours are returned
// as-is.
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	id := attendance.RecordID(chi.URLParam(r, "id"))

	view, err := h.Attendance.GetView(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceViewDTO(view))
}

// AttendanceSummary returns the week (default) or month summary for a child.
// Query: date=YYYY-MM-DD (default today), period=week|month.
func (h *Handler) AttendanceSummary(w http.ResponseWriter, r *http.Request) {
	childID := attendance.ChildID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	pt, err := generic.ParsePeriodType(q.Get("period"))
	if err != nil {
		h.writeServiceError(w, generic.NewValidationError(attendance.MsgInvalidInput,
			generic.FieldError{Field: "period", Error: err.Error()}))
		return
	}

	date := h.now().In(h.Location)
	if s := q.Get("date"); s != "" {
		if date, err = h.parseDate("date", s); err != nil {
			h.writeServiceError(w, err)
			return
		}
	}

	sum, err := h.Attendance.Summary(r.Context(), childID, date, pt)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// ListChildren returns all children.
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.Directory.ListChildren(r.Context())
	if err != nil {
		h.Log.Error("list children failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Failed to list children", err)
		return
	}

	dtos := make([]ChildDTO, len(children))
	for i, c := range children {
		dtos[i] = toChildDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChild returns a single child.
func (h *Handler) GetChild(w http.ResponseWriter, r *http.Request) {
	id := attendance.ChildID(chi.URLParam(r, "id"))

	child, err := h.Directory.GetChild(r.Context(), id)
	if err != nil {
		h.Log.Error("get child failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Failed to get child", err)
		return
	}
	if child == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "child not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toChildDTO(*child))
}

// CreateChild registers a child.
func (h *Handler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req CreateChildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body", err)
		return
	}

	var missing []generic.FieldError
	if req.FirstName == "" {
		missing = append(missing, generic.FieldError{Field: "firstName", Error: "firstName is a required field"})
	}
	if req.LastName == "" {
		missing = append(missing, generic.FieldError{Field: "lastName", Error: "lastName is a required field"})
	}
	if len(missing) > 0 {
		h.writeServiceError(w, generic.NewValidationError(attendance.MsgMissingFields, missing...))
		return
	}

	child, err := h.Directory.SaveChild(r.Context(), attendance.Child{
		ID:        attendance.ChildID(req.ID),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		GroupID:   req.GroupID,
		ParentID:  req.ParentID,
	})
	if err != nil {
		h.Log.Error("save child failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Failed to create child", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChildDTO(child))
}

// ListCaretakers returns all caretakers.
func (h *Handler) ListCaretakers(w http.ResponseWriter, r *http.Request) {
	caretakers, err := h.Directory.ListCaretakers(r.Context())
	if err != nil {
		h.Log.Error("list caretakers failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Failed to list caretakers", err)
		return
	}

	dtos := make([]CaretakerDTO, len(caretakers))
	for i, c := range caretakers {
		dtos[i] = toCaretakerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCaretaker returns a single caretaker.
func (h *Handler) GetCaretaker(w http.ResponseWriter, r *http.Request) {
	id := attendance.CaretakerID(chi.URLParam(r, "id"))

	c, err := h.Directory.GetCaretaker(r.Context(), id)
	if err != nil {
		h.Log.Error("get caretaker failed", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Failed to get caretaker", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "caretaker not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toCaretakerDTO(*c))
}

// CreateCaretaker registers a caretaker. Role defaults to caretaker.
func (h *Handler) CreateCaretaker(w http.ResponseWriter, r *http.Request) {
	var req CreateCaretakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body", err)
		return
	}

	if req.Username == "" {
		h.writeServiceError(w, generic.NewValidationError(attendance.MsgMissingFields,
			generic.FieldError{Field: "username", Error: "username is a required field"}))
		return
	}
	role := attendance.Role(req.Role)
	if role == "" {
		role = attendance.RoleCaretaker
	}
	if !role.Valid() {
		h.writeServiceError(w, generic.NewValidationError(attendance.MsgInvalidInput,
			generic.FieldError{Field: "role", Error: "role must be one of manager, caretaker, parent, guest"}))
		return
	}

	c, err := h.Directory.SaveCaretaker(r.Context(), attendance.Caretaker{
		ID:        attendance.CaretakerID(req.ID),
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
	})
	if err != nil {
		h.Log.Error("save caretaker failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Failed to create caretaker", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCaretakerDTO(c))
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Logout revokes the caller's token until it expires.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok || p.Token == "" || h.Auth == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	until := p.Expires
	if until.IsZero() {
		until = h.now().Add(24 * time.Hour)
	}
	if err := h.Auth.Tokens.Revoke(r.Context(), p.Token, until); err != nil {
		h.Log.Error("revoke token failed", "user", p.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Failed to log out", err)
		return
	}
	h.Log.Info("logged out", "user", p.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) createInput(req CreateAttendanceRequest) (attendance.CreateInput, error) {
	in := attendance.CreateInput{
		ChildID:     attendance.ChildID(req.ChildID),
		CaretakerID: attendance.CaretakerID(req.CaretakerID),
		Allotment:   req.MonthHours,
	}

	// Empty strings stay zero so the validator reports them as missing.
	var err error
	if req.Date != "" {
		if in.Date, err = h.parseDate("date", req.Date); err != nil {
			return in, err
		}
	}
	if req.ArrivalTime != "" {
		if in.ArrivalTime, err = parseTimestamp("arrivalTime", req.ArrivalTime); err != nil {
			return in, err
		}
	}
	if req.DepartureTime != nil && *req.DepartureTime != "" {
		dep, err := parseTimestamp("departureTime", *req.DepartureTime)
		if err != nil {
			return in, err
		}
		in.DepartureTime = &dep
	}
	return in, nil
}

func (h *Handler) parseDate(field, s string) (time.Time, error) {
	t, err := generic.ParseDate(s, h.Location)
	if err != nil {
		return time.Time{}, generic.NewValidationError(attendance.MsgInvalidInput,
			generic.FieldError{Field: field, Error: "must be a date (YYYY-MM-DD)"})
	}
	return t, nil
}

func parseTimestamp(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, generic.NewValidationError(attendance.MsgInvalidInput,
			generic.FieldError{Field: field, Error: "must be an RFC3339 timestamp"})
	}
	return t, nil
}

// writeServiceError maps the error taxonomy onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *generic.ValidationError
	var nf *generic.NotFoundError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Message, Code: codeValidation, Details: verr.Fields})
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, codeNotFound, nf.Error(), nil)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, codeNotFound, "not found", nil)
	default:
		h.Log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeStorage, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
