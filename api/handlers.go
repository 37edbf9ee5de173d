/*
handlers.go - HTTP API handlers for the enrollment engine

PURPOSE:
  Exposes the enrollment ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the enrollment package. Workflow
  endpoints drive the same Registration and Edit state machines the
  operator console uses, one request per whole session.

ENDPOINTS:
  Catalog:
    GET    /api/catalog                  Offerings, base price, discount table
    GET    /api/courses                  Offerings with occupancy

  Students:
    GET    /api/students/enrollments     Active enrollments (?name=&surname=&father_name=)

  Receipts:
    GET    /api/receipts/{id}            Is the receipt paying for an active enrollment?

  Workflows:
    POST   /api/registrations            Register a cart (dry_run prices only)
    POST   /api/edits                    Cancel and add courses (dry_run prices only)

  Reports:
    GET    /api/reports/occupancy        Occupancy by course and group
    GET    /api/reports/students         Active students with contact details

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (identity, unknown course, empty selection, missing receipt)
  - 404: Student has no active enrollments
  - 409: Rule rejections (capacity, conflicts, duplicate receipt, state)
  - 503: Ledger storage unavailable
  - 500: Anything else

CONCURRENCY:
  Workflow handlers hold a mutex for the whole check-then-commit sequence,
  so two requests cannot both pass a capacity or receipt check before
  either commits.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/catalog"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/identity"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *enrollment.Ledger
	Catalog   enrollment.Catalog
	Validator *identity.Validator
	Logger    *zap.Logger

	mu sync.Mutex
}

// NewHandler creates a new handler.
func NewHandler(ledger *enrollment.Ledger, cat enrollment.Catalog, v *identity.Validator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Ledger: ledger, Catalog: cat, Validator: v, Logger: logger}
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// GetCatalog returns the catalog in its JSON form.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.NewFactory().ToJSON(h.Catalog))
}

// ListCourses returns every offering with its current occupancy.
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	avail, err := enrollment.ListAvailability(r.Context(), h.Ledger.State(), h.Catalog)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]AvailabilityDTO, len(avail))
	for i, a := range avail {
		dtos[i] = AvailabilityDTO{
			OfferingDTO: toOfferingDTO(a.Offering),
			Occupied:    a.Occupied,
			Available:   a.Available,
			Full:        a.Full(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// GetEnrollments returns a student's active enrollments and the price one
// more subject would cost.
func (h *Handler) GetEnrollments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, err := h.Validator.Key(identity.KeyInput{
		Name:       q.Get("name"),
		Surname:    q.Get("surname"),
		FatherName: q.Get("father_name"),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	active, err := h.Ledger.CurrentActiveEnrollments(r.Context(), key)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	contact, _, err := h.Ledger.LatestContact(r.Context(), key)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EnrollmentsDTO{
		Student:     toStudentDTO(key, contact),
		Active:      toEventDTOs(active),
		NextSubject: toInvoiceDTO(h.Catalog.Prices().QuoteFor(len(active), 1)),
	})
}

// =============================================================================
// RECEIPT HANDLERS
// =============================================================================

// GetReceipt reports whether a receipt is currently in use.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	active, err := h.Ledger.IsReceiptActive(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptDTO{ReceiptID: id, Active: active})
}

// =============================================================================
// WORKFLOW HANDLERS
// =============================================================================

// Register runs a whole registration session.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	student, err := h.Validator.Student(req.Student)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	reg := enrollment.NewRegistration(h.Ledger, h.Catalog)
	for _, id := range req.CourseIDs {
		if _, err := reg.Select(ctx, id); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}
	if err := reg.Finish(); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := reg.Identify(ctx, student.Key); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := reg.SetContact(student.Contact); err != nil {
		h.writeDomainError(w, err)
		return
	}
	inv, err := reg.Invoice()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	invoice := toInvoiceDTO(inv)

	if req.DryRun {
		reg.Abort()
		writeJSON(w, http.StatusOK, CommitDTO{Outcome: "quoted", Invoice: &invoice, Events: []EventDTO{}})
		return
	}

	committed, err := reg.Pay(ctx, req.ReceiptID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CommitDTO{Outcome: "committed", Invoice: &invoice, Events: toEventDTOs(committed)})
}

// EditEnrollments runs a whole edit session.
func (h *Handler) EditEnrollments(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	student, err := h.Validator.Student(req.Student)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	edit, err := enrollment.OpenEdit(ctx, h.Ledger, h.Catalog, student.Key)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	for _, id := range dedupe(req.CancelIDs) {
		if !activeIn(edit.Active(), id) {
			h.writeDomainError(w, enrollment.ErrNotSelected)
			return
		}
		if _, err := edit.Toggle(id); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}
	for _, id := range req.AddIDs {
		if _, err := edit.Add(ctx, id); err != nil {
			h.writeDomainError(w, err)
			return
		}
	}

	changed, err := edit.Finish(ctx)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !changed {
		writeJSON(w, http.StatusOK, CommitDTO{Outcome: "unchanged", Events: []EventDTO{}})
		return
	}
	if err := edit.SetContact(student.Contact); err != nil {
		h.writeDomainError(w, err)
		return
	}
	inv, err := edit.Invoice()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	invoice := toInvoiceDTO(inv)

	if req.DryRun {
		edit.Abort()
		writeJSON(w, http.StatusOK, CommitDTO{Outcome: "quoted", Invoice: &invoice, Events: []EventDTO{}})
		return
	}

	committed, err := edit.Commit(ctx, req.ReceiptID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CommitDTO{Outcome: "committed", Invoice: &invoice, Events: toEventDTOs(committed)})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// OccupancyReport returns active students per offering and group.
func (h *Handler) OccupancyReport(w http.ResponseWriter, r *http.Request) {
	report, err := enrollment.BuildOccupancyReport(r.Context(), h.Ledger.State(), h.Catalog)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]OccupancyDTO, len(report))
	for i, c := range report {
		groups := make([]GroupDTO, len(c.Groups))
		for j, g := range c.Groups {
			students := make([]StudentDTO, len(g.Students))
			for k, s := range g.Students {
				students[k] = toStudentDTO(s.Student, s.Contact)
			}
			groups[j] = GroupDTO{TimeKeys: g.TimeKeys, Students: students}
		}
		dtos[i] = OccupancyDTO{
			Offering:  toOfferingDTO(c.Offering),
			Occupied:  c.Occupied,
			Available: c.Available,
			Groups:    groups,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// StudentsReport returns every student with an active enrollment.
func (h *Handler) StudentsReport(w http.ResponseWriter, r *http.Request) {
	report, err := enrollment.BuildStudentsReport(r.Context(), h.Ledger.State())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]StudentReportDTO, len(report))
	for i, s := range report {
		dtos[i] = StudentReportDTO{
			Student: toStudentDTO(s.Student, s.Contact),
			Courses: toEventDTOs(s.Courses),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = []string{err.Error()}
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps an enrollment or identity error to a status code.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.Error(err))
	}

	resp := ErrorResponse{Error: err.Error(), Code: enrollment.RejectionReason(err)}
	var resolveErr *enrollment.ResolveError
	if errors.As(err, &resolveErr) {
		resp.Code = "resolve_failed"
		for _, p := range resolveErr.Problems {
			resp.Details = append(resp.Details, p.Error())
		}
	}
	if errors.Is(err, identity.ErrInvalidInput) {
		resp.Code = "invalid_input"
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case enrollment.IsStorageFailure(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, enrollment.ErrUnknownCourse),
		errors.Is(err, enrollment.ErrEmptySelection),
		errors.Is(err, enrollment.ErrReceiptRequired),
		errors.Is(err, enrollment.ErrContactRequired),
		errors.Is(err, enrollment.ErrNotSelected):
		return http.StatusBadRequest
	case errors.Is(err, enrollment.ErrNoActiveEnrollments):
		return http.StatusNotFound
	case enrollment.IsRejection(err), errors.Is(err, enrollment.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func activeIn(active []enrollment.Event, courseID string) bool {
	for _, ev := range active {
		if ev.CourseID == courseID {
			return true
		}
	}
	return false
}
