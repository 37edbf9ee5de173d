/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the enrollment model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Catalog:       OfferingDTO, AvailabilityDTO
  Students:      StudentDTO, EventDTO, EnrollmentsDTO
  Pricing:       InvoiceDTO
  Workflows:     RegistrationRequest, EditRequest, CommitDTO
  Receipts:      ReceiptDTO
  Reports:       OccupancyDTO, GroupDTO, StudentReportDTO
  Errors:        ErrorResponse

VALIDATION:
  Identity fields are validated by the identity package, not by tags here.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/identity"
)

// =============================================================================
// CATALOG
// =============================================================================

// OfferingDTO represents a catalog offering.
type OfferingDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Subject     string   `json:"subject"`
	TimeKeys    []string `json:"time_keys"`
	TimeDisplay string   `json:"time_display,omitempty"`
	Capacity    int      `json:"capacity"`
}

// AvailabilityDTO is an offering with its current occupancy.
type AvailabilityDTO struct {
	OfferingDTO
	Occupied  int  `json:"occupied"`
	Available int  `json:"available"`
	Full      bool `json:"full"`
}

func toOfferingDTO(o enrollment.Offering) OfferingDTO {
	keys := o.TimeKeys
	if keys == nil {
		keys = enrollment.TimeKeys{}
	}
	return OfferingDTO{
		ID:          o.ID,
		Name:        o.Name,
		Subject:     o.Subject(),
		TimeKeys:    keys,
		TimeDisplay: o.TimeDisplay,
		Capacity:    o.Capacity,
	}
}

// =============================================================================
// STUDENTS AND EVENTS
// =============================================================================

// StudentDTO identifies a student.
type StudentDTO struct {
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	FatherName string `json:"father_name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// EventDTO represents a ledger event.
type EventDTO struct {
	ID         string   `json:"id"`
	CommitID   string   `json:"commit_id"`
	CourseID   string   `json:"course_id"`
	CourseName string   `json:"course_name"`
	TimeKeys   []string `json:"time_keys"`
	Status     string   `json:"status"`
	ReceiptID  string   `json:"receipt_id"`
	Timestamp  string   `json:"timestamp"`
}

func toEventDTO(ev enrollment.Event) EventDTO {
	keys := ev.TimeKeys
	if keys == nil {
		keys = enrollment.TimeKeys{}
	}
	return EventDTO{
		ID:         ev.ID,
		CommitID:   ev.CommitID,
		CourseID:   ev.CourseID,
		CourseName: ev.CourseName,
		TimeKeys:   keys,
		Status:     string(ev.Status),
		ReceiptID:  ev.ReceiptID,
		Timestamp:  ev.Timestamp.Format(time.RFC3339),
	}
}

func toEventDTOs(evs []enrollment.Event) []EventDTO {
	out := make([]EventDTO, len(evs))
	for i, ev := range evs {
		out[i] = toEventDTO(ev)
	}
	return out
}

// EnrollmentsDTO is a student's active enrollments and the price of one more subject.
type EnrollmentsDTO struct {
	Student     StudentDTO `json:"student"`
	Active      []EventDTO `json:"active"`
	NextSubject InvoiceDTO `json:"next_subject"`
}

// =============================================================================
// PRICING
// =============================================================================

// InvoiceDTO is the price of the subjects being added.
type InvoiceDTO struct {
	Prior           int             `json:"prior_subjects"`
	Added           int             `json:"added_subjects"`
	SubjectCount    int             `json:"subject_count"`
	Base            decimal.Decimal `json:"base_price"`
	DiscountPercent int             `json:"discount_percent"`
	PerSubject      decimal.Decimal `json:"per_subject"`
	Total           decimal.Decimal `json:"total"`
}

func toInvoiceDTO(inv enrollment.Invoice) InvoiceDTO {
	return InvoiceDTO{
		Prior:           inv.Prior,
		Added:           inv.Added,
		SubjectCount:    inv.SubjectCount,
		Base:            inv.Base,
		DiscountPercent: inv.DiscountPercent,
		PerSubject:      inv.PerSubject.Round(2),
		Total:           inv.Total.Round(2),
	}
}

// =============================================================================
// WORKFLOWS
// =============================================================================

// RegistrationRequest registers a whole cart in one call.
// With DryRun set the cart is checked and priced but nothing is written.
type RegistrationRequest struct {
	Student   identity.StudentInput `json:"student"`
	CourseIDs []string              `json:"course_ids"`
	ReceiptID string                `json:"receipt_id"`
	DryRun    bool                  `json:"dry_run,omitempty"`
}

// EditRequest cancels and adds courses for an enrolled student.
type EditRequest struct {
	Student   identity.StudentInput `json:"student"`
	CancelIDs []string              `json:"cancel_ids"`
	AddIDs    []string              `json:"add_ids"`
	ReceiptID string                `json:"receipt_id,omitempty"`
	DryRun    bool                  `json:"dry_run,omitempty"`
}

// CommitDTO is the outcome of a workflow.
type CommitDTO struct {
	Outcome string      `json:"outcome"` // committed, unchanged, quoted
	Invoice *InvoiceDTO `json:"invoice,omitempty"`
	Events  []EventDTO  `json:"events"`
}

// ReceiptDTO reports whether a receipt pays for an active enrollment.
type ReceiptDTO struct {
	ReceiptID string `json:"receipt_id"`
	Active    bool   `json:"active"`
}

// =============================================================================
// REPORTS
// =============================================================================

// GroupDTO is one (course, time keys) group of the occupancy report.
type GroupDTO struct {
	TimeKeys []string     `json:"time_keys"`
	Students []StudentDTO `json:"students"`
}

// OccupancyDTO is one offering of the occupancy report.
type OccupancyDTO struct {
	Offering  OfferingDTO `json:"offering"`
	Occupied  int         `json:"occupied"`
	Available int         `json:"available"`
	Groups    []GroupDTO  `json:"groups"`
}

// StudentReportDTO is one line of the active students report.
type StudentReportDTO struct {
	Student StudentDTO `json:"student"`
	Courses []EventDTO `json:"courses"`
}

func toStudentDTO(k enrollment.StudentKey, c enrollment.Contact) StudentDTO {
	return StudentDTO{
		Name:       k.Name,
		Surname:    k.Surname,
		FatherName: k.FatherName,
		Phone:      c.Phone,
		Email:      c.Email,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}
