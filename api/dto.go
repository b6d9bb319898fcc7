/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names follow the
  camelCase contract existing clients of the attendance collection rely on
  (childId, arrivalTime, monthHours, cumulativeTakenHours, ...).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Attendance:
    AttendanceDTO, CreateAttendanceRequest, UpdateAttendanceRequest,
    SummaryDTO

  Directory:
    ChildDTO, CaretakerDTO, CreateChildRequest, CreateCaretakerRequest

TIME FORMATS:
  date:                  YYYY-MM-DD (an RFC3339 timestamp is accepted too)
  arrival/departureTime: RFC3339

VALIDATION:
  Request DTOs only parse. Field rules live on attendance.CreateInput and
  attendance.UpdatePatch so every caller gets the same checks.

SEE ALSO:
  - handlers.go: Uses these types
  - attendance/request.go: Input validation
*/
package api

import (
	"time"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/generic"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

// AttendanceDTO represents an attendance record in API responses.
type AttendanceDTO struct {
	ID                   string        `json:"id"`
	ChildID              string        `json:"childId"`
	CaretakerID          string        `json:"caretakerId"`
	Date                 string        `json:"date"`
	ArrivalTime          string        `json:"arrivalTime"`
	DepartureTime        *string       `json:"departureTime"`
	MonthHours           float64       `json:"monthHours"`
	TakenHours           float64       `json:"takenHours"`
	CumulativeTakenHours float64       `json:"cumulativeTakenHours"`
	State                string        `json:"state"`
	Child                *ChildDTO     `json:"child,omitempty"`
	Caretaker            *CaretakerDTO `json:"caretaker,omitempty"`
	CreatedAt            string        `json:"createdAt,omitempty"`
	UpdatedAt            string        `json:"updatedAt,omitempty"`
}

// CreateAttendanceRequest is the request to open or record an attendance.
type CreateAttendanceRequest struct {
	ChildID       string  `json:"childId"`
	Date          string  `json:"date"`
	ArrivalTime   string  `json:"arrivalTime"`
	DepartureTime *string `json:"departureTime,omitempty"`
	CaretakerID   string  `json:"caretakerId"`
	MonthHours    float64 `json:"monthHours"`
}

// UpdateAttendanceRequest carries the fields that may change after creation.
type UpdateAttendanceRequest struct {
	DepartureTime *string  `json:"departureTime,omitempty"`
	MonthHours    *float64 `json:"monthHours,omitempty"`
}

// SummaryDTO is the week or month overview shown on the parent page.
type SummaryDTO struct {
	ChildID              string          `json:"childId"`
	Period               string          `json:"period"`
	From                 string          `json:"from"`
	To                   string          `json:"to"`
	DaysPresent          int             `json:"daysPresent"`
	LateDays             int             `json:"lateDays"`
	AverageArrival       string          `json:"averageArrival"`
	TotalTakenHours      float64         `json:"totalTakenHours"`
	CumulativeTakenHours float64         `json:"cumulativeTakenHours"`
	Allotment            float64         `json:"allotment"`
	RemainingHours       float64         `json:"remainingHours"`
	OverAllotment        bool            `json:"overAllotment"`
	Records              []AttendanceDTO `json:"records"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

// ChildDTO represents a child.
type ChildDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	GroupID   string `json:"groupId,omitempty"`
	ParentID  string `json:"parentId,omitempty"`
}

// CreateChildRequest is the request to register a child.
type CreateChildRequest struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	GroupID   string `json:"groupId"`
	ParentID  string `json:"parentId"`
}

// CaretakerDTO represents a caretaker. Embedded in attendance responses with
// only id and username set.
type CaretakerDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role,omitempty"`
}

// CreateCaretakerRequest is the request to register a caretaker.
type CreateCaretakerRequest struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAttendanceDTO(rec attendance.Record) AttendanceDTO {
	dto := AttendanceDTO{
		ID:                   string(rec.ID),
		ChildID:              string(rec.ChildID),
		CaretakerID:          string(rec.CaretakerID),
		Date:                 rec.Date.Format(generic.DateLayout),
		ArrivalTime:          rec.ArrivalTime.Format(time.RFC3339),
		MonthHours:           rec.Allotment.Float64(),
		TakenHours:           rec.TakenHours.Float64(),
		CumulativeTakenHours: rec.CumulativeTakenHours.Float64(),
		State:                string(rec.State()),
	}
	if rec.DepartureTime != nil {
		dep := rec.DepartureTime.Format(time.RFC3339)
		dto.DepartureTime = &dep
	}
	if !rec.CreatedAt.IsZero() {
		dto.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}
	if !rec.UpdatedAt.IsZero() {
		dto.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toAttendanceViewDTO(v attendance.View) AttendanceDTO {
	dto := toAttendanceDTO(v.Record)
	if v.Child != nil {
		c := toChildDTO(*v.Child)
		dto.Child = &c
	}
	if v.Caretaker != nil {
		dto.Caretaker = &CaretakerDTO{ID: string(v.Caretaker.ID), Username: v.Caretaker.Username}
	}
	return dto
}

func toChildDTO(c attendance.Child) ChildDTO {
	return ChildDTO{
		ID:        string(c.ID),
		FirstName: c.FirstName,
		LastName:  c.LastName,
		GroupID:   c.GroupID,
		ParentID:  c.ParentID,
	}
}

func toCaretakerDTO(c attendance.Caretaker) CaretakerDTO {
	return CaretakerDTO{
		ID:        string(c.ID),
		Username:  c.Username,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Role:      string(c.Role),
	}
}

func toSummaryDTO(s attendance.Summary) SummaryDTO {
	recs := make([]AttendanceDTO, len(s.Records))
	for i, r := range s.Records {
		recs[i] = toAttendanceDTO(r)
	}
	return SummaryDTO{
		ChildID:              string(s.ChildID),
		Period:               string(s.PeriodType),
		From:                 s.Period.Start.Format(generic.DateLayout),
		To:                   s.Period.End.Format(generic.DateLayout),
		DaysPresent:          s.DaysPresent,
		LateDays:             s.LateDays,
		AverageArrival:       s.AverageArrival,
		TotalTakenHours:      s.TotalTakenHours.Float64(),
		CumulativeTakenHours: s.CumulativeTakenHours.Float64(),
		Allotment:            s.Allotment.Float64(),
		RemainingHours:       s.RemainingHours.Float64(),
		OverAllotment:        s.OverAllotment,
		Records:              recs,
	}
}
