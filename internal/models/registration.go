package models

import (
	"strings"
	"time"
)

// FieldOfInterest enumerates the stream a student is aiming for.
type FieldOfInterest string

const (
	FieldEngineering FieldOfInterest = "Engineering"
	FieldPharmacy    FieldOfInterest = "Pharmacy"
	FieldAgriculture FieldOfInterest = "B.Sc Agri"
	FieldDoctor      FieldOfInterest = "Doctor"
)

// Center enumerates the branches hosting the exam.
type Center string

const (
	CenterSatpur Center = "Satpur"
	CenterMeri   Center = "Meri"
)

// AttendanceStatus captures exam-day presence.
type AttendanceStatus string

const (
	AttendancePending AttendanceStatus = "Pending"
	AttendancePresent AttendanceStatus = "Present"
	AttendanceAbsent  AttendanceStatus = "Absent"
	AttendanceLate    AttendanceStatus = "Late"
)

// AttendanceAll is the list filter value matching every status.
const AttendanceAll AttendanceStatus = "All"

// DefaultClass is the only class the exam is open to.
const DefaultClass = "10th"

// Valid reports whether s is one of the four recorded statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePending, AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	}
	return false
}

// OrPending maps the empty status of legacy records to Pending.
func (s AttendanceStatus) OrPending() AttendanceStatus {
	if s == "" {
		return AttendancePending
	}
	return s
}

// StudentRecord is one successful registration. Only Attendance changes after creation.
type StudentRecord struct {
	FullName        string           `json:"fullName"`
	ParentName      string           `json:"parentName"`
	Mobile          string           `json:"mobile"`
	WhatsApp        string           `json:"whatsapp,omitempty"`
	Email           string           `json:"email"`
	SchoolName      string           `json:"schoolName"`
	ClassStd        string           `json:"classStd"`
	FieldOfInterest FieldOfInterest  `json:"fieldOfInterest"`
	Location        Center           `json:"location"`
	Notes           string           `json:"notes,omitempty"`
	ReferralCode    string           `json:"referralCode,omitempty"`
	SeatNumber      string           `json:"seatNumber"`
	OwnReferralCode string           `json:"ownReferralCode"`
	Attendance      AttendanceStatus `json:"attendance,omitempty"`
	CreatedAt       time.Time        `json:"timestamp"`
}

// Draft is an unsubmitted form snapshot. It never carries a seat number or own code.
type Draft struct {
	FullName        string    `json:"fullName"`
	ParentName      string    `json:"parentName,omitempty"`
	Mobile          string    `json:"mobile,omitempty"`
	WhatsApp        string    `json:"whatsapp,omitempty"`
	Email           string    `json:"email,omitempty"`
	SchoolName      string    `json:"schoolName,omitempty"`
	ClassStd        string    `json:"classStd,omitempty"`
	FieldOfInterest string    `json:"fieldOfInterest,omitempty"`
	Location        string    `json:"location,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	ReferralCode    string    `json:"referralCode,omitempty"`
	SavedAt         time.Time `json:"savedAt"`
}

// Blank reports whether the draft has no name, in which case autosave skips it.
func (d Draft) Blank() bool {
	return strings.TrimSpace(d.FullName) == ""
}

// SortOrder is the direction applied by ledger listings.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// LedgerFilter narrows ledger listings. An empty Attendance or AttendanceAll matches everything.
type LedgerFilter struct {
	Search     string
	Attendance AttendanceStatus
}

// LedgerSort selects the single field and direction used to order a listing.
// An empty Field keeps insertion order.
type LedgerSort struct {
	Field string
	Order SortOrder
}

// LedgerStats summarises the ledger for the admin dashboard.
type LedgerStats struct {
	Total        int                      `json:"total"`
	ByCenter     map[Center]int           `json:"byCenter"`
	ByAttendance map[AttendanceStatus]int `json:"byAttendance"`
	Referred     int                      `json:"referred"`
	Conflicts    int                      `json:"conflicts"`
	GeneratedAt  time.Time                `json:"generatedAt"`
}
