package dto

import "github.com/noah-isme/scc-sat-api/internal/models"

// RegistrationRequest captures POST /registrations payload.
type RegistrationRequest struct {
	FullName        string `json:"fullName" validate:"required,min=2,max=120"`
	ParentName      string `json:"parentName" validate:"required,min=2,max=120"`
	Mobile          string `json:"mobile" validate:"required,phone"`
	WhatsApp        string `json:"whatsapp" validate:"omitempty,phone"`
	Email           string `json:"email" validate:"required,email,max=254"`
	SchoolName      string `json:"schoolName" validate:"required,max=200"`
	ClassStd        string `json:"classStd" validate:"omitempty,oneof=10th"`
	FieldOfInterest string `json:"fieldOfInterest" validate:"required,oneof=Engineering Pharmacy 'B.Sc Agri' Doctor"`
	Location        string `json:"location" validate:"required,oneof=Satpur Meri"`
	Notes           string `json:"notes" validate:"max=1000"`
	ReferralCode    string `json:"referralCode" validate:"max=32"`
	SessionID       string `json:"sessionId,omitempty" validate:"max=128"`
}

// RegistrationResponse is returned after a successful submission.
type RegistrationResponse struct {
	SeatNumber      string               `json:"seatNumber"`
	OwnReferralCode string               `json:"ownReferralCode"`
	SeatKind        models.IssuanceKind  `json:"seatKind"`
	Record          models.StudentRecord `json:"record"`
	Message         string               `json:"message"`
}

// ReferralValidationResponse reports the status of a presented code.
type ReferralValidationResponse struct {
	Code   string                `json:"code"`
	Status models.ReferralStatus `json:"status"`
}

// AttendanceUpdateRequest captures PATCH /admin/registrations/:seat/attendance payload.
type AttendanceUpdateRequest struct {
	Status models.AttendanceStatus `json:"status" validate:"required,oneof=Pending Present Absent Late"`
}

// MutationResponse reports the outcome of an admin mutation.
type MutationResponse struct {
	SeatNumber string `json:"seatNumber"`
	Found      bool   `json:"found"`
	Durable    bool   `json:"durable"`
}

// ReferrerResponse resolves an own referral code to a name.
type ReferrerResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// WhatsAppLinkResponse carries the confirmation deep link for a record.
type WhatsAppLinkResponse struct {
	SeatNumber string `json:"seatNumber"`
	Phone      string `json:"phone"`
	Message    string `json:"message"`
	URL        string `json:"url"`
}

// ManualSeatRequest captures POST /admin/seats payload.
type ManualSeatRequest struct {
	Year string `json:"year" validate:"omitempty,numeric,len=4"`
}
