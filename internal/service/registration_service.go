package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/scc-sat-api/internal/dto"
	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/upstream"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

var phonePattern = regexp.MustCompile(`^[+]?[\d\s]{10,16}$`)

const maxPhoneLength = 16

type seatIssuer interface {
	NextSeatNumber(ctx context.Context, year string) models.SeatIssuance
}

type referralIssuer interface {
	IssueCode(fullName string) string
	Validate(ctx context.Context, code string) models.ReferralStatus
}

type ledgerWriter interface {
	Insert(ctx context.Context, record models.StudentRecord) (models.MutationResult, error)
	Get(seat string) (models.StudentRecord, bool)
}

type draftClearer interface {
	Clear(ctx context.Context, session string) error
}

type autosaveCanceler interface {
	Cancel(session string)
}

type upstreamSubmitter interface {
	Enabled() bool
	Submit(ctx context.Context, record models.StudentRecord) (*upstream.Result, error)
}

// RegistrationConfig carries the exam identity.
type RegistrationConfig struct {
	ExamYear string
	ExamDate string
}

// RegistrationService runs the submit flow: validate, number, record, clean up.
type RegistrationService struct {
	seats     seatIssuer
	referrals referralIssuer
	ledger    ledgerWriter
	drafts    draftClearer
	autosave  autosaveCanceler
	upstream  upstreamSubmitter
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       RegistrationConfig
}

// NewRegistrationService constructs a RegistrationService. drafts, autosave and remote may be nil.
func NewRegistrationService(
	seats seatIssuer,
	referrals referralIssuer,
	ledger ledgerWriter,
	drafts draftClearer,
	autosave autosaveCanceler,
	remote upstreamSubmitter,
	validate *validator.Validate,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg RegistrationConfig,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	} else {
		registerPhone(validate)
	}
	return &RegistrationService{
		seats:     seats,
		referrals: referrals,
		ledger:    ledger,
		drafts:    drafts,
		autosave:  autosave,
		upstream:  remote,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Register validates the submission, issues a seat and referral code, optionally hands the
// record to the remote backend, and appends it to the ledger.
func (s *RegistrationService) Register(ctx context.Context, req dto.RegistrationRequest) (*dto.RegistrationResponse, models.MutationResult, error) {
	req = normalizeRequest(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, models.MutationResult{}, validationError(err, "please complete all required fields")
	}

	if req.ReferralCode != "" && s.referrals.Validate(ctx, req.ReferralCode) == models.ReferralInvalid {
		return nil, models.MutationResult{}, appErrors.WithDetails(appErrors.ErrInvalidReferral, map[string]string{
			"referralCode": "invalid format, example: REF-ABC1234",
		})
	}

	seat := s.seats.NextSeatNumber(ctx, s.cfg.ExamYear)
	record := models.StudentRecord{
		FullName:        req.FullName,
		ParentName:      req.ParentName,
		Mobile:          req.Mobile,
		WhatsApp:        req.WhatsApp,
		Email:           req.Email,
		SchoolName:      req.SchoolName,
		ClassStd:        req.ClassStd,
		FieldOfInterest: models.FieldOfInterest(req.FieldOfInterest),
		Location:        models.Center(req.Location),
		Notes:           req.Notes,
		ReferralCode:    req.ReferralCode,
		SeatNumber:      seat.SeatNumber,
		OwnReferralCode: s.referrals.IssueCode(req.FullName),
		Attendance:      models.AttendancePending,
	}

	message := "Registration successful"
	if s.upstream != nil && s.upstream.Enabled() {
		result, err := s.upstream.Submit(ctx, record)
		if err != nil {
			s.logger.Warn("registration backend submission failed", zap.String("seat", record.SeatNumber), zap.Error(err))
			msg := appErrors.ErrUpstream.Message
			if errors.Is(err, upstream.ErrRejected) && result != nil && result.Message != "" {
				msg = result.Message
			}
			return nil, models.MutationResult{}, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, msg)
		}
		if result.SeatNumber != "" {
			record.SeatNumber = result.SeatNumber
		}
		if result.OwnReferralCode != "" {
			record.OwnReferralCode = result.OwnReferralCode
		}
		if result.Message != "" {
			message = result.Message
		}
	}

	mutation, err := s.ledger.Insert(ctx, record)
	if err != nil {
		return nil, models.MutationResult{}, err
	}
	stored, _ := s.ledger.Get(record.SeatNumber)

	if req.SessionID != "" {
		if s.autosave != nil {
			s.autosave.Cancel(req.SessionID)
		}
		if s.drafts != nil {
			if err := s.drafts.Clear(ctx, req.SessionID); err != nil {
				s.logger.Warn("failed to clear draft after registration", zap.String("session", req.SessionID), zap.Error(err))
			}
		}
	}

	s.metrics.RecordRegistration(string(record.Location))
	s.logger.Info("registration recorded",
		zap.String("seat", stored.SeatNumber),
		zap.String("seat_kind", string(seat.Kind)),
		zap.Bool("durable", mutation.Durable),
	)

	return &dto.RegistrationResponse{
		SeatNumber:      stored.SeatNumber,
		OwnReferralCode: stored.OwnReferralCode,
		SeatKind:        seat.Kind,
		Record:          stored,
		Message:         message,
	}, mutation, nil
}

// IssueManualSeat hands out a seat number without recording a registration. The year
// defaults to the configured exam year.
func (s *RegistrationService) IssueManualSeat(ctx context.Context, req dto.ManualSeatRequest) (models.SeatIssuance, error) {
	req.Year = strings.TrimSpace(req.Year)
	if err := s.validator.Struct(req); err != nil {
		return models.SeatIssuance{}, validationError(err, "invalid seat request")
	}
	year := req.Year
	if year == "" {
		year = s.cfg.ExamYear
	}
	issued := s.seats.NextSeatNumber(ctx, year)
	s.logger.Info("manual seat issued", zap.String("seat", issued.SeatNumber), zap.String("seat_kind", string(issued.Kind)))
	return issued, nil
}

// WhatsAppLink builds the confirmation deep link for a stored record.
func (s *RegistrationService) WhatsAppLink(seat string) (*dto.WhatsAppLinkResponse, error) {
	record, ok := s.ledger.Get(seat)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	phone := WhatsAppNumber(record)
	message := ConfirmationMessage(record, s.cfg.ExamDate)
	return &dto.WhatsAppLinkResponse{
		SeatNumber: record.SeatNumber,
		Phone:      phone,
		Message:    message,
		URL:        fmt.Sprintf("https://wa.me/%s?text=%s", phone, url.QueryEscape(message)),
	}, nil
}

// WhatsAppNumber picks the WhatsApp number (falling back to mobile), keeps digits only and
// prefixes 91 to ten digit local numbers.
func WhatsAppNumber(record models.StudentRecord) string {
	raw := record.WhatsApp
	if strings.TrimSpace(raw) == "" {
		raw = record.Mobile
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if len(digits) == 10 {
		digits = "91" + digits
	}
	return digits
}

// ConfirmationMessage is the text sent to a registered student.
func ConfirmationMessage(record models.StudentRecord, examDate string) string {
	return fmt.Sprintf(`*SCC SAT Registration Confirmed* ✅

Hello %s,
Your registration for the Scholarship Exam is successful!

📌 *Seat Number:* %s
📅 *Exam Date:* %s
📍 *Location:* %s Branch

Please present this message at the exam center.
- Shiv Chhatrapati Classes`, record.FullName, record.SeatNumber, examDate, record.Location)
}

// NormalizePhone keeps digits and a single leading plus, caps the length at 16 characters
// and formats local numbers of up to ten digits as "XXXXX YYYYY".
func NormalizePhone(value string) string {
	hasPlus := strings.HasPrefix(strings.TrimSpace(value), "+")
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value)
	cleaned := digits
	if hasPlus {
		cleaned = "+" + digits
	}
	if len(cleaned) > maxPhoneLength {
		cleaned = cleaned[:maxPhoneLength]
	}
	if !hasPlus && len(cleaned) <= 10 && len(cleaned) > 5 {
		return cleaned[:5] + " " + cleaned[5:]
	}
	return cleaned
}

func normalizeRequest(req dto.RegistrationRequest) dto.RegistrationRequest {
	req.FullName = strings.TrimSpace(req.FullName)
	req.ParentName = strings.TrimSpace(req.ParentName)
	req.Email = strings.TrimSpace(req.Email)
	req.SchoolName = strings.TrimSpace(req.SchoolName)
	req.Notes = strings.TrimSpace(req.Notes)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Mobile = NormalizePhone(req.Mobile)
	if strings.TrimSpace(req.WhatsApp) != "" {
		req.WhatsApp = NormalizePhone(req.WhatsApp)
	} else {
		req.WhatsApp = ""
	}
	if req.ClassStd == "" {
		req.ClassStd = models.DefaultClass
	}
	req.ReferralCode = NormalizeReferralCode(req.ReferralCode)
	return req
}
