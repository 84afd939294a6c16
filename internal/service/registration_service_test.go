package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scc-sat-api/internal/dto"
	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/repository"
	"github.com/noah-isme/scc-sat-api/internal/upstream"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

type upstreamStub struct {
	result *upstream.Result
	err    error
	calls  []models.StudentRecord
}

func (u *upstreamStub) Enabled() bool { return true }

func (u *upstreamStub) Submit(ctx context.Context, record models.StudentRecord) (*upstream.Result, error) {
	u.calls = append(u.calls, record)
	return u.result, u.err
}

type registrationFixture struct {
	svc      *RegistrationService
	ledger   *LedgerService
	drafts   *DraftService
	autosave *Autosaver
	store    *repository.MemoryStore
}

func newRegistrationFixture(t *testing.T, remote upstreamSubmitter) *registrationFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	keys := repository.Keys{}
	ledger := NewLedgerService(repository.NewLedgerRepository(store, keys), nil, nil, nil)
	require.NoError(t, ledger.Load(context.Background()))
	drafts := NewDraftService(repository.NewDraftRepository(store, keys), nil)
	autosave := NewAutosaver(drafts, 0, nil, nil)
	seats := NewSequenceService(repository.NewSeatCounterRepository(store, keys), DefaultSeatBaseline, nil, nil)
	referrals := NewReferralService(nil, ledger, nil)
	svc := NewRegistrationService(seats, referrals, ledger, drafts, autosave, remote, nil, nil, nil, RegistrationConfig{
		ExamYear: "2025",
		ExamDate: "Sunday, 14th December 2025",
	})
	return &registrationFixture{svc: svc, ledger: ledger, drafts: drafts, autosave: autosave, store: store}
}

func validRequest() dto.RegistrationRequest {
	return dto.RegistrationRequest{
		FullName:        "Asha Patil",
		ParentName:      "Ravi Patil",
		Mobile:          "9876543210",
		Email:           "asha@example.com",
		SchoolName:      "Nashik High",
		FieldOfInterest: "B.Sc Agri",
		Location:        "Satpur",
	}
}

func TestRegisterHappyPath(t *testing.T) {
	f := newRegistrationFixture(t, nil)

	resp, mutation, err := f.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, mutation.Durable)
	assert.Equal(t, "SCC-2025-1285", resp.SeatNumber)
	assert.Equal(t, models.IssuanceIssued, resp.SeatKind)
	assert.Regexp(t, `^REF-ASH\d{4}$`, resp.OwnReferralCode)
	assert.Equal(t, "98765 43210", resp.Record.Mobile)
	assert.Equal(t, models.DefaultClass, resp.Record.ClassStd)
	assert.Equal(t, models.AttendancePending, resp.Record.Attendance)
	assert.False(t, resp.Record.CreatedAt.IsZero())

	second, _, err := f.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "SCC-2025-1286", second.SeatNumber)
	assert.Equal(t, 2, f.ledger.Len())
}

func TestRegisterAcceptsReferralFromEarlierStudent(t *testing.T) {
	f := newRegistrationFixture(t, nil)
	first, _, err := f.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.FullName = "Rahul More"
	req.ReferralCode = strings.ToLower(first.OwnReferralCode)
	second, _, err := f.svc.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.OwnReferralCode, second.Record.ReferralCode)
	assert.Equal(t, "Asha Patil", f.ledger.ResolveReferrer(second.Record.ReferralCode))
}

func TestRegisterInvalidReferralBlocksWithoutConsumingSeat(t *testing.T) {
	f := newRegistrationFixture(t, nil)
	req := validRequest()
	req.ReferralCode = "FRIEND"

	_, _, err := f.svc.Register(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidReferral))
	assert.Contains(t, appErrors.FromError(err).Details, "referralCode")
	assert.Equal(t, 0, f.ledger.Len())

	resp, _, err := f.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "SCC-2025-1285", resp.SeatNumber)
}

func TestRegisterValidationDetails(t *testing.T) {
	f := newRegistrationFixture(t, nil)
	req := validRequest()
	req.FullName = ""
	req.Email = "not-an-email"
	req.Mobile = "12345"
	req.Location = "Pune"

	_, _, err := f.svc.Register(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "fullName")
	assert.Contains(t, appErr.Details, "email")
	assert.Contains(t, appErr.Details, "mobile")
	assert.Contains(t, appErr.Details, "location")
	assert.Equal(t, 0, f.ledger.Len())
}

func TestRegisterClearsDraftAndCancelsAutosave(t *testing.T) {
	f := newRegistrationFixture(t, nil)
	ctx := context.Background()
	_, err := f.drafts.Save(ctx, "device-1", models.Draft{FullName: "Asha"})
	require.NoError(t, err)
	f.autosave.Stage("device-1", models.Draft{FullName: "Asha"})

	req := validRequest()
	req.SessionID = "device-1"
	_, _, err = f.svc.Register(ctx, req)
	require.NoError(t, err)

	draft, err := f.drafts.Load(ctx, "device-1")
	require.NoError(t, err)
	assert.Nil(t, draft)
	assert.Equal(t, 0, f.autosave.Pending())
}

func TestRegisterUpstreamOverridesAreAuthoritative(t *testing.T) {
	remote := &upstreamStub{result: &upstream.Result{
		Result:          "success",
		SeatNumber:      "SCC-2025-5000",
		OwnReferralCode: "REF-SRV0001",
		Message:         "Saved to sheet",
	}}
	f := newRegistrationFixture(t, remote)

	resp, _, err := f.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, remote.calls, 1)
	assert.Equal(t, "SCC-2025-1285", remote.calls[0].SeatNumber)
	assert.Equal(t, "SCC-2025-5000", resp.SeatNumber)
	assert.Equal(t, "REF-SRV0001", resp.OwnReferralCode)
	assert.Equal(t, "Saved to sheet", resp.Message)
	_, ok := f.ledger.Get("SCC-2025-5000")
	assert.True(t, ok)
}

func TestRegisterUpstreamFailureRecordsNothing(t *testing.T) {
	remote := &upstreamStub{result: &upstream.Result{Result: "error", Message: "Sheet locked"}, err: upstream.ErrRejected}
	f := newRegistrationFixture(t, remote)

	_, _, err := f.svc.Register(context.Background(), validRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErr.Code)
	assert.Equal(t, "Sheet locked", appErr.Message)
	assert.Equal(t, 0, f.ledger.Len())
}

func TestRegisterDuplicateSeatFromUpstream(t *testing.T) {
	remote := &upstreamStub{result: &upstream.Result{Result: "success", SeatNumber: "SCC-2025-5000"}}
	f := newRegistrationFixture(t, remote)

	_, _, err := f.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	_, _, err = f.svc.Register(context.Background(), validRequest())
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateSeat))
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"9876543210":            "98765 43210",
		"98765-43210":           "98765 43210",
		"987654":                "98765 4",
		"98765":                 "98765",
		"+91 98765 43210":       "+919876543210",
		"+1+2(345)":             "+12345",
		"12345678901234567890":  "1234567890123456",
		"+12345678901234567890": "+123456789012345",
		"":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestWhatsAppLink(t *testing.T) {
	f := newRegistrationFixture(t, nil)
	resp, _, err := f.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	link, err := f.svc.WhatsAppLink(resp.SeatNumber)
	require.NoError(t, err)
	assert.Equal(t, "919876543210", link.Phone)
	assert.True(t, strings.HasPrefix(link.URL, "https://wa.me/919876543210?text="))
	decoded, err := url.QueryUnescape(strings.TrimPrefix(link.URL, "https://wa.me/919876543210?text="))
	require.NoError(t, err)
	assert.Contains(t, decoded, "Hello Asha Patil,")
	assert.Contains(t, decoded, "*Seat Number:* SCC-2025-1285")
	assert.Contains(t, decoded, "*Exam Date:* Sunday, 14th December 2025")
	assert.Contains(t, decoded, "*Location:* Satpur Branch")

	_, err = f.svc.WhatsAppLink("SCC-2025-0000")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestWhatsAppNumberPrefersWhatsApp(t *testing.T) {
	assert.Equal(t, "919999988888", WhatsAppNumber(models.StudentRecord{Mobile: "98765 43210", WhatsApp: "99999 88888"}))
	assert.Equal(t, "447700900123", WhatsAppNumber(models.StudentRecord{Mobile: "+44 7700 900123"}))
}

func TestIssueManualSeat(t *testing.T) {
	f := newRegistrationFixture(t, nil)

	seat, err := f.svc.IssueManualSeat(context.Background(), dto.ManualSeatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "SCC-2025-1285", seat.SeatNumber)

	seat, err = f.svc.IssueManualSeat(context.Background(), dto.ManualSeatRequest{Year: "2026"})
	require.NoError(t, err)
	assert.Equal(t, "SCC-2026-1285", seat.SeatNumber)
	assert.Equal(t, 0, f.ledger.Len())

	_, err = f.svc.IssueManualSeat(context.Background(), dto.ManualSeatRequest{Year: "20x6"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
