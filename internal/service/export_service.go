package service

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/pkg/export"
	"github.com/noah-isme/scc-sat-api/pkg/storage"
)

// ExportHeaders is the fixed column order of every ledger export.
var ExportHeaders = []string{
	"Seat Number", "Name", "Mobile", "WhatsApp", "Parent Name", "Email", "School", "Class",
	"Field", "Location", "My Referral Code", "Referred By Code", "Referred By Name",
	"Attendance", "Notes", "Date",
}

const exportDateLayout = "2006-01-02"

// ReferrerResolver maps a presented referral code to the referrer's name.
type ReferrerResolver func(code string) string

// ToTable lays records out in ExportHeaders order, preserving the order they are yielded in.
func ToTable(records iter.Seq[models.StudentRecord], resolve ReferrerResolver) export.Dataset {
	rows := make([][]string, 0)
	for record := range records {
		referredBy := ""
		if record.ReferralCode != "" && resolve != nil {
			referredBy = resolve(record.ReferralCode)
		}
		rows = append(rows, []string{
			record.SeatNumber,
			record.FullName,
			record.Mobile,
			record.WhatsApp,
			record.ParentName,
			record.Email,
			record.SchoolName,
			record.ClassStd,
			string(record.FieldOfInterest),
			string(record.Location),
			record.OwnReferralCode,
			record.ReferralCode,
			referredBy,
			string(record.Attendance.OrPending()),
			record.Notes,
			formatExportDate(record.CreatedAt),
		})
	}
	return export.Dataset{Headers: ExportHeaders, Rows: rows}
}

func formatExportDate(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(exportDateLayout)
}

type ledgerReader interface {
	List(filter models.LedgerFilter, order models.LedgerSort) iter.Seq[models.StudentRecord]
	ResolveReferrer(code string) string
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	ExamYear  string
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	Rows         int
	ExpiresAt    time.Time
}

// ExportService renders ledger listings and persists rendered files behind signed tokens.
type ExportService struct {
	ledger  ledgerReader
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(ledger ledgerReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		ledger:  ledger,
		storage: files,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dataset builds the export table for a filtered, sorted listing.
func (s *ExportService) Dataset(filter models.LedgerFilter, order models.LedgerSort) export.Dataset {
	return ToTable(s.ledger.List(filter, order), s.ledger.ResolveReferrer)
}

// CSV renders a listing synchronously.
func (s *ExportService) CSV(filter models.LedgerFilter, order models.LedgerSort) ([]byte, int, error) {
	dataset := s.Dataset(filter, order)
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, 0, err
	}
	return payload, len(dataset.Rows), nil
}

// Filename returns the download name for an export rendered at the current time.
func (s *ExportService) Filename(format models.ExportFormat) string {
	return fmt.Sprintf("SCC_Registrations_%s.%s", s.now().Format(exportDateLayout), format)
}

// Generate renders the job's listing, stores it and signs a download URL.
func (s *ExportService) Generate(_ context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset := s.Dataset(job.Filter, job.Sort)

	var (
		payload []byte
		err     error
	)
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, s.title())
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("registrations_%s_%s.%s", job.ID, s.now().Format("20060102_150405"), job.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       job.Format,
		Rows:         len(dataset.Rows),
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *ExportService) title() string {
	if s.cfg.ExamYear == "" {
		return "SCC SAT Registrations"
	}
	return fmt.Sprintf("SCC SAT %s Registrations", s.cfg.ExamYear)
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.SignedFile, error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}
