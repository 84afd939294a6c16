package service

import (
	"cmp"
	"context"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scc-sat-api/internal/models"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

type ledgerStore interface {
	LoadAll(ctx context.Context) ([]models.StudentRecord, error)
	ReplaceAll(ctx context.Context, records []models.StudentRecord) error
	LoadConflicts(ctx context.Context) ([]models.StudentRecord, error)
	ReplaceConflicts(ctx context.Context, records []models.StudentRecord) error
	LoadIssuedCodes(ctx context.Context) ([]string, error)
	ReplaceIssuedCodes(ctx context.Context, codes []string) error
}

type recordComparator func(a, b *models.StudentRecord) int

var sortFields = map[string]recordComparator{
	"seatNumber":      byString(func(r *models.StudentRecord) string { return r.SeatNumber }),
	"fullName":        byString(func(r *models.StudentRecord) string { return r.FullName }),
	"parentName":      byString(func(r *models.StudentRecord) string { return r.ParentName }),
	"mobile":          byString(func(r *models.StudentRecord) string { return r.Mobile }),
	"whatsapp":        byString(func(r *models.StudentRecord) string { return r.WhatsApp }),
	"email":           byString(func(r *models.StudentRecord) string { return r.Email }),
	"schoolName":      byString(func(r *models.StudentRecord) string { return r.SchoolName }),
	"classStd":        byString(func(r *models.StudentRecord) string { return r.ClassStd }),
	"fieldOfInterest": byString(func(r *models.StudentRecord) string { return string(r.FieldOfInterest) }),
	"location":        byString(func(r *models.StudentRecord) string { return string(r.Location) }),
	"referralCode":    byString(func(r *models.StudentRecord) string { return r.ReferralCode }),
	"ownReferralCode": byString(func(r *models.StudentRecord) string { return r.OwnReferralCode }),
	"attendance":      byString(func(r *models.StudentRecord) string { return string(r.Attendance.OrPending()) }),
	"notes":           byString(func(r *models.StudentRecord) string { return r.Notes }),
	"timestamp": func(a, b *models.StudentRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	},
}

func byString(get func(*models.StudentRecord) string) recordComparator {
	return func(a, b *models.StudentRecord) int {
		return cmp.Compare(get(a), get(b))
	}
}

// ValidSortField reports whether field can order a ledger listing. Empty keeps insertion order.
func ValidSortField(field string) bool {
	if field == "" {
		return true
	}
	_, ok := sortFields[field]
	return ok
}

// LedgerService owns the registrations collection. Every mutation rewrites the stored
// snapshot; when that fails the change is kept in memory and reported as not durable.
type LedgerService struct {
	store   ledgerStore
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	records   []models.StudentRecord
	referrers map[string]string
	loaded    bool

	// conflicts are registrations whose seat was already taken in the stored snapshot
	// when the ledger recovered from an unreadable store.
	conflicts      []models.StudentRecord
	conflictsDirty bool
	issued         map[string]struct{}
	issuedDirty    bool
}

// NewLedgerService constructs a LedgerService. Call Load before serving traffic.
func NewLedgerService(store ledgerStore, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		records: []models.StudentRecord{},
		issued:  make(map[string]struct{}),
	}
}

// Load reads the stored snapshot. On failure the ledger starts empty in memory and the
// next successful write merges with whatever the store holds by then.
func (s *LedgerService) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(ctx); err != nil {
		s.metrics.RecordStorageFailure("load")
		s.logger.Warn("ledger snapshot unreadable, running in memory", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to load registrations")
	}
	s.logger.Info("ledger loaded", zap.Int("records", len(s.records)))
	return nil
}

// Loaded reports whether the stored snapshot has been read. Until then writes stay in memory.
func (s *LedgerService) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Insert appends a record. A seat number already present is an integrity violation.
func (s *LedgerService) Insert(ctx context.Context, record models.StudentRecord) (models.MutationResult, error) {
	if strings.TrimSpace(record.SeatNumber) == "" {
		return models.MutationResult{}, appErrors.Clone(appErrors.ErrValidation, "seat number is required")
	}
	if record.Attendance == "" {
		record.Attendance = models.AttendancePending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded && s.store != nil {
		if err := s.reloadLocked(ctx); err != nil {
			s.degrade("reload", err)
		}
	}
	if s.indexOfLocked(record.SeatNumber) >= 0 {
		s.logger.Error("duplicate seat number rejected", zap.String("seat", record.SeatNumber))
		return models.MutationResult{}, appErrors.WithDetails(appErrors.ErrDuplicateSeat, map[string]string{"seatNumber": record.SeatNumber})
	}
	s.records = append(s.records, record)
	s.noteIssuedLocked(record.OwnReferralCode)
	return models.MutationResult{Found: true, Durable: s.commitLocked(ctx, "insert")}, nil
}

// Get returns the record holding seat.
func (s *LedgerService) Get(seat string) (models.StudentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOfLocked(seat)
	if idx < 0 {
		return models.StudentRecord{}, false
	}
	return s.records[idx], true
}

// List yields the records matching filter in the requested order. The sequence is
// recomputed from the live ledger every time it is ranged over.
func (s *LedgerService) List(filter models.LedgerFilter, order models.LedgerSort) iter.Seq[models.StudentRecord] {
	return func(yield func(models.StudentRecord) bool) {
		for _, record := range s.query(filter, order) {
			if !yield(record) {
				return
			}
		}
	}
}

func (s *LedgerService) query(filter models.LedgerFilter, order models.LedgerSort) []models.StudentRecord {
	s.mu.RLock()
	matched := make([]models.StudentRecord, 0, len(s.records))
	for i := range s.records {
		if matchesFilter(&s.records[i], filter) {
			matched = append(matched, s.records[i])
		}
	}
	s.mu.RUnlock()

	compare, ok := sortFields[order.Field]
	if !ok {
		return matched
	}
	desc := order.Order == models.SortDesc
	slices.SortStableFunc(matched, func(a, b models.StudentRecord) int {
		if desc {
			return compare(&b, &a)
		}
		return compare(&a, &b)
	})
	return matched
}

func matchesFilter(record *models.StudentRecord, filter models.LedgerFilter) bool {
	if filter.Attendance != "" && filter.Attendance != models.AttendanceAll &&
		record.Attendance.OrPending() != filter.Attendance {
		return false
	}
	term := strings.TrimSpace(filter.Search)
	if term == "" {
		return true
	}
	lower := strings.ToLower(term)
	return strings.Contains(strings.ToLower(record.FullName), lower) ||
		strings.Contains(strings.ToLower(record.SeatNumber), lower) ||
		strings.Contains(record.Mobile, term)
}

// UpdateAttendance sets the attendance of seat. A missing seat is a no-op with Found=false.
func (s *LedgerService) UpdateAttendance(ctx context.Context, seat string, status models.AttendanceStatus) (models.MutationResult, error) {
	if !status.Valid() {
		return models.MutationResult{}, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{
			"status": "must be one of Pending, Present, Absent, Late",
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfLocked(seat)
	if idx < 0 {
		s.logger.Info("attendance update for unknown seat ignored", zap.String("seat", seat))
		return models.MutationResult{Found: false, Durable: true}, nil
	}
	s.records[idx].Attendance = status
	return models.MutationResult{Found: true, Durable: s.commitLocked(ctx, "update_attendance")}, nil
}

// Delete removes seat. Deleting an absent seat succeeds with Found=false.
func (s *LedgerService) Delete(ctx context.Context, seat string) (models.MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfLocked(seat)
	if idx < 0 {
		return models.MutationResult{Found: false, Durable: true}, nil
	}
	s.records = slices.Delete(s.records, idx, idx+1)
	return models.MutationResult{Found: true, Durable: s.commitLocked(ctx, "delete")}, nil
}

// ResolveReferrer maps an own referral code to the issuing student's name, or "Unknown".
func (s *LedgerService) ResolveReferrer(code string) string {
	if name, ok := s.lookupReferrer(NormalizeReferralCode(code)); ok {
		return name
	}
	return models.UnknownReferrer
}

// HasOwnCode reports whether code was ever issued as an own referral code. Deleting the
// issuer does not revoke it.
func (s *LedgerService) HasOwnCode(code string) bool {
	normalized := NormalizeReferralCode(code)
	if normalized == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.issued[normalized]
	return ok
}

// Conflicts returns the registrations quarantined because their seat collided with a
// stored record when the ledger recovered.
func (s *LedgerService) Conflicts() []models.StudentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conflicts)
}

func (s *LedgerService) lookupReferrer(code string) (string, bool) {
	if code == "" {
		return "", false
	}
	s.mu.RLock()
	if s.referrers != nil {
		name, ok := s.referrers[code]
		s.mu.RUnlock()
		return name, ok
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.referrers == nil {
		index := make(map[string]string, len(s.records))
		for _, record := range s.records {
			// First issuer wins when generated codes collide.
			if _, exists := index[record.OwnReferralCode]; !exists {
				index[record.OwnReferralCode] = record.FullName
			}
		}
		s.referrers = index
	}
	name, ok := s.referrers[code]
	return name, ok
}

// Len returns the number of records.
func (s *LedgerService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Stats counts registrations per center and attendance status, served from cache when enabled.
func (s *LedgerService) Stats(ctx context.Context) (*models.LedgerStats, error) {
	var cached models.LedgerStats
	if hit, err := s.cache.Get(ctx, cacheKeyStats, &cached); err == nil && hit {
		return &cached, nil
	}

	stats := &models.LedgerStats{
		ByCenter: map[models.Center]int{
			models.CenterSatpur: 0,
			models.CenterMeri:   0,
		},
		ByAttendance: map[models.AttendanceStatus]int{
			models.AttendancePending: 0,
			models.AttendancePresent: 0,
			models.AttendanceAbsent:  0,
			models.AttendanceLate:    0,
		},
		GeneratedAt: s.now(),
	}

	s.mu.RLock()
	stats.Conflicts = len(s.conflicts)
	for _, record := range s.records {
		stats.Total++
		stats.ByCenter[record.Location]++
		stats.ByAttendance[record.Attendance.OrPending()]++
		if record.ReferralCode != "" {
			stats.Referred++
		}
	}
	s.mu.RUnlock()

	_ = s.cache.Set(ctx, cacheKeyStats, stats, 0)
	return stats, nil
}

func (s *LedgerService) indexOfLocked(seat string) int {
	return slices.IndexFunc(s.records, func(r models.StudentRecord) bool {
		return r.SeatNumber == seat
	})
}

// commitLocked persists the snapshot and drops derived state. It reports durability.
func (s *LedgerService) commitLocked(ctx context.Context, op string) bool {
	s.referrers = nil
	s.metrics.SetLedgerSize(len(s.records))
	_ = s.cache.Invalidate(ctx)

	if s.store == nil {
		return false
	}
	if !s.loaded {
		if err := s.reloadLocked(ctx); err != nil {
			s.degrade(op, err)
			return false
		}
	}
	if err := s.store.ReplaceAll(ctx, s.records); err != nil {
		s.degrade(op, err)
		return false
	}
	if s.conflictsDirty {
		if err := s.store.ReplaceConflicts(ctx, s.conflicts); err != nil {
			s.degrade(op+"_conflicts", err)
			return false
		}
		s.conflictsDirty = false
	}
	if s.issuedDirty {
		if err := s.store.ReplaceIssuedCodes(ctx, slices.Sorted(maps.Keys(s.issued))); err != nil {
			s.degrade(op+"_issued_codes", err)
			return false
		}
		s.issuedDirty = false
	}
	return true
}

// reloadLocked reads the stored snapshot and appends the in-memory records the store
// does not know yet. An in-memory record whose seat the store already assigned to a
// different student is quarantined as a conflict, never dropped.
func (s *LedgerService) reloadLocked(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	stored, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	storedConflicts, err := s.store.LoadConflicts(ctx)
	if err != nil {
		return err
	}
	storedCodes, err := s.store.LoadIssuedCodes(ctx)
	if err != nil {
		return err
	}

	conflicts := storedConflicts
	for _, record := range s.conflicts {
		if !slices.ContainsFunc(conflicts, func(c models.StudentRecord) bool { return sameRegistration(c, record) }) {
			conflicts = append(conflicts, record)
			s.conflictsDirty = true
		}
	}

	bySeat := make(map[string]int, len(stored))
	for i, record := range stored {
		bySeat[record.SeatNumber] = i
	}
	for _, record := range s.records {
		idx, taken := bySeat[record.SeatNumber]
		switch {
		case !taken:
			bySeat[record.SeatNumber] = len(stored)
			stored = append(stored, record)
		case sameRegistration(stored[idx], record):
		default:
			s.metrics.RecordIntegrityFailure("seat_collision")
			s.logger.Error("seat already taken in stored ledger, registration quarantined",
				zap.String("seat", record.SeatNumber),
				zap.String("stored_name", stored[idx].FullName),
				zap.String("quarantined_name", record.FullName))
			conflicts = append(conflicts, record)
			s.conflictsDirty = true
		}
	}

	issued := make(map[string]struct{}, len(storedCodes)+len(stored))
	for _, code := range storedCodes {
		issued[code] = struct{}{}
	}
	known := len(issued)
	for code := range s.issued {
		issued[code] = struct{}{}
	}
	for _, list := range [][]models.StudentRecord{stored, conflicts} {
		for _, record := range list {
			if code := NormalizeReferralCode(record.OwnReferralCode); code != "" {
				issued[code] = struct{}{}
			}
		}
	}
	if len(issued) != known {
		s.issuedDirty = true
	}

	s.records = stored
	s.conflicts = conflicts
	s.issued = issued
	s.referrers = nil
	s.loaded = true
	s.metrics.SetLedgerSize(len(s.records))
	return nil
}

func (s *LedgerService) noteIssuedLocked(code string) {
	code = NormalizeReferralCode(code)
	if code == "" {
		return
	}
	if _, ok := s.issued[code]; ok {
		return
	}
	s.issued[code] = struct{}{}
	s.issuedDirty = true
}

func sameRegistration(a, b models.StudentRecord) bool {
	return a.SeatNumber == b.SeatNumber &&
		a.OwnReferralCode == b.OwnReferralCode &&
		a.FullName == b.FullName &&
		a.CreatedAt.Equal(b.CreatedAt)
}

func (s *LedgerService) degrade(op string, err error) {
	s.metrics.RecordStorageFailure(op)
	s.logger.Warn("ledger snapshot not persisted, change kept in memory",
		zap.String("operation", op), zap.Error(err))
}
