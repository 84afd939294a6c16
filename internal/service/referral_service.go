package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/noah-isme/scc-sat-api/internal/models"
)

// DefaultPromoCodes are always accepted as referral codes.
var DefaultPromoCodes = []string{"SCC2025", "TEACHER1", "EARLYBIRD", "TOPPER"}

const defaultReferralPrefix = "SCC"

var generatedCodePattern = regexp.MustCompile(`^REF-[A-Z]{3}\d{4}$`)

type issuedCodeSource interface {
	HasOwnCode(code string) bool
}

// ReferralService issues personal referral codes and validates presented ones.
type ReferralService struct {
	promos  map[string]struct{}
	issued  issuedCodeSource
	metrics *MetricsService
	random  func() int
}

// NewReferralService constructs a ReferralService. An empty promo list falls back to DefaultPromoCodes.
func NewReferralService(promoCodes []string, issued issuedCodeSource, metrics *MetricsService) *ReferralService {
	if len(promoCodes) == 0 {
		promoCodes = DefaultPromoCodes
	}
	promos := make(map[string]struct{}, len(promoCodes))
	for _, code := range promoCodes {
		promos[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}
	return &ReferralService{
		promos:  promos,
		issued:  issued,
		metrics: metrics,
		random: func() int {
			return 1000 + rand.IntN(9000)
		},
	}
}

// IssueCode builds REF-{prefix}{nnnn} from the first three ASCII letters of fullName,
// padded from SCC when the name has fewer. Collisions with earlier codes are not checked.
func (s *ReferralService) IssueCode(fullName string) string {
	return fmt.Sprintf("REF-%s%d", referralPrefix(fullName), s.random())
}

// Validate classifies a presented code. Blank input is idle.
func (s *ReferralService) Validate(_ context.Context, code string) models.ReferralStatus {
	status := s.classify(code)
	if status != models.ReferralIdle {
		s.metrics.RecordReferralValidation(string(status))
	}
	return status
}

func (s *ReferralService) classify(code string) models.ReferralStatus {
	normalized := NormalizeReferralCode(code)
	if normalized == "" {
		return models.ReferralIdle
	}
	if _, ok := s.promos[normalized]; ok {
		return models.ReferralValid
	}
	if s.issued != nil && s.issued.HasOwnCode(normalized) {
		return models.ReferralValid
	}
	if generatedCodePattern.MatchString(normalized) {
		return models.ReferralValid
	}
	return models.ReferralInvalid
}

// NormalizeReferralCode trims and uppercases a presented code.
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func referralPrefix(fullName string) string {
	var b strings.Builder
	for _, r := range fullName {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
			if b.Len() == 3 {
				break
			}
		}
	}
	prefix := strings.ToUpper(b.String())
	return prefix + defaultReferralPrefix[:len(defaultReferralPrefix)-len(prefix)]
}
