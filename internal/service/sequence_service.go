package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/scc-sat-api/internal/models"
)

// DefaultSeatBaseline seeds a year's counter so the first issued seat is 1285.
const DefaultSeatBaseline int64 = 1284

const (
	fallbackSeatMin = 1000
	fallbackSeatMax = 9999
)

type seatCounter interface {
	Next(ctx context.Context, year string, baseline int64) (int64, error)
}

// SequenceService issues exam seat numbers of the form SCC-{year}-{n}.
type SequenceService struct {
	counter  seatCounter
	baseline int64
	metrics  *MetricsService
	logger   *zap.Logger

	mu     sync.Mutex
	random func() int
}

// NewSequenceService constructs a SequenceService.
func NewSequenceService(counter seatCounter, baseline int64, metrics *MetricsService, logger *zap.Logger) *SequenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseline <= 0 {
		baseline = DefaultSeatBaseline
	}
	return &SequenceService{
		counter:  counter,
		baseline: baseline,
		metrics:  metrics,
		logger:   logger,
		random: func() int {
			return fallbackSeatMin + rand.IntN(fallbackSeatMax-fallbackSeatMin+1)
		},
	}
}

// NextSeatNumber increments the year's counter and formats the result. When the counter
// cannot be read or advanced, a random fallback seat is returned and nothing is persisted.
func (s *SequenceService) NextSeatNumber(ctx context.Context, year string) models.SeatIssuance {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counter != nil {
		n, err := s.counter.Next(ctx, year, s.baseline)
		if err == nil {
			s.metrics.RecordSeatIssuance(string(models.IssuanceIssued))
			return models.SeatIssuance{
				Kind:       models.IssuanceIssued,
				SeatNumber: FormatSeatNumber(year, n),
				Year:       year,
				Sequence:   n,
			}
		}
		s.logger.Warn("seat counter unavailable, issuing fallback seat", zap.String("year", year), zap.Error(err))
	}

	n := int64(s.random())
	s.metrics.RecordSeatIssuance(string(models.IssuanceFallback))
	return models.SeatIssuance{
		Kind:       models.IssuanceFallback,
		SeatNumber: FormatSeatNumber(year, n),
		Year:       year,
		Sequence:   n,
	}
}

// FormatSeatNumber renders SCC-{year}-{n}.
func FormatSeatNumber(year string, n int64) string {
	return fmt.Sprintf("SCC-%s-%d", year, n)
}
