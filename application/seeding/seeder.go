package seeding

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
)

// SeedResult reports the outcome per symbol
type SeedResult struct {
	Succeeded []string
	Failed    map[string]error
}

// Total is the number of catalog entries processed
func (r SeedResult) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// FailedSymbols lists the failed symbols in order
func (r SeedResult) FailedSymbols() []string {
	out := make([]string, 0, len(r.Failed))
	for symbol := range r.Failed {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Seeder writes catalog instruments and records their initial price. A bad
// entry is reported and skipped; it never stops the rest of the batch.
type Seeder struct {
	instruments ports.InstrumentRepository
	prices      ports.PriceHistory
	logger      *zap.Logger
	clock       func() time.Time
}

// NewSeeder creates a new seeder
func NewSeeder(instruments ports.InstrumentRepository, prices ports.PriceHistory, logger *zap.Logger) *Seeder {
	return &Seeder{
		instruments: instruments,
		prices:      prices,
		logger:      logger,
		clock:       time.Now,
	}
}

// Seed loads the entries. It returns an error only when ctx is cancelled.
func (s *Seeder) Seed(ctx context.Context, entries []Entry) (SeedResult, error) {
	result := SeedResult{Failed: make(map[string]error)}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		symbol := entry.Instrument.Symbol
		if err := s.seedOne(ctx, entry); err != nil {
			s.logger.Warn("Failed to seed instrument", zap.String("symbol", symbol), zap.Error(err))
			result.Failed[symbol] = err
			continue
		}
		s.logger.Info("Seeded instrument", zap.String("symbol", symbol), zap.String("name", entry.Instrument.Name))
		result.Succeeded = append(result.Succeeded, symbol)
	}

	s.logger.Info("Seeding finished",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *Seeder) seedOne(ctx context.Context, entry Entry) error {
	if entry.Err != nil {
		return entry.Err
	}

	instrument := entry.Instrument
	if err := instrument.Validate(); err != nil {
		return err
	}
	if err := s.instruments.Create(ctx, &instrument); err != nil {
		return err
	}
	if _, err := s.prices.RecordPrice(ctx, instrument.Symbol, entry.Price, s.clock(), nil); err != nil {
		return fmt.Errorf("failed to record initial price: %w", err)
	}
	return nil
}
