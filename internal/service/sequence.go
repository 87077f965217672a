package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

// codeFormat splits a code at its last dash into prefix and number.
var codeFormat = regexp.MustCompile(`^(.+)-(\d+)$`)

// SequenceGenerator issues radicado codes from atomic per-stream counters.
type SequenceGenerator struct {
	store  repository.Store
	logger *zap.Logger
}

// NewSequenceGenerator builds the generator.
func NewSequenceGenerator(store repository.Store, logger *zap.Logger) *SequenceGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceGenerator{store: store, logger: logger}
}

// Next returns the next code of stream using repos, so the number is only
// consumed when the caller's transaction commits.
func (g *SequenceGenerator) Next(ctx context.Context, repos repository.Repositories, stream domain.SequenceStream) (string, error) {
	n, err := repos.Sequences.Increment(ctx, stream)
	if err != nil {
		return "", fmt.Errorf("next %s: %w", stream, err)
	}
	return stream.FormatCode(n), nil
}

// Bootstrap seeds missing counters from the latest stored code of each stream.
func (g *SequenceGenerator) Bootstrap(ctx context.Context) error {
	return g.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, stream := range domain.AllSequenceStreams {
			if _, ok, err := repos.Sequences.Current(ctx, stream); err != nil {
				return err
			} else if ok {
				continue
			}

			latest, err := latestCode(ctx, repos, stream)
			if err != nil {
				return fmt.Errorf("latest %s code: %w", stream, err)
			}
			start, _ := ParseCode(stream.Prefix(), latest)
			if _, err := repos.Sequences.Seed(ctx, stream, start); err != nil {
				return fmt.Errorf("seed %s: %w", stream, err)
			}
			g.logger.Info("sequence seeded",
				zap.String("stream", string(stream)),
				zap.Int64("value", start),
			)
		}
		return nil
	})
}

func latestCode(ctx context.Context, repos repository.Repositories, stream domain.SequenceStream) (string, error) {
	switch stream {
	case domain.StreamRequest:
		return repos.Requests.LatestRadicado(ctx)
	case domain.StreamExternal:
		return repos.External.LatestRadicado(ctx)
	case domain.StreamAudit:
		return repos.Events.LatestRadicado(ctx)
	default:
		return "", fmt.Errorf("unknown stream %q", stream)
	}
}

// ParseCode extracts the number of a PREFIX-NNNNN code. Anything that does
// not match ^PREFIX-(\d+)$ exactly reports false.
func ParseCode(prefix, code string) (int64, bool) {
	m := codeFormat.FindStringSubmatch(code)
	if m == nil || m[1] != prefix {
		return 0, false
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Resync raises every counter to at least the number of the latest stored code.
// It repairs counters that lag behind rows written by another generator.
func (g *SequenceGenerator) Resync(ctx context.Context) error {
	return g.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, stream := range domain.AllSequenceStreams {
			latest, err := latestCode(ctx, repos, stream)
			if err != nil {
				return fmt.Errorf("latest %s code: %w", stream, err)
			}
			n, ok := ParseCode(stream.Prefix(), latest)
			if !ok {
				continue
			}
			if err := repos.Sequences.AdvanceTo(ctx, stream, n); err != nil {
				return fmt.Errorf("advance %s: %w", stream, err)
			}
		}
		return nil
	})
}
