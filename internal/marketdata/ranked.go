package marketdata

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"crypto-index-lab/internal/domain"
)

// PageOptions bounds ranked-token pagination.
type PageOptions struct {
	MaxPages int // pagination ceiling, at least 1
	PerPage  int // page size, provider maximum is usually 250
}

// DefaultPageOptions covers the top 1000 tokens.
func DefaultPageOptions() PageOptions {
	return PageOptions{MaxPages: 4, PerPage: 250}
}

// RankedTokens walks pages 1..MaxPages in order. A page that keeps failing after
// the client's bounded retries is skipped and pagination continues; an empty
// page ends pagination. The result preserves provider ranking order.
// Only a run where every attempted page failed is an error.
func RankedTokens(ctx context.Context, src PriceSource, opts PageOptions, logger zerolog.Logger) ([]domain.Token, error) {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.PerPage < 1 {
		opts.PerPage = DefaultPageOptions().PerPage
	}

	var all []domain.Token
	var lastErr error
	for page := 1; page <= opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		tokens, err := src.ListRankedTokens(ctx, page, opts.PerPage)
		if err != nil {
			logger.Warn().Err(err).Int("page", page).Msg("skipping ranked token page")
			lastErr = err
			continue
		}
		if len(tokens) == 0 {
			break
		}
		all = append(all, tokens...)
	}
	if len(all) == 0 && lastErr != nil {
		return nil, fmt.Errorf("ranked tokens: %w", lastErr)
	}
	return all, nil
}
