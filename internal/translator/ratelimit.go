package translator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	next    TranslationService
	limiter *rate.Limiter
}

// RateLimited paces calls to next with a token bucket of perSecond requests
// and the given burst.
func RateLimited(next TranslationService, perSecond float64, burst int) TranslationService {
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (r *rateLimited) Name() string { return r.next.Name() }

// Translate blocks until the limiter allows the call or ctx ends.
func (r *rateLimited) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return fail(&ServiceResult{ServiceName: r.Name()}, fmt.Errorf("rate limit: %w", err))
	}
	return r.next.Translate(ctx, req)
}

func (r *rateLimited) IsAvailable(ctx context.Context) error { return r.next.IsAvailable(ctx) }
