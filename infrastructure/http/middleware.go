package http

import (
	"net/http"
	"strconv"
	"time"

	"nestchat/auth"
	"nestchat/errors"
)

type rateLimitBody struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// rateLimited guards a mutation with the sliding-window limiter, keyed
// by the authenticated user. Refused attempts still count against the
// window.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.UserID(r.Context())
		result := s.limiter.Check(token)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			s.log.Warn("Rate limit exceeded", "user_id", token)
			s.writeJSON(w, errors.HTTPStatus(errors.ErrRateLimited), rateLimitBody{
				Limit:     result.Limit,
				Remaining: result.Remaining,
				ResetAt:   result.ResetAt,
			})
			return
		}
		next(w, r)
	}
}
