package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleetbot/internal/core/domain"
	"github.com/fleetops/fleetbot/internal/core/ports"
	"github.com/fleetops/fleetbot/internal/pkg/metrics"
)

const (
	codeLength   = 25
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!#$%&*+-.=?@^_~"
)

// EnrollmentService issues and redeems single-use enrollment codes.
type EnrollmentService struct {
	codes   ports.EnrollmentRegistry
	lockout *LockoutTracker
	rand    io.Reader
	log     zerolog.Logger
}

// NewEnrollmentService wires the registry to the lockout tracker.
func NewEnrollmentService(codes ports.EnrollmentRegistry, lockout *LockoutTracker, log zerolog.Logger) *EnrollmentService {
	return &EnrollmentService{codes: codes, lockout: lockout, rand: rand.Reader, log: log}
}

// Issue generates and stores a fresh code bound to groupID.
func (s *EnrollmentService) Issue(ctx context.Context, groupID string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("issue code: %w", err)
	}
	if err := s.codes.Insert(ctx, domain.EnrollmentCode{Code: code, GroupID: groupID}); err != nil {
		return "", fmt.Errorf("issue code: %w", err)
	}
	s.log.Info().Str("group", groupID).Msg("enrollment code issued")
	return code, nil
}

func (s *EnrollmentService) generate() (string, error) {
	var b strings.Builder
	b.Grow(codeLength)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(s.rand, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Redeem consumes code for p and returns its group. A blocked principal gets
// domain.ErrLocked without the code being touched. An unknown code counts as
// a failed attempt and yields domain.ErrInvalidCredential, or
// domain.ErrLocked when that failure reached the limit. Store errors do not
// count as attempts.
func (s *EnrollmentService) Redeem(ctx context.Context, p domain.Principal, code string) (string, error) {
	if s.lockout.IsBlocked(ctx, p.ID) {
		metrics.EnrollmentAttemptsTotal.WithLabelValues("locked").Inc()
		return "", domain.ErrLocked
	}

	code = strings.TrimSpace(code)
	var groupID string
	err := domain.ErrNotFound
	if code != "" {
		groupID, err = s.codes.Consume(ctx, code)
	}

	switch {
	case err == nil:
		s.lockout.Reset(ctx, p.ID)
		metrics.EnrollmentAttemptsTotal.WithLabelValues("accepted").Inc()
		s.log.Info().Str("principal", p.ID).Str("group", groupID).Msg("enrollment code redeemed")
		return groupID, nil

	case errors.Is(err, domain.ErrNotFound):
		_, locked, ferr := s.lockout.RecordFailure(ctx, p)
		if ferr != nil {
			metrics.EnrollmentAttemptsTotal.WithLabelValues("error").Inc()
			return "", fmt.Errorf("redeem code: %w", ferr)
		}
		if locked {
			metrics.EnrollmentAttemptsTotal.WithLabelValues("locked").Inc()
			return "", domain.ErrLocked
		}
		metrics.EnrollmentAttemptsTotal.WithLabelValues("rejected").Inc()
		return "", domain.ErrInvalidCredential

	default:
		metrics.EnrollmentAttemptsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("redeem code: %w", err)
	}
}

// List returns every outstanding code.
func (s *EnrollmentService) List(ctx context.Context) ([]domain.EnrollmentCode, error) {
	codes, err := s.codes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return codes, nil
}

// Revoke deletes a code without redeeming it.
func (s *EnrollmentService) Revoke(ctx context.Context, code string) error {
	if err := s.codes.Revoke(ctx, code); err != nil {
		return fmt.Errorf("revoke code: %w", err)
	}
	return nil
}
