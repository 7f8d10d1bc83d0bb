package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/paylinks/pricechange/internal/domain/pricechange"
	ierr "github.com/paylinks/pricechange/internal/errors"
)

// approvalTokenBytes is the entropy of an approval token
const approvalTokenBytes = 32

// ApprovalTokenService mints and checks the single-use secrets behind approval links
type ApprovalTokenService interface {
	GenerateToken() (string, error)

	// ValidateToken returns the record a token belongs to while its approval is still open.
	// Consumed, unknown and withdrawn tokens all fail with ErrNotFound.
	ValidateToken(ctx context.Context, token string) (*pricechange.PriceChange, error)
}

type approvalTokenService struct {
	ServiceParams
}

func NewApprovalTokenService(params ServiceParams) ApprovalTokenService {
	return &approvalTokenService{ServiceParams: params}
}

// GenerateToken returns a URL-safe random token. Uniqueness is enforced by the store.
func (s *approvalTokenService) GenerateToken() (string, error) {
	buf := make([]byte, approvalTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to generate approval token").
			Mark(ierr.ErrSystem)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *approvalTokenService) ValidateToken(ctx context.Context, token string) (*pricechange.PriceChange, error) {
	if token == "" {
		return nil, ierr.NewError("approval token is required").
			WithHint("Approval link is invalid or has already been used").
			Mark(ierr.ErrNotFound)
	}

	pc, err := s.PriceChangeRepo.GetByApprovalToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if !pc.IsAwaitingApproval() {
		return nil, ierr.NewError("approval token is no longer valid").
			WithHint("Approval link is invalid or has already been used").
			WithReportableDetails(map[string]any{
				"price_change_id":        pc.ID,
				"price_change_status":    pc.PriceChangeStatus,
				"client_approval_status": pc.ClientApprovalStatus,
			}).
			Mark(ierr.ErrNotFound)
	}

	return pc, nil
}
