package portalapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/curalink/portal-core/internal/domain"
)

type PatientService struct {
	client *Client
}

// Get fetches the full patient snapshot: appointments, procedures, invoices
// and message history in one read.
func (s *PatientService) Get(ctx context.Context, patientID string) (*domain.PatientSnapshot, error) {
	if patientID == "" {
		return nil, ErrMissingIDParameter
	}

	snap := &domain.PatientSnapshot{}
	path := fmt.Sprintf("/patients/%s", patientID)
	if err := s.client.do(ctx, http.MethodGet, path, nil, snap); err != nil {
		return nil, err
	}

	return snap, nil
}
