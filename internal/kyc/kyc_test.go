package kyc

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/p2pex/internal/apperr"
	"github.com/xtrntr/p2pex/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckOrder(t *testing.T) {
	usd := models.Currency{
		Symbol:         "USD",
		MinOrderAmount: dec("1"),
		MaxOrderAmount: dec("100000"),
	}

	tests := []struct {
		name   string
		tier   int
		amount string
		value  string
		wantOK bool
	}{
		{name: "Tier0WithinLimit", tier: 0, amount: "50", value: "100", wantOK: true},
		{name: "Tier0OverLimit", tier: 0, amount: "50", value: "100.01"},
		{name: "Tier1WithinLimit", tier: 1, amount: "500", value: "1000", wantOK: true},
		{name: "Tier1OverLimit", tier: 1, amount: "500", value: "1500"},
		{name: "Tier2OverLimit", tier: 2, amount: "5000", value: "10001"},
		{name: "Tier3Uncapped", tier: 3, amount: "99999", value: "5000000", wantOK: true},
		{name: "BelowCurrencyMinimum", tier: 3, amount: "0.5", value: "1"},
		{name: "AboveCurrencyMaximum", tier: 3, amount: "100001", value: "100001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOrder(tt.tier, dec(tt.amount), dec(tt.value), usd)
			if tt.wantOK {
				if err != nil {
					t.Errorf("expected admit, got %v", err)
				}
				return
			}
			if !apperr.IsKind(err, apperr.KindPolicyViolation) {
				t.Errorf("expected policy_violation, got %v", err)
			}
		})
	}
}

func TestCheckOrder_NoCurrencyMaximum(t *testing.T) {
	// A zero MaxOrderAmount means the currency itself sets no ceiling.
	c := models.Currency{MinOrderAmount: dec("1")}
	if err := CheckOrder(3, dec("1000000"), dec("1000000"), c); err != nil {
		t.Errorf("expected admit, got %v", err)
	}
}

type fakeStore struct {
	records map[int]*models.KYC
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int]*models.KYC), nextID: 1}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeStore) CreateKYC(ctx context.Context, k *models.KYC) (models.KYC, error) {
	stored := *k
	stored.ID = s.nextID
	s.nextID++
	s.records[stored.ID] = &stored
	return stored, nil
}

func (s *fakeStore) GetKYCForUpdate(ctx context.Context, id int) (models.KYC, error) {
	k, ok := s.records[id]
	if !ok {
		return models.KYC{}, apperr.New(apperr.KindNotFound, "verification %d not found", id)
	}
	return *k, nil
}

// latest record wins: higher id is newer.
func (s *fakeStore) GetLatestKYCByUser(ctx context.Context, userID int) (*models.KYC, error) {
	var latest *models.KYC
	for _, k := range s.records {
		if k.UserID != userID {
			continue
		}
		if latest == nil || k.ID > latest.ID {
			latest = k
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (s *fakeStore) GetLatestApprovedKYC(ctx context.Context, userID int) (*models.KYC, error) {
	var latest *models.KYC
	for _, k := range s.records {
		if k.UserID != userID || k.Status != models.KYCApproved {
			continue
		}
		if latest == nil || k.ID > latest.ID {
			latest = k
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (s *fakeStore) UpdateKYCReview(ctx context.Context, k models.KYC) error {
	if _, ok := s.records[k.ID]; !ok {
		return fmt.Errorf("verification %d not found", k.ID)
	}
	stored := k
	s.records[k.ID] = &stored
	return nil
}

func (s *fakeStore) ListPendingKYC(ctx context.Context) ([]models.KYC, error) {
	var out []models.KYC
	for _, k := range s.records {
		if k.Status == models.KYCPending {
			out = append(out, *k)
		}
	}
	return out, nil
}

var adminUser = models.User{ID: 99, Role: models.RoleAdmin}

func validSubmission() SubmitInput {
	return SubmitInput{
		DocumentType:   "passport",
		DocumentNumber: "P1234567",
		FirstName:      "Alice",
		LastName:       "Example",
		Country:        "US",
	}
}

func TestService_Submit(t *testing.T) {
	svc := NewService(newFakeStore())
	ctx := context.Background()

	k, err := svc.Submit(ctx, 1, validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if k.Status != models.KYCPending || k.Level != 0 {
		t.Errorf("unexpected record: %+v", k)
	}

	// One pending submission at a time.
	_, err = svc.Submit(ctx, 1, validSubmission())
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// Another user is unaffected.
	if _, err := svc.Submit(ctx, 2, validSubmission()); err != nil {
		t.Errorf("second user submit: %v", err)
	}
}

func TestService_Submit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitInput)
	}{
		{name: "UnknownDocumentType", mutate: func(in *SubmitInput) { in.DocumentType = "library_card" }},
		{name: "MissingDocumentNumber", mutate: func(in *SubmitInput) { in.DocumentNumber = "" }},
		{name: "MissingName", mutate: func(in *SubmitInput) { in.FirstName = "" }},
		{name: "MissingCountry", mutate: func(in *SubmitInput) { in.Country = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newFakeStore())
			in := validSubmission()
			tt.mutate(&in)
			_, err := svc.Submit(context.Background(), 1, in)
			if !apperr.IsKind(err, apperr.KindInvalidInput) {
				t.Errorf("expected invalid_input, got %v", err)
			}
		})
	}
}

func TestService_Review(t *testing.T) {
	svc := NewService(newFakeStore())
	ctx := context.Background()

	k, err := svc.Submit(ctx, 1, validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	reviewed, err := svc.Review(ctx, adminUser, k.ID, ReviewInput{Approve: true, Level: 2})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.Status != models.KYCApproved || reviewed.Level != 2 {
		t.Errorf("unexpected approval: %+v", reviewed)
	}
	if reviewed.VerifiedAt == nil || reviewed.ExpiresAt == nil {
		t.Fatalf("approval missing timestamps: %+v", reviewed)
	}
	if got := reviewed.ExpiresAt.Sub(*reviewed.VerifiedAt); got != approvalValidity {
		t.Errorf("expected validity %s, got %s", approvalValidity, got)
	}

	// A decided record cannot be re-reviewed.
	_, err = svc.Review(ctx, adminUser, k.ID, ReviewInput{Approve: true, Level: 3})
	if !apperr.IsKind(err, apperr.KindInvalidTransition) {
		t.Errorf("expected invalid_transition, got %v", err)
	}
}

func TestService_Review_Rejections(t *testing.T) {
	ctx := context.Background()

	newPending := func(t *testing.T) (*Service, models.KYC) {
		t.Helper()
		svc := NewService(newFakeStore())
		k, err := svc.Submit(ctx, 1, validSubmission())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		return svc, k
	}

	t.Run("NonAdmin", func(t *testing.T) {
		svc, k := newPending(t)
		_, err := svc.Review(ctx, models.User{ID: 2, Role: models.RoleAgent}, k.ID,
			ReviewInput{Approve: true, Level: 1})
		if !apperr.IsKind(err, apperr.KindPolicyViolation) {
			t.Errorf("expected policy_violation, got %v", err)
		}
	})

	t.Run("LevelOutOfRange", func(t *testing.T) {
		svc, k := newPending(t)
		for _, level := range []int{0, 4} {
			_, err := svc.Review(ctx, adminUser, k.ID, ReviewInput{Approve: true, Level: level})
			if !apperr.IsKind(err, apperr.KindInvalidInput) {
				t.Errorf("level %d: expected invalid_input, got %v", level, err)
			}
		}
	})

	t.Run("RejectionNeedsReason", func(t *testing.T) {
		svc, k := newPending(t)
		_, err := svc.Review(ctx, adminUser, k.ID, ReviewInput{})
		if !apperr.IsKind(err, apperr.KindInvalidInput) {
			t.Errorf("expected invalid_input, got %v", err)
		}
	})

	t.Run("RejectRecordsReason", func(t *testing.T) {
		svc, k := newPending(t)
		rejected, err := svc.Review(ctx, adminUser, k.ID,
			ReviewInput{RejectionReason: "document illegible"})
		if err != nil {
			t.Fatalf("review: %v", err)
		}
		if rejected.Status != models.KYCRejected || rejected.RejectionReason != "document illegible" {
			t.Errorf("unexpected rejection: %+v", rejected)
		}
	})
}

func TestService_TierFor(t *testing.T) {
	ctx := context.Background()

	t.Run("NoRecord", func(t *testing.T) {
		svc := NewService(newFakeStore())
		tier, err := svc.TierFor(ctx, 1)
		if err != nil || tier != 0 {
			t.Errorf("expected tier 0, got %d (%v)", tier, err)
		}
	})

	t.Run("ApprovedRecord", func(t *testing.T) {
		svc := NewService(newFakeStore())
		k, err := svc.Submit(ctx, 1, validSubmission())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := svc.Review(ctx, adminUser, k.ID, ReviewInput{Approve: true, Level: 2}); err != nil {
			t.Fatalf("review: %v", err)
		}
		tier, err := svc.TierFor(ctx, 1)
		if err != nil || tier != 2 {
			t.Errorf("expected tier 2, got %d (%v)", tier, err)
		}
	})

	t.Run("ExpiredApprovalFallsBackToZero", func(t *testing.T) {
		svc := NewService(newFakeStore())
		k, err := svc.Submit(ctx, 1, validSubmission())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := svc.Review(ctx, adminUser, k.ID, ReviewInput{Approve: true, Level: 2}); err != nil {
			t.Fatalf("review: %v", err)
		}
		// Advance the clock past the approval's validity window.
		svc.now = func() time.Time { return time.Now().Add(approvalValidity + time.Hour) }
		tier, err := svc.TierFor(ctx, 1)
		if err != nil || tier != 0 {
			t.Errorf("expected tier 0 after expiry, got %d (%v)", tier, err)
		}
	})
}
