package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pharmatrace/internal/apperr"
	"pharmatrace/internal/models"
)

func testBatch(id, number string) *models.Batch {
	return &models.Batch{
		ID:          id,
		BatchNumber: number,
		Name:        "Paracetamol 500mg",
		ExpiryDate:  time.Now().AddDate(2, 0, 0),
	}
}

func TestMemoryBatchUniqueness(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.CreateBatch(ctx, testBatch("b-1", "BATCH100")); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	err := repo.CreateBatch(ctx, testBatch("b-2", "BATCH100"))
	var dup *apperr.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected DuplicateKeyError, got %v", err)
	}
	if dup.Field != "batch_number" {
		t.Errorf("Expected field batch_number, got %q", dup.Field)
	}
}

// Anchor ids differing only by case must resolve deterministically so the
// same scanned code always lands on the same batch.
func TestMemoryAnchorFoldDeterministic(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := testBatch("b-1", "BATCH100")
	first.Anchor = models.Anchor{AnchorID: "BC_abcDEF123"}
	second := testBatch("b-2", "BATCH200")
	second.Anchor = models.Anchor{AnchorID: "BC_ABCdef123"}
	if err := repo.CreateBatch(ctx, first); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if err := repo.CreateBatch(ctx, second); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		got, err := repo.GetBatchByAnchorIDFold(ctx, "bc_abcdef123")
		if err != nil {
			t.Fatalf("GetBatchByAnchorIDFold failed: %v", err)
		}
		if got.ID != "b-1" {
			t.Fatalf("Expected lowest batch id b-1, got %q", got.ID)
		}
	}
}

func TestMemoryLedgerUniqueness(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := &models.CustodyLedger{ID: "ledger-1", BatchID: "b-1", BatchNumber: "BATCH100"}
	if err := repo.CreateLedger(ctx, first); err != nil {
		t.Fatalf("CreateLedger failed: %v", err)
	}

	err := repo.CreateLedger(ctx, &models.CustodyLedger{ID: "ledger-2", BatchID: "b-1", BatchNumber: "BATCH100"})
	var dup *apperr.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected DuplicateKeyError, got %v", err)
	}
}

// Concurrent appends may interleave in any order, but every step must land.
func TestMemoryAppendStepLosesNothing(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.CreateLedger(ctx, &models.CustodyLedger{ID: "ledger-1", BatchID: "b-1", BatchNumber: "BATCH100"}); err != nil {
		t.Fatalf("CreateLedger failed: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			step := models.CustodyStep{ActorID: "actor", Action: models.ActionStored, Timestamp: time.Now()}
			if err := repo.AppendStep(ctx, "ledger-1", step, models.CurrentLocation{ActorID: "actor"}); err != nil {
				t.Errorf("AppendStep failed: %v", err)
			}
		}()
	}
	wg.Wait()

	ledger, err := repo.GetLedger(ctx, "ledger-1")
	if err != nil {
		t.Fatalf("GetLedger failed: %v", err)
	}
	if len(ledger.Steps) != writers {
		t.Fatalf("Expected %d steps, got %d", writers, len(ledger.Steps))
	}
}

func TestMemoryRecallFirstWins(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.CreateBatch(ctx, testBatch("b-1", "BATCH100")); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	if err := repo.MarkBatchRecalled(ctx, "b-1", "contamination", "admin-1"); err != nil {
		t.Fatalf("MarkBatchRecalled failed: %v", err)
	}
	if err := repo.MarkBatchRecalled(ctx, "b-1", "second reason", "admin-2"); err != nil {
		t.Fatalf("Repeated recall must be a no-op, got %v", err)
	}

	batch, err := repo.GetBatch(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if batch.RecallReason != "contamination" {
		t.Errorf("Expected the first recall reason to stick, got %q", batch.RecallReason)
	}
}

// Clones returned by the store must be isolated from caller mutation.
func TestMemoryReturnsClones(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	if err := repo.CreateBatch(ctx, testBatch("b-1", "BATCH100")); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	first, err := repo.GetBatch(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	first.Name = "mutated"

	second, err := repo.GetBatch(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if second.Name != "Paracetamol 500mg" {
		t.Errorf("Stored batch was mutated through a returned clone: %q", second.Name)
	}
}

func TestMemorySignatureRevocation(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	record := &models.SignatureRecord{
		ID:         "sig-1",
		TargetType: "batch",
		TargetID:   "b-1",
		Status:     models.SignatureActive,
	}
	if err := repo.CreateSignature(ctx, record); err != nil {
		t.Fatalf("CreateSignature failed: %v", err)
	}

	if err := repo.RevokeSignature(ctx, "sig-1", "key compromise", "admin-1"); err != nil {
		t.Fatalf("RevokeSignature failed: %v", err)
	}

	stored, err := repo.GetSignature(ctx, "sig-1")
	if err != nil {
		t.Fatalf("GetSignature failed: %v", err)
	}
	if stored.Status != models.SignatureRevoked {
		t.Errorf("Expected revoked status, got %q", stored.Status)
	}

	// Revocation is terminal and idempotent.
	if err := repo.RevokeSignature(ctx, "sig-1", "again", "admin-1"); err != nil {
		t.Fatalf("Repeated revocation must be a no-op, got %v", err)
	}
}
