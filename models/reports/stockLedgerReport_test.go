package reports

import (
	"testing"
	"time"

	"github.com/mmdatafocus/retail_backend/models"
)

func mv(refType models.StockReferenceType, id int, day int, qty int) StockMovement {
	return StockMovement{
		ReferenceType: refType,
		ReferenceId:   id,
		Date:          time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
		Quantity:      qty,
	}
}

func TestBuildStockLedgerEmpty(t *testing.T) {
	lines, ending := BuildStockLedger(7, nil)
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(lines))
	}
	if ending != 7 {
		t.Fatalf("ending balance should equal starting balance, got %d", ending)
	}
}

func TestBuildStockLedgerChronologicalWalk(t *testing.T) {
	// deliberately out of order
	movements := []StockMovement{
		mv(models.StockReferenceTypeSale, 11, 20, -3),
		mv(models.StockReferenceTypePurchase, 4, 5, 50),
		mv(models.StockReferenceTypeAdjustment, 2, 12, -10),
		mv(models.StockReferenceTypeSale, 9, 15, -5),
	}

	lines, ending := BuildStockLedger(10, movements)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}

	wantBalances := []int{60, 50, 45, 42}
	for i, want := range wantBalances {
		if lines[i].Balance != want {
			t.Fatalf("line %d: balance %d, want %d", i, lines[i].Balance, want)
		}
	}
	if ending != 42 {
		t.Fatalf("ending balance %d, want 42", ending)
	}

	for i := 1; i < len(lines); i++ {
		if lines[i].Date.Before(lines[i-1].Date) {
			t.Fatalf("lines not chronological at index %d", i)
		}
	}
}

func TestBuildStockLedgerDeterministicTieBreak(t *testing.T) {
	// same day: ADJ < PO < SO lexicographically, then id ascending
	movements := []StockMovement{
		mv(models.StockReferenceTypeSale, 3, 10, -1),
		mv(models.StockReferenceTypeAdjustment, 8, 10, 4),
		mv(models.StockReferenceTypePurchase, 1, 10, 20),
		mv(models.StockReferenceTypeAdjustment, 2, 10, -2),
	}

	first, _ := BuildStockLedger(0, movements)

	// shuffled input must replay identically
	shuffled := []StockMovement{movements[2], movements[0], movements[3], movements[1]}
	second, _ := BuildStockLedger(0, shuffled)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("replay not reproducible at line %d: %+v vs %+v", i, first[i], second[i])
		}
	}

	wantOrder := []int{2, 8, 1, 3}
	for i, id := range wantOrder {
		if first[i].ReferenceId != id {
			t.Fatalf("tie-break order wrong at %d: got id %d, want %d", i, first[i].ReferenceId, id)
		}
	}
}

func TestBuildStockLedgerDoesNotMutateInput(t *testing.T) {
	movements := []StockMovement{
		mv(models.StockReferenceTypeSale, 2, 3, -1),
		mv(models.StockReferenceTypePurchase, 1, 1, 10),
	}
	BuildStockLedger(0, movements)
	if movements[0].ReferenceId != 2 || movements[1].ReferenceId != 1 {
		t.Fatal("input slice was reordered")
	}
}

func TestBuildStockLedgerNegativeRunningBalance(t *testing.T) {
	// the replay reports what the movements say, even below zero;
	// guarding against oversell is the writers' job, not the reader's
	movements := []StockMovement{
		mv(models.StockReferenceTypeSale, 1, 2, -5),
	}
	lines, ending := BuildStockLedger(3, movements)
	if lines[0].Balance != -2 || ending != -2 {
		t.Fatalf("got balance %d ending %d, want -2", lines[0].Balance, ending)
	}
}
