package reports

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
)

// StockMovement is one signed stock change from any of the three sources:
// paid-order items (negative), confirmed purchase items (positive),
// adjustments (either sign).
type StockMovement struct {
	ReferenceType models.StockReferenceType `json:"reference_type"`
	ReferenceId   int                       `json:"reference_id"`
	Reference     string                    `json:"reference"`
	Date          time.Time                 `json:"date"`
	Quantity      int                       `json:"quantity"`
}

type StockLedgerLine struct {
	Date          time.Time                 `json:"date"`
	ReferenceType models.StockReferenceType `json:"reference_type"`
	ReferenceId   int                       `json:"reference_id"`
	Reference     string                    `json:"reference"`
	Change        int                       `json:"change"`
	Balance       int                       `json:"balance"`
}

type StockLedgerReport struct {
	ProductId       int               `json:"product_id"`
	From            time.Time         `json:"from"`
	To              time.Time         `json:"to"`
	StartingBalance int               `json:"starting_balance"`
	Lines           []StockLedgerLine `json:"lines"`
	EndingBalance   int               `json:"ending_balance"`
}

// BuildStockLedger is the pure replay: sort the movements chronologically
// (ties broken by reference type then id, so the result is reproducible)
// and walk a running balance from the starting balance. It never reads the
// database and never mutates its inputs.
func BuildStockLedger(startingBalance int, movements []StockMovement) ([]StockLedgerLine, int) {
	sorted := make([]StockMovement, len(movements))
	copy(sorted, movements)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		if sorted[i].ReferenceType != sorted[j].ReferenceType {
			return sorted[i].ReferenceType < sorted[j].ReferenceType
		}
		return sorted[i].ReferenceId < sorted[j].ReferenceId
	})

	balance := startingBalance
	lines := make([]StockLedgerLine, 0, len(sorted))
	for _, m := range sorted {
		balance += m.Quantity
		lines = append(lines, StockLedgerLine{
			Date:          m.Date,
			ReferenceType: m.ReferenceType,
			ReferenceId:   m.ReferenceId,
			Reference:     m.Reference,
			Change:        m.Quantity,
			Balance:       balance,
		})
	}
	return lines, balance
}

const startingBalanceSQL = `
SELECT
	COALESCE((SELECT SUM(-oi.quantity)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.product_id = @productId AND o.status = 'Paid' AND o.order_date < @fromDate), 0)
	+ COALESCE((SELECT SUM(pi.quantity)
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE pi.product_id = @productId AND p.status = 'Confirmed' AND p.updated_at < @fromDate), 0)
	+ COALESCE((SELECT SUM(ia.quantity)
		FROM inventory_adjustments ia
		WHERE ia.product_id = @productId AND ia.created_at < @fromDate), 0)
	AS starting_balance
`

const movementsSQL = `
SELECT 'SO' AS reference_type, o.id AS reference_id, o.order_number AS reference,
	o.order_date AS date, -oi.quantity AS quantity
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
WHERE oi.product_id = @productId AND o.status = 'Paid'
	AND o.order_date >= @fromDate AND o.order_date < @toDate

UNION ALL

SELECT 'PO' AS reference_type, p.id AS reference_id, p.purchase_number AS reference,
	p.updated_at AS date, pi.quantity AS quantity
FROM purchase_items pi
JOIN purchases p ON p.id = pi.purchase_id
WHERE pi.product_id = @productId AND p.status = 'Confirmed'
	AND p.updated_at >= @fromDate AND p.updated_at < @toDate

UNION ALL

SELECT 'ADJ' AS reference_type, ia.id AS reference_id, ia.reason AS reference,
	ia.created_at AS date, ia.quantity AS quantity
FROM inventory_adjustments ia
WHERE ia.product_id = @productId AND ia.created_at >= @fromDate AND ia.created_at < @toDate
`

// FetchStockMovements reads the raw movements for a product in [from, to).
// Only paid orders and confirmed purchases count; pending and canceled
// documents never show, even though pending lines have already moved the
// live counter. Sale lines date from the order's order_date, received
// purchases from the purchase's updated_at (when it was confirmed),
// adjustments from created_at.
func FetchStockMovements(ctx context.Context, productId int, from time.Time, to time.Time) ([]StockMovement, error) {
	db := config.GetDB()
	var movements []StockMovement
	err := db.WithContext(ctx).Raw(movementsSQL,
		map[string]interface{}{"productId": productId, "fromDate": from, "toDate": to},
	).Scan(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

// GetStockLedger reconstructs the per-product ledger for [from, to). It is a
// pure read: the starting balance is summed from movements before the window
// and the lines are replayed on top of it, so the same inputs always yield
// the same report.
func GetStockLedger(ctx context.Context, productId int, from time.Time, to time.Time) (*StockLedgerReport, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	var startingBalance int
	err := db.WithContext(ctx).Raw(startingBalanceSQL,
		map[string]interface{}{"productId": productId, "fromDate": from},
	).Scan(&startingBalance).Error
	if err != nil {
		config.LogError(logger, "reports", "GetStockLedger", "summing starting balance", productId, err)
		return nil, err
	}

	movements, err := FetchStockMovements(ctx, productId, from, to)
	if err != nil {
		config.LogError(logger, "reports", "GetStockLedger", "fetching movements", productId, err)
		return nil, err
	}

	lines, ending := BuildStockLedger(startingBalance, movements)

	return &StockLedgerReport{
		ProductId:       productId,
		From:            from,
		To:              to,
		StartingBalance: startingBalance,
		Lines:           lines,
		EndingBalance:   ending,
	}, nil
}
