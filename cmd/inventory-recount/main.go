package main

import (
	"context"
	"flag"
	"log"

	"github.com/mmdatafocus/retail_backend/config"
)

type recountRow struct {
	ProductId int
	Current   int
	Expected  int
}

// Every order counts here regardless of status: the counter moves when a
// line is added, not when the order is paid. This is the counter's replay,
// not the stock ledger's paid-sales stream.
const recountSQL = `
SELECT
	inv.product_id AS product_id,
	inv.quantity AS current,
	COALESCE((SELECT SUM(-oi.quantity)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.product_id = inv.product_id), 0)
	+ COALESCE((SELECT SUM(pi.quantity)
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE pi.product_id = inv.product_id AND p.status = 'Confirmed'), 0)
	+ COALESCE((SELECT SUM(ia.quantity)
		FROM inventory_adjustments ia
		WHERE ia.product_id = inv.product_id), 0)
	AS expected
FROM inventories inv
`

// Compares every inventory counter against a full replay of its movements
// and reports drift. With --apply, rewrites drifted counters to the
// replayed value.
func main() {
	apply := flag.Bool("apply", false, "rewrite drifted counters instead of only reporting")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	ctx := context.Background()

	var rows []recountRow
	if err := db.WithContext(ctx).Raw(recountSQL).Scan(&rows).Error; err != nil {
		log.Fatalf("recount query failed: %v", err)
	}

	drifted := 0
	for _, row := range rows {
		if row.Current == row.Expected {
			continue
		}
		drifted++
		log.Printf("product %d: counter=%d replay=%d (drift %+d)",
			row.ProductId, row.Current, row.Expected, row.Expected-row.Current)
		if *apply {
			err := db.WithContext(ctx).Exec(
				"UPDATE inventories SET quantity = ? WHERE product_id = ?",
				row.Expected, row.ProductId).Error
			if err != nil {
				log.Fatalf("rewriting product %d failed: %v", row.ProductId, err)
			}
		}
	}

	if drifted == 0 {
		log.Printf("checked %d counter(s); no drift", len(rows))
	} else if *apply {
		log.Printf("checked %d counter(s); rewrote %d", len(rows), drifted)
	} else {
		log.Printf("checked %d counter(s); %d drifted (dry run, use --apply to rewrite)", len(rows), drifted)
	}
}
