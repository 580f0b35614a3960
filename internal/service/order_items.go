package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"

	"kart-orders/internal/config"
	"kart-orders/internal/model"
)

// maxLineQuantity is the largest quantity the order_items.quantity and
// products.stock INTEGER columns can hold.
const maxLineQuantity = math.MaxInt32

// orderLine is a normalised request line.
type orderLine struct {
	ProductID int64
	Quantity  int
}

// normalizeItems coerces, filters and merges request lines. Lines with a
// missing product id or non-positive quantity are dropped or rejected per
// policy. Quantities of repeated product ids are summed and the result is
// sorted by product id, which fixes the row lock order for reservations.
// A line or merged sum above maxLineQuantity is always rejected.
func normalizeItems(req *model.OrderRequest, policy string) ([]orderLine, error) {
	if req == nil {
		return nil, model.ErrNoItems
	}

	merged := make(map[int64]int64, len(req.Items))
	for i, item := range req.Items {
		reason := ""
		switch {
		case !item.ProductID.Valid || item.ProductID.Value <= 0:
			reason = "productId must be a positive integer"
		case !item.Quantity.Valid || item.Quantity.Value <= 0:
			reason = "quantity must be a positive integer"
		}
		if reason != "" {
			if policy == config.MalformedItemsReject {
				return nil, model.NewInvalidItemError(i, reason)
			}
			continue
		}

		// Both operands are at most maxLineQuantity here, so the sum cannot wrap.
		if item.Quantity.Value > maxLineQuantity ||
			merged[item.ProductID.Value]+item.Quantity.Value > maxLineQuantity {
			return nil, model.NewInvalidItemError(i, fmt.Sprintf("quantity must not exceed %d", maxLineQuantity))
		}
		merged[item.ProductID.Value] += item.Quantity.Value
	}

	if len(merged) == 0 {
		return nil, model.ErrNoItems
	}

	lines := make([]orderLine, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, orderLine{ProductID: id, Quantity: int(qty)})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	return lines, nil
}

func lineProductIDs(lines []orderLine) []int64 {
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}

// fingerprint identifies the merged content of a request, so the same
// Idempotency-Key sent with different items can be told apart from a retry.
func fingerprint(lines []orderLine) string {
	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(strconv.FormatInt(l.ProductID, 10)))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.Itoa(l.Quantity)))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
