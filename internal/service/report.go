package service

import (
	"context"

	"github.com/mmynk/storefront/internal/models"
	"github.com/mmynk/storefront/internal/pricing"
	"github.com/mmynk/storefront/internal/storage"
)

// PaidCartReport is one paid cart as shown to admins.
type PaidCartReport struct {
	Cart models.Cart
	// Owner is nil if the account could not be loaded.
	Owner *models.User
	Lines []models.LineDetail
	// Quote uses product prices at report time, not at payment time.
	Quote pricing.Quote
}

// ListPaidCarts returns every paid cart, most recently paid first, read
// from a single snapshot.
func (s *CartService) ListPaidCarts(ctx context.Context) ([]PaidCartReport, error) {
	var reports []PaidCartReport
	err := s.store.View(ctx, func(tx storage.Tx) error {
		carts, err := tx.ListPaidCarts(ctx)
		if err != nil {
			return err
		}

		ownerIDs := make([]string, 0, len(carts))
		seen := make(map[string]bool, len(carts))
		for _, c := range carts {
			if !seen[c.UserID] {
				seen[c.UserID] = true
				ownerIDs = append(ownerIDs, c.UserID)
			}
		}
		owners, err := tx.GetUsersByIDs(ctx, ownerIDs)
		if err != nil {
			return err
		}

		reports = make([]PaidCartReport, 0, len(carts))
		for _, c := range carts {
			lines, err := tx.ListLineDetails(ctx, c.ID)
			if err != nil {
				return err
			}
			reports = append(reports, PaidCartReport{
				Cart:  c,
				Owner: owners[c.UserID],
				Lines: lines,
				Quote: s.quote(lines),
			})
		}
		return nil
	})
	if err != nil {
		return nil, classify("list paid carts", err)
	}

	s.logger.Debug("Paid carts listed", "count", len(reports))
	return reports, nil
}
