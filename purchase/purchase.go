/*
Package purchase applies completed payments to wallets.

PURPOSE:
  The payment provider (Stripe-style) confirms purchases out of band by
  webhook. This package is the only entry point through which a payment
  adds wallet resources: Reconciler.Complete grants the purchased
  bundle, idempotently per provider event id, so a retried webhook
  never double-grants.

PACKAGES:
  A small static catalog maps package codes to resource bundles. The
  provider charges money; this side only cares which bundle the code
  stands for.

SEE ALSO:
  - wallet/ledger.go: Grant, where the idempotency actually lives
*/
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/saga/wallet-engine/invite"
	"github.com/saga/wallet-engine/wallet"
)

// =============================================================================
// CATALOG
// =============================================================================

// Package is a purchasable bundle of wallet resources.
type Package struct {
	Code   string
	Name   string
	Grants wallet.Bundle
}

// Catalog is the set of packages the provider can sell. Keyed by the
// code the provider echoes back in its webhook payload.
type Catalog map[string]Package

// DefaultCatalog mirrors the product's storefront.
func DefaultCatalog() Catalog {
	return Catalog{
		"saga-starter": {
			Code: "saga-starter", Name: "Starter",
			Grants: wallet.Bundle{
				wallet.ResourceProjectVouchers:  1,
				wallet.ResourceFacilitatorSeats: 1,
				wallet.ResourceStorytellerSeats: 2,
			},
		},
		"saga-family": {
			Code: "saga-family", Name: "Family",
			Grants: wallet.Bundle{
				wallet.ResourceProjectVouchers:  1,
				wallet.ResourceFacilitatorSeats: 2,
				wallet.ResourceStorytellerSeats: 8,
			},
		},
		"seat-facilitator": {
			Code: "seat-facilitator", Name: "Extra facilitator seat",
			Grants: wallet.Bundle{wallet.ResourceFacilitatorSeats: 1},
		},
		"seat-storyteller": {
			Code: "seat-storyteller", Name: "Extra storyteller seat",
			Grants: wallet.Bundle{wallet.ResourceStorytellerSeats: 1},
		},
	}
}

// ErrUnknownPackage is returned for a package code outside the catalog.
var ErrUnknownPackage = errors.New("unknown package code")

// =============================================================================
// RECONCILER
// =============================================================================

// CompletedPurchase is the normalized shape of a provider confirmation.
type CompletedPurchase struct {
	// EventID is the provider-supplied event id. Grant idempotency is
	// keyed on it.
	EventID     string
	UserID      wallet.UserID
	PackageCode string
}

// Result reports what a webhook delivery did.
type Result struct {
	Applied bool // false when the event had already been processed
	Granted wallet.Bundle
}

// Reconciler turns provider confirmations into wallet grants.
type Reconciler struct {
	ledger   *wallet.Ledger
	catalog  Catalog
	notifier invite.Notifier
}

func NewReconciler(ledger *wallet.Ledger, catalog Catalog, notifier invite.Notifier) *Reconciler {
	return &Reconciler{ledger: ledger, catalog: catalog, notifier: notifier}
}

// Complete applies a confirmed purchase to the buyer's wallet.
// Idempotent per event id: replaying the same event changes the balance
// only once and reports Applied == false on the replay.
func (r *Reconciler) Complete(ctx context.Context, p CompletedPurchase) (Result, error) {
	if p.EventID == "" {
		return Result{}, fmt.Errorf("provider event id required")
	}
	pkg, ok := r.catalog[p.PackageCode]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownPackage, p.PackageCode)
	}

	txs, err := r.ledger.Grant(ctx, p.UserID, pkg.Grants, wallet.TxPurchase,
		"purchase:"+p.EventID, "package "+pkg.Code, "provider")
	if err != nil {
		return Result{}, err
	}
	if len(txs) == 0 {
		log.Printf("[Purchase] replayed event %s for %s, already applied", p.EventID, p.UserID)
		return Result{Applied: false, Granted: pkg.Grants}, nil
	}

	r.notifier.Notify(ctx, invite.Event{
		Type:    invite.EventResourcesGranted,
		ActorID: string(p.UserID),
		Context: map[string]string{"package": pkg.Code, "event_id": p.EventID},
	})
	return Result{Applied: true, Granted: pkg.Grants}, nil
}

// AdminGrant adds resources outside of a purchase (support credit,
// promo). Idempotent per the caller-supplied reference.
func (r *Reconciler) AdminGrant(ctx context.Context, userID wallet.UserID, bundle wallet.Bundle, ref, reason, actor string) (Result, error) {
	if ref == "" {
		return Result{}, fmt.Errorf("grant reference required")
	}
	txs, err := r.ledger.Grant(ctx, userID, bundle, wallet.TxGrant, "admin:"+ref, reason, actor)
	if err != nil {
		return Result{}, err
	}
	return Result{Applied: len(txs) > 0, Granted: bundle}, nil
}
