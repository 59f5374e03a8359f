// Package transit provides an embeddable fare collection core for tap-in /
// tap-out public transport systems.
//
// Transit is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - A tap-in / tap-out trip state machine with a single-active-trip
//     guarantee per user and card
//   - Distance-based and flat fare pricing per transport agency
//   - A stored-value balance with an append-only transaction ledger,
//     updated atomically with trip closure
//   - Idempotent top-up reconciliation against a Paystack-style payment
//     gateway
//   - Pluggable lifecycle hooks for audit trails and notifications
//
// # Quick Start
//
// Create a transit core with your preferred store:
//
//	import (
//	    "github.com/mzansipass/transit"
//	    "github.com/mzansipass/transit/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create the core
//	core := transit.New(store,
//	    transit.WithGateway(gateway.NewPaystack(secretKey)),
//	)
//
//	// Start it (runs migrations, initializes hooks)
//	if err := core.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Stop()
//
// # Core Concepts
//
// Users hold a prepaid balance and tap with linked cards:
//
//	user, err := core.RegisterUser(ctx, "thabo@example.com", "Thabo M")
//	card, err := core.IssueCard(ctx, user.ID, "CARD-7741", "commuter card")
//
// Tapping in opens a trip after a balance floor check; tapping out prices
// the trip and debits the fare atomically:
//
//	trip, err := core.TapIn(ctx, transit.TapInRequest{
//	    UserID:    user.ID,
//	    CardToken: card.Token,
//	    Agency:    agency.CodeReaVaya,
//	    Location:  types.GeoPoint{Lat: -26.2041, Lng: 28.0473},
//	})
//
//	result, err := core.TapOut(ctx, transit.TapOutRequest{
//	    UserID:    user.ID,
//	    CardToken: card.Token,
//	    Location:  types.GeoPoint{Lat: -26.1076, Lng: 28.0567},
//	})
//
// Balances are funded through gateway top-ups, verified idempotently:
//
//	session, err := core.InitiateTopup(ctx, user.ID, transit.ZAR(5000))
//	// ... user pays at session.Session.CheckoutURL ...
//	verification, err := core.VerifyTopup(ctx, session.Transaction.Reference)
//
// All amounts are integer minor units (cents) in ZAR.
package transit
