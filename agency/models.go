// Package agency defines transport agency entities and the closed set of
// agency codes the fare engine prices for.
package agency

import (
	"github.com/mzansipass/transit/id"
	"github.com/mzansipass/transit/types"
)

// Code selects an agency's pricing policy. The set is closed: the fare
// engine dispatches on it and rejects anything it does not recognize.
type Code string

const (
	// CodeReaVaya is the Rea Vaya BRT network (distance-linear pricing).
	CodeReaVaya Code = "rea_vaya"
	// CodeGautrain is the Gautrain rail network (flat-rate placeholder
	// until zone-based pricing lands).
	CodeGautrain Code = "gautrain"
)

// Agency is a transport operator whose vehicles accept taps.
type Agency struct {
	types.Entity
	ID     id.AgencyID `json:"id"`
	Name   string      `json:"name"`
	Code   Code        `json:"code"`
	Email  string      `json:"email,omitempty"`
	Phone  string      `json:"phone,omitempty"`
	Active bool        `json:"active"`
}
