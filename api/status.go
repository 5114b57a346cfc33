// Package api holds the JSON results printed by scoreledger.
package api

type Status struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// Kind classifies Error, see ledger.Kind.
	Kind string `json:"kind,omitempty"`
}
