// Package scoring holds the shared thresholds used by the concentration
// checks and the sequence feasibility pre-screen.
package scoring

// Hard concentration limits. The concentration scorer uses the position and
// geography limits as guardrails on proposed buys; the sequence generator
// uses MaxConcentration as its pre-screen cap on any single security.
const (
	MaxConcentration          = 0.20 // Cap per security during sequence generation
	MaxGeographyConcentration = 0.35 // Cap per geography group
	MaxPositionConcentration  = 0.15 // Cap per position after a proposed buy
)
