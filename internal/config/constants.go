// Package config holds the physical constants of the social-force model and
// the live, user-tunable simulation parameters.
package config

// TimePeriod is the simulated time covered by one tick.
const TimePeriod = 1.0

// Helbing's social-force constants. Fixed, not user-tunable.
const (
	// A and B scale the exponential agent–agent interaction force.
	A = 2000.0
	B = 0.4

	// Aw and Bw scale the exponential agent–obstacle interaction force.
	Aw = 2000.0
	Bw = 0.8

	// K is the body (penetration) stiffness.
	K = 120000.0

	// K2 is the sliding friction coefficient.
	K2 = 40000.0
)

// Mass bounds for generated agents.
const (
	MassMean      = 60.0
	MassDeviation = 15.0
	MassMin       = 45.0
	MassMax       = 90.0
	PolicemanMass = 80.0
)
