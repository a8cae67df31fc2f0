// Package tension converts between spoke vibration frequency and spoke
// tension.
//
// A spoke is modelled as a taut string of length L and mass m, so its
// linear density is mu = m / L and its fundamental frequency is
//
//	f = (1 / 2L) * sqrt(T / mu)
//
// Solving for the tension gives
//
//	T = 4 * m * L * f^2
//
// Tensions are carried in newtons; kilogram-force projections use standard
// gravity [G].
//
// # Usage
//
//	m := tension.MassFromDensity(0.191, tension.Steel.Density(), 0.002)
//	t := tension.FromFrequency(120, m, 0.191)
//	fmt.Println(t.Newton(), t.Kgf())
package tension
