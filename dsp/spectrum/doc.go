// Package spectrum provides the frequency-domain types shared by the
// measurement pipeline.
//
// The package intentionally does not implement FFT itself. Capture backends
// produce full-resolution log-magnitude spectra, and this package turns them
// into [Frame] values restricted to a [Bounds] window, one [Bin] per retained
// FFT bin.
//
// Amplitudes are in dB on the transform's native log scale. Silent bins
// (-Inf) are clamped to [FloorDB] so that averages stay finite.
package spectrum
