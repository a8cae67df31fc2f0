// Package audio captures microphone PCM through ALSA's arecord and turns it
// into the log-magnitude spectrum consumed by the sampler.
//
// [Analyser] keeps the latest FFT-size samples and, on each read, windows
// them with a periodic Blackman window, transforms with algo-fft, normalises
// magnitudes by the FFT length and smooths them over time before converting
// to dB. [Capture] feeds an Analyser from an arecord child process and
// implements sampler.Source.
package audio
