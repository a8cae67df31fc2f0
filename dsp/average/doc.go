// Package average maintains a sliding time window of spectrum frames and
// their positional mean.
//
// Every call to [Averager.Add] recomputes the full mean over the frames that
// remain inside the window; there is no exponential decay approximation.
//
// Averaging is positional: amplitude i of the output is the mean of
// amplitude i of every retained frame. Frames are assumed to share the same
// bin count and frequency axis, which holds while the capture bounds are
// fixed. Frames of a different shape are not re-aligned by frequency; they
// are counted by [Averager.Mismatches] for diagnostics.
package average
