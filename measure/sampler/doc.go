// Package sampler polls a spectrum source at display cadence and emits the
// bins that fall inside a frequency window.
//
// A [Sampler] owns at most one capture at a time. [Sampler.Start] acquires a
// [Source] through an [Opener], and one goroutine then reads a full
// spectrum on every tick, keeps the bins inside the configured
// [spectrum.Bounds] and publishes a [spectrum.Frame] to subscribers.
//
// Delivery is synchronous and FIFO on the capture goroutine: a subscriber
// callback finishes before the next tick is serviced. [Sampler.Stop] returns
// only after the capture goroutine exited and the source was closed, so no
// frame is delivered after Stop returns. Stop must not be called from a
// subscriber callback.
//
// Failures to acquire the device wrap [ErrCaptureUnavailable]; they are
// returned from Start and also published as an [Event] so stream consumers
// see them on the same channel as frames. A read failure during capture releases the device
// and is published as an [Event] carrying a [CaptureError] of kind
// [KindDeviceLost]; the sampler is then stopped and does not retry.
package sampler
