// Package session wires a spectrum sampler, a temporal averager, the peak
// analyzer and the tension model into a start/stop measurement lifecycle.
//
// A [Session] is either idle or capturing. [Session.Start] derives the
// frequency window from the spoke configuration, builds a fresh averager and
// starts the sampler; every frame then yields one [Update] carrying the
// tension estimate and its reliability. Configuration is frozen while
// capturing.
package session
