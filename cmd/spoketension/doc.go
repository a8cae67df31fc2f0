// Command spoketension measures bicycle spoke tension from the sound of a
// plucked spoke.
//
// Usage:
//
//	spoketension measure            live readings from the microphone
//	spoketension serve              WebSocket stream, /status and /metrics
//	spoketension convert hz 120     frequency to tension for the configured spoke
//	spoketension convert kgf 100    tension to frequency
//	spoketension materials          material presets and linear densities
//	spoketension history            recorded reliable readings
//	spoketension windows            analysis window properties
//	spoketension config init|show|validate
package main
