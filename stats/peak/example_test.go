package peak_test

import (
	"fmt"

	"github.com/cwbudde/spoke-tension/dsp/spectrum"
	"github.com/cwbudde/spoke-tension/stats/peak"
)

func ExampleAnalyze() {
	r := peak.Analyze([]spectrum.Bin{
		{FrequencyHz: 100, AmplitudeDB: -60},
		{FrequencyHz: 200, AmplitudeDB: -10},
		{FrequencyHz: 300, AmplitudeDB: -60},
	})
	fmt.Printf("peak=%.0f Hz score=%.2f reliable=%v\n", r.FrequencyHz, r.Score, r.Reliable(peak.DefaultThreshold))
	// Output:
	// peak=200 Hz score=1.41 reliable=false
}
