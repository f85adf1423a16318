package audio

import "math"

// silenceThreshold is the linear volume below which output is muted.
const silenceThreshold = 0.01

// volumeToPower maps a linear 0..1 volume to the base-2 exponent used by
// effects.Volume.
func volumeToPower(vol float64) float64 {
	if vol <= silenceThreshold {
		return -10
	}
	return math.Log2(vol)
}

func clampVolume(vol float64) float64 {
	switch {
	case vol < 0:
		return 0
	case vol > 1:
		return 1
	default:
		return vol
	}
}
