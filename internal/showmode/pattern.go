package showmode

import "math"

// Pattern implements the time-driven fallback used when the audio
// source is absent or silent (spec section 4.D). t is wall-clock
// seconds since the worker started.
func Pattern(mode Mode, huePhase, t float64) (newHuePhase float64, lamp0, lamp1 LampCommand) {
	switch mode {
	case ModePulse:
		brightness := clampInt(round(40+30*math.Sin(2*t)), 1, 100)
		newHuePhase = mod1(huePhase + 0.003)
		cmd := LampCommand{Color: HSVToRGB(newHuePhase, 0.8, 1), Brightness: brightness}
		return newHuePhase, cmd, cmd

	case ModeAmbient:
		newHuePhase = mod1(huePhase + 0.001)
		lamp0 = LampCommand{Color: HSVToRGB(newHuePhase, 0.6, 1), Brightness: 50}
		lamp1 = LampCommand{Color: HSVToRGB(mod1(newHuePhase+0.5), 0.6, 1), Brightness: 50}
		return newHuePhase, lamp0, lamp1

	case ModeParty:
		newHuePhase = mod1(huePhase + 0.01)
		idx := int(math.Floor(4*t)) % 2
		if idx < 0 {
			idx += 2
		}
		on := LampCommand{Color: HSVToRGB(newHuePhase, 1, 1), Brightness: 100}
		off := LampCommand{Color: RGB{0, 0, 0}, Brightness: 10}
		if idx == 0 {
			return newHuePhase, on, off
		}
		return newHuePhase, off, on

	default:
		return huePhase, LampCommand{}, LampCommand{}
	}
}
