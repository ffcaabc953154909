package showmode

// Mode names a visual mode. "off" is a valid engine state but has no
// policy here — it stops the worker instead.
type Mode string

const (
	ModeOff     Mode = "off"
	ModePulse   Mode = "pulse"
	ModeAmbient Mode = "ambient"
	ModeParty   Mode = "party"
)

// Valid reports whether m is a recognized mode string, per spec section 6.
func Valid(m string) bool {
	switch Mode(m) {
	case ModePulse, ModeAmbient, ModeParty:
		return true
	default:
		return false
	}
}

// LampCommand is one lamp's intended color and brightness for an iteration.
type LampCommand struct {
	Color      RGB
	Brightness int
}

// scale returns intensity/10 as used throughout the mode policies.
func scale(intensity int) float64 {
	return float64(intensity) / 10
}

// energy normalizes rms into [0, 1].
func energy(rms float32) float64 {
	return clampFloat(float64(rms)*5, 0, 1)
}

// Pulse implements the pulse mode policy. Returns the updated hue phase
// and the (identical) command sent to both lamps.
func Pulse(huePhase float64, intensity int, rms float32, beat bool) (newHuePhase float64, cmd LampCommand) {
	s := scale(intensity)
	e := energy(rms)

	var brightness int
	if beat {
		newHuePhase = mod1(huePhase + 0.08)
		brightness = round(100 * s)
	} else {
		newHuePhase = mod1(huePhase + 0.002)
		brightness = round(clampFloat(float64(rms)*500, 20, 70) * s)
	}

	var base float64
	if e > 0.5 {
		base = 0.0 + e*0.1
	} else {
		base = 0.6 + (1-e)*0.15
	}
	hue := mod1(base + newHuePhase*0.3)
	sat := 0.7 + 0.3*s

	return newHuePhase, LampCommand{Color: HSVToRGB(hue, sat, 1.0), Brightness: clampInt(brightness, 1, 100)}
}

// Ambient implements the ambient mode policy. Lamp 0 uses the returned
// hue phase directly; lamp 1 uses its complement.
func Ambient(huePhase float64, intensity int, rms float32) (newHuePhase float64, lamp0, lamp1 LampCommand) {
	s := scale(intensity)
	e := energy(rms)

	speed := 0.001 + e*0.005
	newHuePhase = mod1(huePhase + speed)

	sat := 0.4 + 0.3*e
	brightness := clampInt(round((30+50*e)*s), 1, 100)

	lamp0 = LampCommand{Color: HSVToRGB(newHuePhase, sat, 1.0), Brightness: brightness}
	lamp1 = LampCommand{Color: HSVToRGB(mod1(newHuePhase+0.5), sat, 1.0), Brightness: brightness}
	return newHuePhase, lamp0, lamp1
}

// Party implements the party mode policy. beatCount is the engine's
// running beat counter, used to alternate which lamp flashes.
func Party(huePhase float64, intensity int, rms float32, beat bool, beatCount uint64) (newHuePhase float64, lamp0, lamp1 LampCommand) {
	s := scale(intensity)
	e := energy(rms)

	switch {
	case beat:
		newHuePhase = mod1(huePhase + 0.15)
		flash := int(beatCount % 2)
		flashCmd := LampCommand{Color: HSVToRGB(newHuePhase, 1, 1), Brightness: clampInt(round(100*s), 1, 100)}
		otherCmd := LampCommand{Color: HSVToRGB(mod1(newHuePhase+0.5), 1, 1), Brightness: clampInt(round(40*s), 1, 100)}
		if flash == 0 {
			lamp0, lamp1 = flashCmd, otherCmd
		} else {
			lamp0, lamp1 = otherCmd, flashCmd
		}
	case e > 0.8:
		newHuePhase = huePhase
		white := LampCommand{Color: RGB{255, 255, 255}, Brightness: clampInt(round(100*s), 1, 100)}
		lamp0, lamp1 = white, white
	default:
		newHuePhase = huePhase
		floor := 40 * e
		if floor < 10 {
			floor = 10
		}
		cmd := LampCommand{Color: HSVToRGB(huePhase, 0.8, 1), Brightness: clampInt(round(floor*s), 1, 100)}
		lamp0, lamp1 = cmd, cmd
	}
	return newHuePhase, lamp0, lamp1
}

// round matches the spec's "round" (round-half-away-from-zero is
// sufficient since all inputs here are non-negative).
func round(v float64) int {
	return int(v + 0.5)
}
