package lidar

// StatusCode annotates the outcome of the last operation.
type StatusCode int

const (
	StatusReady StatusCode = iota
	// StatusWeak means the signal strength is too low for a reliable distance.
	StatusWeak
	// StatusStrong means the signal saturated the receiver.
	StatusStrong
	// StatusFlood means ambient light saturated the receiver.
	StatusFlood
	StatusCommFail
	StatusNoResponse
	StatusInvalidParameter
	StatusNotReady
)

func (s StatusCode) String() string {
	switch s {
	case StatusReady:
		return "READY"
	case StatusWeak:
		return "Signal weak"
	case StatusStrong:
		return "Signal saturation"
	case StatusFlood:
		return "Ambient light saturation"
	case StatusCommFail:
		return "Communication failure"
	case StatusNoResponse:
		return "No response"
	case StatusInvalidParameter:
		return "Invalid parameter"
	case StatusNotReady:
		return "Not ready"
	default:
		return "OTHER"
	}
}

// SignalVerdict reports whether the status is a signal-quality verdict rather than a fault.
func (s StatusCode) SignalVerdict() bool {
	return s == StatusWeak || s == StatusStrong || s == StatusFlood
}

// Hardware sentinels used by the classifier.
const (
	DefaultWeakFlux uint16 = 100
	// DefaultSaturation is the maximum raw value, reported on receiver overflow.
	DefaultSaturation uint16 = 0xFFFF
	// DefaultFloodMask flags ambient light saturation in the flux high nibble.
	DefaultFloodMask uint16 = 0x8000
	// DefaultTempUnitsPerDegree converts the raw temperature to Celsius.
	DefaultTempUnitsPerDegree = 4
	// DefaultMaxDistance is the rated range in centimeters.
	DefaultMaxDistance uint16 = 1200
)

// Thresholds parameterize the status classification.
type Thresholds struct {
	WeakFlux           uint16 `yaml:"weak_flux"`
	Saturation         uint16 `yaml:"saturation"`
	FloodMask          uint16 `yaml:"flood_mask"`
	TempUnitsPerDegree int    `yaml:"temp_units_per_degree"`
	// MaxDistance bounds a Ready distance; larger readings are reported as
	// distance overflow. Zero disables the check.
	MaxDistance uint16 `yaml:"max_distance"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		WeakFlux:           DefaultWeakFlux,
		Saturation:         DefaultSaturation,
		FloodMask:          DefaultFloodMask,
		TempUnitsPerDegree: DefaultTempUnitsPerDegree,
		MaxDistance:        DefaultMaxDistance,
	}
}

// Measurement is a sanitized sample. Dist is in centimeters and is -1 whenever the
// status is a signal verdict. Temp keeps the raw device units; Celsius is derived.
type Measurement struct {
	Dist    int        `yaml:"dist"`
	Flux    int        `yaml:"flux"`
	Temp    int        `yaml:"temp"`
	Celsius float64    `yaml:"celsius"`
	Status  StatusCode `yaml:"-"`
}

// Valid reports whether the measurement carries a usable distance.
func (m Measurement) Valid() bool {
	return m.Status == StatusReady
}

// Classify turns a raw frame into a sanitized measurement. When commErr is set the
// previous measurement is returned unchanged with StatusCommFail. Rules are applied
// in order and the first match wins.
func (t Thresholds) Classify(frame RawFrame, commErr error, prev Measurement) Measurement {
	if commErr != nil {
		prev.Status = StatusCommFail
		return prev
	}
	m := Measurement{
		Dist:    int(frame.Dist),
		Flux:    int(frame.Flux),
		Temp:    int(int16(frame.Temp)),
		Celsius: t.celsius(frame.Temp),
		Status:  StatusReady,
	}
	switch {
	case frame.Flux < t.WeakFlux:
		m.Status = StatusWeak
		m.Dist = -1
	case frame.Flux == t.Saturation || frame.Dist == t.Saturation:
		m.Status = StatusStrong
		m.Dist = -1
		m.Flux = -1
	case frame.Flux&t.FloodMask != 0:
		m.Status = StatusFlood
		m.Dist = -1
		m.Flux = -1
	case t.MaxDistance > 0 && frame.Dist > t.MaxDistance:
		m.Status = StatusStrong
		m.Dist = -1
	}
	return m
}

func (t Thresholds) celsius(raw uint16) float64 {
	units := t.TempUnitsPerDegree
	if units <= 0 {
		units = DefaultTempUnitsPerDegree
	}
	return float64(int16(raw)) / float64(units)
}
