package series

const (
	// DefaultCapacity bounds the number of points kept by a Buffer.
	DefaultCapacity = 200

	DefaultThreshold    = 1.0
	DefaultWindow       = 3
	DefaultAlarmColor   = "red"
	DefaultNeutralColor = "rgba(0,0,0,0.1)"
)

// Options carries the user-adjustable settings every buffer operation reads.
type Options struct {
	Threshold    float64 `json:"threshold"`
	Channel      int     `json:"channel"`
	Smoothing    bool    `json:"smoothing"`
	Window       int     `json:"window"`
	AlarmColor   string  `json:"alarm_color"`
	NeutralColor string  `json:"neutral_color"`
}

// DefaultOptions returns the settings a fresh dashboard starts with.
func DefaultOptions() Options {
	return Options{
		Threshold:    DefaultThreshold,
		Channel:      0,
		Smoothing:    false,
		Window:       DefaultWindow,
		AlarmColor:   DefaultAlarmColor,
		NeutralColor: DefaultNeutralColor,
	}
}

// ColorFor tags a score against the configured threshold.
func (o Options) ColorFor(score float64) string {
	if score > o.Threshold {
		return o.alarm()
	}
	return o.neutral()
}

// IsAlarm reports whether score would be tagged with the alarm color.
func (o Options) IsAlarm(score float64) bool {
	return score > o.Threshold
}

func (o Options) alarm() string {
	if o.AlarmColor == "" {
		return DefaultAlarmColor
	}
	return o.AlarmColor
}

func (o Options) neutral() string {
	if o.NeutralColor == "" {
		return DefaultNeutralColor
	}
	return o.NeutralColor
}
