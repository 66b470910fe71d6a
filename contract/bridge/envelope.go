package bridge

// Envelope pairs a channel name with a payload for one event in transit.
// Payload holds a JSON value: map[string]any, []any, string, float64, bool or nil.
type Envelope struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}
