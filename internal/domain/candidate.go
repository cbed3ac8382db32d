package domain

// Candidate is a locally gathered connectivity candidate.
// It has no identity beyond emission order.
type Candidate struct {
	Data           string `json:"candidate"`
	MediaLineID    string `json:"sdpMid"`
	MediaLineIndex uint16 `json:"sdpMLineIndex"`
}
