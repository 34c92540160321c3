package platform

import "time"

// Wire payloads spoken by the platform bridge binaries on stdout.
// Bridges are thin native shims; everything they print is JSON.

type probePayload struct {
	HasProvider bool `json:"hasProvider"`
	Enrolled    bool `json:"enrolled"`
}

type typesPayload struct {
	Types []string `json:"types"`
}

type recordPayload struct {
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recordedAt"`
}

type recordsPayload struct {
	Records []recordPayload `json:"records"`
}
