package models

// LivenessStartResponse is the part of the POST /liveness/start answer the
// console relies on. The service may send more fields; those are kept raw.
type LivenessStartResponse struct {
	SessionId string `json:"sessionId"`
	Status    string `json:"status,omitempty"`
}

type LivenessResultsRequest struct {
	SessionId string `json:"sessionId"`
}

type LivenessResultsResponse struct {
	SessionId  string  `json:"sessionId"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	Simulated  bool    `json:"simulated"`
}
