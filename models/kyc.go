package models

// KycSubmitRequest is the body of POST /kyc/submit. Field order is part of the
// wire contract: {"sessionId":…,"idUrl":…,"selfieUrl":…}.
type KycSubmitRequest struct {
	SessionId string `json:"sessionId"`
	IdUrl     string `json:"idUrl"`
	SelfieUrl string `json:"selfieUrl"`
}

type KycSubmitResponse struct {
	SubmissionId string          `json:"submissionId"`
	SessionId    string          `json:"sessionId"`
	Status       string          `json:"status"`
	FaceMatch    FaceMatchResult `json:"faceMatch"`
	Receipt      string          `json:"receipt"` // signed JWT
}
