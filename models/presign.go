package models

// PresignResponse is returned by POST /presign-id.
type PresignResponse struct {
	Bucket  string `json:"bucket,omitempty"`
	Key     string `json:"key"`
	PutURL  string `json:"putUrl"`
	Expires int    `json:"expires,omitempty"` // seconds the putUrl stays valid
}
