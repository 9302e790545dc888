package models

// WorkspaceState mirrors the three slots of a console workspace.
type WorkspaceState struct {
	SessionId string `json:"sessionId"`
	IdKey     string `json:"idKey"`
	SelfieKey string `json:"selfieKey"`
}

// KycFields carries the visible key fields of the page, which the operator
// may have edited by hand.
type KycFields struct {
	IdKey     string `json:"idKey"`
	SelfieKey string `json:"selfieKey"`
}

// CommandResponse is what every console command answers to the page.
type CommandResponse struct {
	Output       string         `json:"output"`
	State        WorkspaceState `json:"state"`
	Precondition bool           `json:"precondition,omitempty"`
	Error        string         `json:"error,omitempty"`
}
