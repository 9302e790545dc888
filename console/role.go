package console

import "fmt"

// Role names the evidence an upload is for.
type Role string

const (
	RoleId     Role = "id"
	RoleSelfie Role = "selfie"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleId, RoleSelfie:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown upload role %q", s)
	}
}

// Slot is the workspace slot that receives the uploaded key.
func (r Role) Slot() Slot {
	if r == RoleSelfie {
		return SlotSelfieKey
	}
	return SlotIdKey
}

func (r Role) missingFileMessage() string {
	if r == RoleSelfie {
		return MsgPickSelfie
	}
	return MsgPickIdPhoto
}

// outputField is the key used when echoing the stored upload key.
func (r Role) outputField() string {
	if r == RoleSelfie {
		return "selfieKey"
	}
	return "idKey"
}
