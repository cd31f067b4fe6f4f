package sessionreq

type TurnRequest struct {
	Content string `json:"content" validate:"required,max=32000"`
	Model   string `json:"model,omitempty" validate:"omitempty,max=256"`
	Stream  *bool  `json:"stream,omitempty"`
}

type RegenerateRequest struct {
	Model  string `json:"model,omitempty" validate:"omitempty,max=256"`
	Stream *bool  `json:"stream,omitempty"`
}

type SelectModelRequest struct {
	Model string `json:"model" validate:"required,max=256"`
}

// StreamEnabled defaults to streaming when the flag is absent.
func StreamEnabled(flag *bool) bool {
	return flag == nil || *flag
}
