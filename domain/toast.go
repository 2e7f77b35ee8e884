package domain

// ToastKind distinguishes success and error notifications.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
)

// Toast is a transient user facing status message.
type Toast struct {
	ID      string    `json:"id,omitempty"`
	Message string    `json:"message"`
	Kind    ToastKind `json:"kind,omitempty"`
}

// Active reports whether the toast still carries a message.
func (t Toast) Active() bool {
	return t.Message != ""
}
