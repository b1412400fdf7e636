package catalog

// Authenticate is the client's subscription handshake.
type Authenticate struct {
	Token string `json:"token"`
}

// ErrorType classifies a server error.
type ErrorType string

const (
	ErrorSerde   ErrorType = "Serde"
	ErrorSqlx    ErrorType = "Sqlx"
	ErrorClosed  ErrorType = "Closed"
	ErrorTime    ErrorType = "Time"
	ErrorData    ErrorType = "Data"
	ErrorUnknown ErrorType = "Unknown"
	ErrorSend    ErrorType = "Send"
	ErrorAuth    ErrorType = "Auth"
)

// ErrorMeta carries the classification of a server error.
type ErrorMeta struct {
	Type     ErrorType `json:"type"`
	Source   string    `json:"source,omitempty"`
	Location string    `json:"location,omitempty"`
}

// ErrorPayload is the data of an Error frame.
type ErrorPayload struct {
	Message string    `json:"message"`
	Meta    ErrorMeta `json:"meta"`
}
