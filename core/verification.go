package core

// VerificationResponse is the platform's answer to a verification email
// request. Backoff is the unix time after which another email may be sent.
type VerificationResponse struct {
	Backoff int64
	Method  string // "link" or "code"
}

// ActivationTokenResponse carries the activation token recovered from a
// confirmed verification, ready to be passed to registration.
type ActivationTokenResponse struct {
	ActivationToken string
	UserID          string
	ProjectID       string
	AccessID        string
}

// QuickCode is a short-lived, single-use code proving a completed
// registration. Another device exchanges it for an activation token.
type QuickCode struct {
	Code       string
	ExpireTime int64 // Unix seconds
	TTLSeconds int
}
