package types

import (
	"encoding/json"
	"time"
)

// SyntheticUser is a generated registration payload.
// FirstName and LastName are only filled by the load profile.
type SyntheticUser struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	FirstName   string `json:"firstName,omitempty" yaml:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty" yaml:"lastName,omitempty"`
	Email       string `json:"email" yaml:"email"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	PhoneNumber string `json:"phoneNumber" yaml:"phoneNumber"`
}

// LoginRequest is the body of POST /credentials/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /credentials/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// EmailDetail is a single address in a profile email list
type EmailDetail struct {
	Email     string `json:"email"`
	IsPrimary bool   `json:"isPrimary"`
}

// ModifyEmailRequest is the body of PUT /ptd/profiles/email
type ModifyEmailRequest struct {
	Emails []EmailDetail `json:"emails"`
}

// Envelope is the wrapper the API puts around every JSON response.
// Data is kept raw so callers decode only what they assert on.
type Envelope struct {
	APIVersion string          `json:"apiVersion,omitempty"`
	Status     string          `json:"status,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Paging     json.RawMessage `json:"paging,omitempty"`
	Error      *APIError       `json:"error,omitempty"`
}

// APIError is the error object of a failed API call
type APIError struct {
	Code    int              `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
	Errors  []APIErrorDetail `json:"errors,omitempty"`
}

// APIErrorDetail is one entry of APIError.Errors
type APIErrorDetail struct {
	Domain  string `json:"domain,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Report  string `json:"report,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Errors) > 0 && e.Errors[0].Message != "" {
		return e.Message + ": " + e.Errors[0].Message
	}
	return e.Message
}

// RequestResult contains the HTTP response data of one call
type RequestResult struct {
	VU           int               `json:"vu"`
	Step         string            `json:"step"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Status       int               `json:"status"`
	StatusText   string            `json:"statusText"`
	Headers      map[string]string `json:"headers"`
	Body         string            `json:"body"`
	Duration     time.Duration     `json:"duration"`
	RequestSize  int               `json:"requestSize"`  // bytes
	ResponseSize int               `json:"responseSize"` // bytes
	Error        string            `json:"error,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`

	// AllowedStatuses lists 4xx/5xx codes the caller treats as expected
	AllowedStatuses []int `json:"-"`
}

// Failed reports whether the call never produced a response
func (r *RequestResult) Failed() bool {
	return r.Error != "" || r.Status == 0
}

// HTTPFailed reports whether the call counts toward the request failure
// rate: no response, or an error status the caller did not allow
func (r *RequestResult) HTTPFailed() bool {
	if r.Failed() {
		return true
	}
	if r.Status < 400 {
		return false
	}
	for _, allowed := range r.AllowedStatuses {
		if r.Status == allowed {
			return false
		}
	}
	return true
}

// Envelope decodes the body as an API envelope.
// A body that is not JSON yields an error.
func (r *RequestResult) Envelope() (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(r.Body), &env); err != nil {
		return nil, err
	}
	return &env, nil
}
