package platform

import (
	"strings"

	"postpilot/internal/faults"
)

// apiError is the raw failure signal from a platform response.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string { return e.Message }

// substringRules order matters: "invalid token" must classify as AUTH_FAILED,
// not INVALID_PAYLOAD.
var substringRules = []struct {
	needles []string
	code    faults.Code
}{
	{[]string{"auth", "token", "unauthorized", "credential", "login"}, faults.AuthFailed},
	{[]string{"captcha", "human verification", "slider"}, faults.CaptchaRequired},
	{[]string{"rate", "frequen", "too many", "throttle"}, faults.RateLimit},
	{[]string{"timeout", "timed out", "deadline"}, faults.Timeout},
	{[]string{"sensitive", "violat", "prohibited content", "audit"}, faults.ContentViolation},
	{[]string{"param", "invalid", "payload", "format", "missing"}, faults.InvalidPayload},
}

// classify maps a raw API failure into the taxonomy. The per-platform numeric
// code table is consulted first, then the generic substring rules, then the
// REQUEST_FAILED fallback.
func classify(codes map[int]faults.Code, raw *apiError) error {
	if raw == nil {
		return nil
	}
	if c, ok := codes[raw.Code]; ok {
		return faults.New(c, raw.Message)
	}
	msg := strings.ToLower(raw.Message)
	for _, r := range substringRules {
		for _, n := range r.needles {
			if strings.Contains(msg, n) {
				return faults.New(r.code, raw.Message)
			}
		}
	}
	return faults.New(faults.RequestFailed, raw.Message)
}
