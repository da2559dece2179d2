package platform

import "postpilot/internal/faults"

// variant is the per-platform strategy data: a numeric error-code table
// consulted before the generic substring classifier. Data, not subclassing.
type variant struct {
	codes map[int]faults.Code
}

var variants = map[string]variant{
	"xiaohongshu": {codes: map[int]faults.Code{
		10001: faults.InvalidPayload,
		10002: faults.ContentViolation,
		20001: faults.AuthFailed,
		20002: faults.CaptchaRequired,
		30001: faults.RateLimit,
	}},
	"douyin": {codes: map[int]faults.Code{
		2100: faults.AuthFailed,
		2154: faults.ContentViolation,
		2190: faults.RateLimit,
		2290: faults.CaptchaRequired,
	}},
	"weibo": {codes: map[int]faults.Code{
		10022: faults.RateLimit,
		10023: faults.RateLimit,
		20019: faults.ContentViolation,
		21332: faults.AuthFailed,
	}},
}

func variantFor(platform string) variant {
	if v, ok := variants[platform]; ok {
		return v
	}
	return variant{}
}
