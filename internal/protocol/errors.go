package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Campaign routing.
	ErrCampaignNotFound = "E_CAMPAIGN_NOT_FOUND"
	ErrCampaignDenied   = "E_CAMPAIGN_DENIED"

	// Request layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNoPermission = "E_NO_PERMISSION"
	ErrPolicyHidden = "E_POLICY_HIDDEN"
	ErrNotFound     = "E_NOT_FOUND"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrCampaignNotFound: {},
	ErrCampaignDenied:   {},
	ErrBadRequest:       {},
	ErrNoPermission:     {},
	ErrPolicyHidden:     {},
	ErrNotFound:         {},
	ErrRateLimit:        {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
