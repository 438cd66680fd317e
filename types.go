package oauth

import (
	"encoding/json"
	"sort"
	"time"
)

// Token is a provider-issued grant. ExpiresAt is absolute; the wire format's
// expires_in duration is converted at receipt so there is no drift between
// issuance and use.
type Token struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Scope        string
	ExpiresAt    time.Time
}

// Expired reports whether the token is expired or will be within leeway.
func (t *Token) Expired(leeway time.Duration) bool {
	return time.Until(t.ExpiresAt) <= leeway
}

// TokenResponse is the token endpoint's wire format.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
	UserID       string `json:"user_id"`
}

func (tr *TokenResponse) UnmarshalJSON(b []byte) error {
	type Tmp TokenResponse
	var tmp Tmp

	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}

	*tr = TokenResponse(tmp)

	return nil
}

// ResourceOwner is the profile of the user a token belongs to. It is fetched
// live and never persisted. AverageDailySteps is nil when the token's scopes
// do not cover activity data.
type ResourceOwner struct {
	DisplayName       string `json:"displayName"`
	FullName          string `json:"fullName"`
	Avatar            string `json:"avatar150"`
	MemberSince       string `json:"memberSince"`
	Timezone          string `json:"timezone"`
	AverageDailySteps *int   `json:"averageDailySteps"`

	raw map[string]any
}

// ToMap returns the full decoded profile payload for callers that want fields
// beyond the typed ones.
func (ro *ResourceOwner) ToMap() map[string]any {
	return ro.raw
}

func parseResourceOwner(b []byte) (*ResourceOwner, error) {
	var envelope struct {
		User json.RawMessage `json:"user"`
	}

	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil, err
	}

	var owner ResourceOwner
	if err := json.Unmarshal(envelope.User, &owner); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(envelope.User, &owner.raw); err != nil {
		return nil, err
	}

	return &owner, nil
}

type apiErrorEntry struct {
	ErrorType string `json:"errorType"`
	Message   string `json:"message"`
}

type apiErrorEnvelope struct {
	Errors  []apiErrorEntry `json:"errors"`
	Success bool            `json:"success"`
}

// distinctErrorTypes parses a failure body and returns the deduplicated,
// sorted set of errorType values it reports, or nil if the body is not a
// structured error payload.
func distinctErrorTypes(b []byte) []string {
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(b, &envelope); err != nil {
		return nil
	}

	seen := map[string]bool{}
	for _, entry := range envelope.Errors {
		if entry.ErrorType != "" {
			seen[entry.ErrorType] = true
		}
	}

	if len(seen) == 0 {
		return nil
	}

	errorTypes := make([]string, 0, len(seen))
	for errorType := range seen {
		errorTypes = append(errorTypes, errorType)
	}

	sort.Strings(errorTypes)

	return errorTypes
}

// providerErrorMessage pulls the human-readable message out of a failure body,
// falling back to the raw body when the payload is not structured.
func providerErrorMessage(b []byte) string {
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(b, &envelope); err == nil {
		for _, entry := range envelope.Errors {
			if entry.Message != "" {
				return entry.Message
			}
		}
	}

	return string(b)
}
