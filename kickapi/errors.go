package kickapi

import "fmt"

// AuthError means no usable access token could be obtained: either the
// refresh credentials are missing or the identity endpoint rejected the grant.
type AuthError struct {
	Status int
	Msg    string
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("kick auth failed: status %d: %s", e.Status, e.Msg)
	}
	return "kick auth failed: " + e.Msg
}

// UpstreamError means the channel-status API returned an error status or an
// empty payload for the requested channel.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("kick api error: status %d: %s", e.Status, e.Body)
}

// excerpt trims a response body for inclusion in error messages and logs.
func excerpt(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
