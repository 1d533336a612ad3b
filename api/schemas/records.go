// File: api/schemas/records.go
package schemas

// AnonymousID is the externalId assigned to entries whose profile URL is hidden.
const AnonymousID = "anonymous"

// ProfileRecord is a single extracted search result.
type ProfileRecord struct {
	Name             string `json:"name"`
	Title            string `json:"title"`
	Location         string `json:"location"`
	ProfileURL       string `json:"profileUrl"`
	ExternalID       string `json:"externalId"`
	ConnectionDegree string `json:"connectionDegree,omitempty"`
	IsAnonymous      bool   `json:"isAnonymous"`
	// URN is the platform's own entity reference when the markup exposes one.
	URN string `json:"urn,omitempty"`
}

// Identity is the best-effort snapshot of the account a session is logged in as.
type Identity struct {
	DisplayName string `json:"displayName,omitempty"`
	ProfileURL  string `json:"profileUrl,omitempty"`
}
