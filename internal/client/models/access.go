package models

// AccessLevel is an effective permission tier. Levels are ordered, so the
// highest of several grants is simply the maximum.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessUser
	AccessModerator
	AccessAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case AccessUser:
		return "user"
	case AccessModerator:
		return "moderator"
	case AccessAdmin:
		return "admin"
	}
	return "none"
}

// AtLeast reports whether l satisfies the required level.
func (l AccessLevel) AtLeast(required AccessLevel) bool { return l >= required }

// Identity is the active user as reported by the credential provider.
type Identity struct {
	UserID         string
	UserName       string
	CongregationID string
	// IsAdmin grants Admin over every territory of CongregationID.
	IsAdmin      bool
	HeldTokenIDs []string
	// PhoneCongregationID scopes the phone-book data; with
	// PhoneCredentialsPresent it also grants Admin over its phone territories.
	PhoneCongregationID     string
	PhoneCredentialsPresent bool
}

// Anonymous reports whether nobody is logged in.
func (i Identity) Anonymous() bool { return i.UserID == "" }

// Scope returns the congregations this identity's data is fetched for.
func (i Identity) Scope() Scope {
	s := Scope{CongregationID: i.CongregationID}
	if i.PhoneCredentialsPresent {
		s.PhoneCongregationID = i.PhoneCongregationID
		if s.PhoneCongregationID == "" {
			s.PhoneCongregationID = i.CongregationID
		}
	}
	return s
}

// Scope identifies which congregation's rows a snapshot replaces.
type Scope struct {
	CongregationID      string `json:"congregationId"`
	PhoneCongregationID string `json:"phoneCongregationId,omitempty"`
}

// Phone reports whether phone-book data is in scope.
func (s Scope) Phone() bool { return s.PhoneCongregationID != "" }

// Root is the top of the hierarchy a row belongs to: the territory, phone
// territory, token or congregation that governs access to it.
type Root struct {
	Table          Table
	ID             string
	CongregationID string
}
