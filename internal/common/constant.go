package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// session token on outbound requests.
const AccessTokenHeaderName = "access_token"

// Metadata keys persisted in the local store.
const (
	MetaLastSyncedAt = "last_synced_at"
	MetaScopeOwner   = "scope_owner"
	MetaSession      = "session"
)
