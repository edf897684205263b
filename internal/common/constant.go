package common

// Keys of the persisted client state. They mirror the browser localStorage
// keys so a state dump is readable by either client.
const (
	KeyUser       = "user"
	KeyToken      = "access_token"
	KeyResourceID = "ot_resource_id"
	KeyTheme      = "ot_theme"
	KeyLanguage   = "opentrace_lang"
)

// AuthorizationHeaderName carries the bearer token on outbound requests.
const AuthorizationHeaderName = "Authorization"
