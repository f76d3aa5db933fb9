// Package handoff moves an authenticated session between surfaces: a web
// login is picked up by polling a short-lived browser storage slot, or pushed
// directly over a native-messaging channel. Every request is answered with a
// result reply; a malformed or failing message never kills the loop.
package handoff

// Message types understood by the handler. The wire casing matches the
// established cross-surface protocol.
const (
	MsgLogin          = "LOGIN"
	MsgLogout         = "LOGOUT"
	MsgCheckAuth      = "CHECK_AUTH"
	MsgStartAuthCheck = "START_AUTH_CHECK"
	MsgStopAuthCheck  = "STOP_AUTH_CHECK"
	MsgFetchData      = "FETCH_DATA"
	MsgGetData        = "GET_DATA"
	MsgAuthSuccess    = "AUTH_SUCCESS"
)

// Message is one request on the handoff channel.
type Message struct {
	Type          string `json:"type"`
	Token         string `json:"token,omitempty"`
	WorkspaceID   string `json:"workspaceId,omitempty"`
	ProjectID     string `json:"projectId,omitempty"`
	ProjectAESKey string `json:"projectAesKey,omitempty"`
	DataType      string `json:"dataType,omitempty"`
}

// Reply is the uniform answer to a Message. Failures carry Error text instead
// of surfacing as channel errors.
type Reply struct {
	Success         bool   `json:"success"`
	IsAuthenticated bool   `json:"isAuthenticated,omitempty"`
	Data            any    `json:"data,omitempty"`
	Multiple        bool   `json:"multiple,omitempty"`
	Error           string `json:"error,omitempty"`
}

func failReply(msg string) Reply {
	return Reply{Success: false, Error: msg}
}
