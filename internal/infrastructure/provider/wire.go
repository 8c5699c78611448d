package provider

import (
	"bytes"
	"encoding/json"
)

// 控制协议：客户端 -> 服务端
const (
	actionAuth        = "auth"
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// 状态回执：服务端 -> 客户端
const (
	statusAuthSuccess = "auth_success"
	statusAuthFailed  = "auth_failed"
)

type wireControl struct {
	Action  string   `json:"action"`
	Key     string   `json:"key,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
}

type wireStatus struct {
	Ev      string `json:"ev"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// parseStatus picks out control replies ({"ev":"status",...}) so they are
// consumed by the connection manager instead of being forwarded as data.
func parseStatus(b []byte) (wireStatus, bool) {
	if !bytes.Contains(b, []byte(`"status"`)) {
		return wireStatus{}, false
	}
	var st wireStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return wireStatus{}, false
	}
	if st.Ev != "status" {
		return wireStatus{}, false
	}
	return st, true
}
