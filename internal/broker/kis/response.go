package kis

import (
	"encoding/json"
	"net/http"
)

// Response is the uniform envelope for broker REST calls. Business
// failures (non-200 status or a non-zero broker return code) are carried
// as values so callers can branch on them without exception-driven control
// flow; only transport faults surface as errors.
type Response struct {
	StatusCode int

	rtCd  string
	msgCd string
	msg   string
	raw   []byte
}

type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

func newResponse(statusCode int, body []byte) *Response {
	r := &Response{StatusCode: statusCode, raw: body}
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		r.rtCd = env.RtCd
		r.msgCd = env.MsgCd
		r.msg = env.Msg1
	}
	return r
}

func (r *Response) IsOK() bool {
	return r.StatusCode == http.StatusOK && (r.rtCd == "" || r.rtCd == "0")
}

func (r *Response) ErrorCode() string {
	if r.msgCd != "" {
		return r.msgCd
	}
	return http.StatusText(r.StatusCode)
}

func (r *Response) ErrorMessage() string {
	if r.msg != "" {
		return r.msg
	}
	return string(r.raw)
}

// Decode unmarshals the response body into an endpoint-specific DTO.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.raw, v)
}
