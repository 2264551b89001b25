package core

// Version identifies this runtime in outbound User-Agent headers.
const Version = "0.3.0"

// AccessTokenHeader carries the shared access token on every call in both directions.
const AccessTokenHeader = "XXL-JOB-ACCESS-TOKEN"

// Envelope is the JSON response body used by both the coordinator and the
// executor. Code 200 signals success.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Ok returns a success envelope carrying data.
func Ok(data any) Envelope {
	return Envelope{Code: SuccessCode, Data: data}
}

// Failure returns a failure envelope with msg.
func Failure(msg string) Envelope {
	return Envelope{Code: FailCode, Msg: msg}
}

// IsSuccess reports whether the envelope signals success.
func (e Envelope) IsSuccess() bool {
	return e.Code == SuccessCode
}
