package types

import "net/http"

// ResourceResponse acknowledges a delivered activity with the id the
// receiving side assigned (or the id the sender stamped before transport).
type ResourceResponse struct {
	ID string `json:"id"`
}

// InvokeResponse is the typed status result of processing one inbound
// activity. Status follows HTTP semantics: 200 for normal processing, 501
// when the activity type is unsupported by the transport in use.
type InvokeResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

// OK reports whether the invoke completed normally.
func (r *InvokeResponse) OK() bool {
	return r != nil && r.Status == http.StatusOK
}
