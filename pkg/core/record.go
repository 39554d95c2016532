package core

import (
	"time"
)

// ExecutionRecord captures the complete outcome of one dispatched keyword
type ExecutionRecord struct {
	// Identity
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Keyword   string `json:"keyword"`

	// Invocation as received, before parameter resolution
	Params []interface{} `json:"params,omitempty"`

	// Status
	Status   ExecStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message  string        `json:"message,omitempty"`
	Element  *ElementInfo  `json:"element,omitempty"`
	Elements []ElementInfo `json:"elements,omitempty"`
	Data     interface{}   `json:"data,omitempty"`

	// Error details
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`

	// Debug artifacts
	Attachments []Attachment `json:"attachments,omitempty"`

	// Err keeps the structured error for errors.Is checks
	Err *ExecutionError `json:"-"`
}

// Result is the payload a capability returns on success
type Result struct {
	Message  string        `json:"message,omitempty"`
	Element  *ElementInfo  `json:"element,omitempty"`
	Elements []ElementInfo `json:"elements,omitempty"`
	Data     interface{}   `json:"data,omitempty"`

	// Attachments produced while executing (annotated screenshots, etc.)
	Attachments []Attachment `json:"-"`
}

// Complete marks the record successful. It is a no-op if the record is
// already terminal; records never change once terminal.
func (r *ExecutionRecord) Complete(res *Result) {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = StatusSuccess
	r.Duration = time.Since(r.StartTime)
	if res == nil {
		return
	}
	r.Message = res.Message
	r.Element = res.Element
	r.Elements = res.Elements
	r.Data = res.Data
	r.Attachments = append(r.Attachments, res.Attachments...)
}

// Fail marks the record failed with the given error. It is a no-op if the
// record is already terminal.
func (r *ExecutionRecord) Fail(err error) {
	if r.Status.IsTerminal() {
		return
	}
	ee := AsExecutionError(err)
	r.Status = StatusFail
	r.Duration = time.Since(r.StartTime)
	r.Category = ee.Category
	r.Error = ee.Error()
	r.ErrorCode = ee.Code
	r.Err = ee
}
