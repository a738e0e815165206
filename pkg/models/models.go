package models

import (
	"strings"
	"time"
)

// StepType is the `eType` tag of a step
type StepType string

// Step types understood by the interpreter
const (
	StepOpen       StepType = "open"
	StepRandom     StepType = "random"
	StepClick      StepType = "click"
	StepEval       StepType = "eval"
	StepEvaluate   StepType = "evaluate"
	StepFill       StepType = "fill"
	StepKey        StepType = "key"
	StepBack       StepType = "back"
	StepReload     StepType = "reload"
	StepLog        StepType = "log"
	StepShot       StepType = "shot"
	StepScreenshot StepType = "screenshot"
)

// Step is one declarative instruction of a job
type Step struct {
	Type     StepType       `json:"eType,omitempty"`
	URL      string         `json:"sUrl,omitempty"`
	URLs     []string       `json:"aUrl,omitempty"`
	Options  *NavOptions    `json:"oConfig,omitempty"`
	Selector string         `json:"sSel,omitempty"`
	Values   map[string]any `json:"oValue,omitempty"`
	Submit   bool           `json:"bSubmit,omitempty"`
	Keys     string         `json:"sKey,omitempty"`
	Text     string         `json:"sText,omitempty"`
	Eval     string         `json:"fEval,omitempty"`
}

// NavOptions holds per-navigation settings of an open step
type NavOptions struct {
	Method  string            `json:"method,omitempty"`
	Data    map[string]any    `json:"data,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// IsPost reports whether the navigation submits a form body
func (o NavOptions) IsPost() bool {
	return strings.EqualFold(o.Method, "post")
}

// Job is the on-disk definition of one unit of work
type Job struct {
	Steps  []Step         `json:"aStep"`
	Config map[string]any `json:"oConfig,omitempty"`
}

// Record is one structured item produced by an extraction function
type Record map[string]any

// Result kinds written to the result file
const (
	KindEval = "eval"
	KindFill = "fill"
)

// ExtractionResult is one line of the result file
type ExtractionResult struct {
	Kind      string    `json:"kind"`
	StepIndex int       `json:"stepIndex"`
	Timestamp time.Time `json:"timestampUTC"`
	ItemCount int       `json:"itemCount"`
	Items     []Record  `json:"items"`
	Function  string    `json:"function,omitempty"`
}

// Cookie is a browser cookie as persisted between runs
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session"`
	SameSite string  `json:"sameSite,omitempty"`
}
