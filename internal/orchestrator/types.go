// Package orchestrator holds the per-connection Turn state machine,
// generalized from the teacher's pkg/orchestrator.ManagedStream: the same
// gen-id invalidation and capture-cancel-funcs-under-mutex idiom, adapted
// from a single local-mic CLI session to one of many concurrent networked
// /ws/chat connections (spec.md §5/§6).
package orchestrator

import (
	"errors"
	"time"
)

// ResponseMode mirrors router.Mode so callers outside internal/router don't
// need to import it directly (set_response_mode frames carry this string).
type ResponseMode string

const (
	ResponseModeFaster   ResponseMode = "faster"
	ResponseModePlanning ResponseMode = "planning"
	ResponseModeDetailed ResponseMode = "detailed"
)

// Inbound JSON frame "type" values (spec.md §6).
const (
	InPing          = "ping"
	InBargeIn       = "barge-in"
	InSpeechEnd     = "speech_end"
	InUpdateContext = "update_context"
	InSetMode       = "set_response_mode"
	InTextInput     = "text_input"
)

// Outbound JSON frame "type" values (spec.md §6).
const (
	OutPong                = "pong"
	OutSystemLog           = "system_log"
	OutError               = "error"
	OutStatus              = "status"
	OutSessionReset        = "session_reset"
	OutTranscriptInterim   = "transcript_interim"
	OutTranscript          = "transcript"
	OutAssistantStart      = "assistant_transcript_start"
	OutTranscriptChunk     = "transcript_chunk"
	OutAssistantTranscript = "assistant_transcript"
	OutMetrics             = "metrics"
)

// InboundFrame is the shape of every inbound JSON control message; each
// frame type reads only the fields it needs.
type InboundFrame struct {
	Type         string       `json:"type"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
	Mode         ResponseMode `json:"mode,omitempty"`
	Text         string       `json:"text,omitempty"`
}

// OutboundFrame is the shape of every outbound JSON message sent to the client.
type OutboundFrame struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Code      string                 `json:"code,omitempty"`
	FromCache bool                   `json:"from_cache,omitempty"`
	TokensPS  float64                `json:"tokens_per_second,omitempty"`
	LatencyMS int64                  `json:"latency_ms,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// ErrorKind classifies failures per spec.md §7, each with a distinct
// required client-facing action.
type ErrorKind string

const (
	ErrorProtocol          ErrorKind = "protocol"
	ErrorProviderTransient ErrorKind = "provider_transient"
	ErrorProviderFatal     ErrorKind = "provider_fatal"
	ErrorCancelled         ErrorKind = "cancelled"
	ErrorProgramming       ErrorKind = "programming"
)

var (
	ErrMissingDeviceID           = errors.New("orchestrator: device_id is required")
	ErrSupersededByNewConnection = errors.New("orchestrator: connection superseded by a newer connection for this device")
)

// Close codes spec.md §6 mandates beyond the standard websocket set.
const (
	CloseMissingDeviceID   = 1008
	CloseSupersededByNewer = 4000
)

// interruptQuiescencePulse is how long the orchestrator waits, after
// cancelling an in-flight turn, before treating the connection as settled
// (matches original_source's interrupt-quiescence handling in api/websocket.py).
const interruptQuiescencePulse = 100 * time.Millisecond

// bargeInQuiescencePulse is the shorter settle time used specifically for an
// explicit client-signaled "barge-in" frame, distinct from the turn-start
// gap above (spec.md §4.1).
const bargeInQuiescencePulse = 50 * time.Millisecond
