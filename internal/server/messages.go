package server

import (
	"encoding/json"
	"fmt"

	"github.com/acheong08/avtag/internal/aggregate"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	TypeLabel MessageType = "label" // Client sends JSONL records to label
	TypePing  MessageType = "ping"  // Keep-alive

	// Server -> Client
	TypeProgress MessageType = "progress" // Records read so far
	TypeLog      MessageType = "log"      // Pipeline log lines
	TypeSample   MessageType = "sample"   // One output line
	TypeSummary  MessageType = "summary"  // Corpus statistics at the end of a run
	TypeComplete MessageType = "complete" // Run finished
	TypeError    MessageType = "error"    // Error message
	TypePong     MessageType = "pong"
)

// Message is the base WebSocket message structure
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// LabelOptions toggle output columns and accumulators for one run
type LabelOptions struct {
	FullPaths   bool `json:"path"`
	Compat      bool `json:"compat"`
	PUP         bool `json:"pup"`
	VTTags      bool `json:"vtt"`
	VendorTags  bool `json:"avtags"`
	AliasDetect bool `json:"aliasdetect"`
	// GroundTruth maps sample hashes to reference families
	GroundTruth map[string]string `json:"gt,omitempty"`
}

// LabelPayload sent by client to start a run
type LabelPayload struct {
	Format  string       `json:"format"`  // "vt2", "vt3" or "lb"
	Hash    string       `json:"hash"`    // "md5", "sha1" or "sha256"
	Records string       `json:"records"` // Newline separated JSON reports
	Options LabelOptions `json:"options"`
}

// ProgressPayload for progress updates
type ProgressPayload struct {
	RunID   string `json:"run_id"`
	Records int    `json:"records"`
	Message string `json:"message"`
}

// LogPayload for terminal output
type LogPayload struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"` // "info", "warning", "error"
}

// SamplePayload carries one output line
type SamplePayload struct {
	RunID string `json:"run_id"`
	Line  string `json:"line"`
}

// SummaryPayload carries the corpus statistics of a finished run
type SummaryPayload struct {
	RunID      string                             `json:"run_id"`
	Stats      *aggregate.Stats                   `json:"stats"`
	Aliases    []aggregate.AliasRow               `json:"aliases,omitempty"`
	VendorTags map[string][]aggregate.VendorCount `json:"vendor_tags,omitempty"`
	Evaluation *Evaluation                        `json:"evaluation,omitempty"`
}

// Evaluation is the clustering accuracy against supplied ground truth, in percent
type Evaluation struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// CompletePayload sent when a run is done
type CompletePayload struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func newMessage(t MessageType, payload any) Message {
	payloadBytes, _ := json.Marshal(payload)
	return Message{Type: t, Payload: payloadBytes}
}

func NewProgressMessage(runID string, records int, message string) Message {
	return newMessage(TypeProgress, ProgressPayload{RunID: runID, Records: records, Message: message})
}

func NewLogMessage(message, level string) Message {
	return newMessage(TypeLog, LogPayload{Message: message, Level: level})
}

func NewSampleMessage(runID, line string) Message {
	return newMessage(TypeSample, SamplePayload{RunID: runID, Line: line})
}

func NewSummaryMessage(summary *SummaryPayload) Message {
	return newMessage(TypeSummary, summary)
}

func NewCompleteMessage(success bool, message string) Message {
	return newMessage(TypeComplete, CompletePayload{Success: success, Message: message})
}

func NewErrorMessage(message string, err error) Message {
	errMsg := message
	if err != nil {
		errMsg = fmt.Sprintf("%s: %v", message, err)
	}
	return newMessage(TypeError, ErrorPayload{Message: errMsg})
}

// ParseLabelPayload extracts the label payload from a message
func ParseLabelPayload(msg Message) (*LabelPayload, error) {
	var payload LabelPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse label payload: %w", err)
	}
	return &payload, nil
}
