package pose

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TypeResetHolds is the control message type that clears all hold progress.
const TypeResetHolds = "reset_holds"

// Kind discriminates the inbound message variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindPose
	KindReset
)

// Message is one decoded inbound message: *PoseFrame, ResetHolds or Unknown.
type Message interface {
	Kind() Kind
}

// PoseFrame carries one validated landmark frame.
type PoseFrame struct {
	Frame Frame
}

// Kind implements Message.
func (*PoseFrame) Kind() Kind { return KindPose }

// ResetHolds asks the session to clear every hold back to untouched.
type ResetHolds struct{}

// Kind implements Message.
func (ResetHolds) Kind() Kind { return KindReset }

// Unknown is a well-formed message the pipeline does not understand.
type Unknown struct {
	Type string
}

// Kind implements Message.
func (Unknown) Kind() Kind { return KindUnknown }

// ValidationError is returned when an inbound message is not a valid frame.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid pose frame: %s: %v", e.Reason, e.Err)
	}
	return "invalid pose frame: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

const frameSchemaURL = "pose-frame.schema.json"

const frameSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["landmarks"],
	"properties": {
		"landmarks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["x", "y", "z", "visibility"],
				"properties": {
					"x": {"type": "number"},
					"y": {"type": "number"},
					"z": {"type": "number"},
					"visibility": {"type": "number"}
				}
			}
		},
		"timestamp": {"type": "number"}
	}
}`

var compiledFrameSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(frameSchemaURL, strings.NewReader(frameSchema)); err != nil {
		return nil, fmt.Errorf("add frame schema: %w", err)
	}
	return compiler.Compile(frameSchemaURL)
})

type wireFrame struct {
	Landmarks []Landmark `json:"landmarks"`
	Timestamp float64    `json:"timestamp"`
}

// Decode turns raw inbound JSON into a typed message.
// It returns a *ValidationError for anything that is not an object or that
// claims to be a pose frame but fails the frame schema.
func Decode(data []byte) (Message, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON", Err: err}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &ValidationError{Reason: "message must be a JSON object"}
	}

	if raw, ok := obj["type"]; ok {
		typ, _ := raw.(string)
		if typ == TypeResetHolds {
			return ResetHolds{}, nil
		}
		if _, hasLandmarks := obj["landmarks"]; !hasLandmarks {
			return Unknown{Type: typ}, nil
		}
	}

	schema, err := compiledFrameSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return nil, &ValidationError{Reason: describe(verr), Err: err}
		}
		return nil, &ValidationError{Reason: "schema validation failed", Err: err}
	}

	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, &ValidationError{Reason: "decode landmarks", Err: err}
	}

	return &PoseFrame{Frame: Frame{Landmarks: wf.Landmarks, Timestamp: wf.Timestamp}}, nil
}

// describe returns the innermost schema failure, which names the offending field.
func describe(verr *jsonschema.ValidationError) string {
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s", loc, leaf.Message)
}
