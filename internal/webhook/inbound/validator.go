package inbound

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://schemas.workspace.local/inbound/"

const envelopeSchema = "envelope"

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PayloadError lists the schema violations of an inbound body.
type PayloadError struct {
	Fields []FieldError
}

func (e *PayloadError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidPayload.Error()
	}
	return fmt.Sprintf("%s: %s %s", ErrInvalidPayload, e.Fields[0].Field, e.Fields[0].Code)
}

func (e *PayloadError) Unwrap() error {
	return ErrInvalidPayload
}

// Envelope is a validated inbound request.
type Envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Validator checks inbound bodies against the embedded JSON Schemas.
type Validator struct {
	envelope *jsonschema.Schema
	actions  map[string]*jsonschema.Schema
	printer  *message.Printer
}

func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, err
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(schemaBase+entry.Name(), doc); err != nil {
			return nil, err
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}

	v := &Validator{
		actions: make(map[string]*jsonschema.Schema, len(names)),
		printer: message.NewPrinter(language.English),
	}
	for _, name := range names {
		schema, err := compiler.Compile(schemaBase + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		if name == envelopeSchema {
			v.envelope = schema
			continue
		}
		v.actions[name] = schema
	}
	if v.envelope == nil {
		return nil, errors.New("envelope schema missing")
	}
	return v, nil
}

// Validate checks the envelope and then the action's data schema.
func (v *Validator) Validate(body []byte) (*Envelope, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, &PayloadError{Fields: []FieldError{{Field: "body", Code: "invalid_json", Message: "body is not valid JSON"}}}
	}
	if err := v.envelope.Validate(instance); err != nil {
		return nil, v.payloadError(err)
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &PayloadError{Fields: []FieldError{{Field: "body", Code: "invalid_json", Message: err.Error()}}}
	}
	schema, ok := v.actions[envelope.Action]
	if !ok {
		return nil, ErrUnknownAction
	}

	data := instance.(map[string]any)["data"]
	if err := schema.Validate(data); err != nil {
		return nil, v.payloadError(err, "data")
	}
	return &envelope, nil
}

func (v *Validator) payloadError(err error, prefix ...string) error {
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return &PayloadError{Fields: []FieldError{{Field: "body", Code: "invalid", Message: err.Error()}}}
	}

	var fields []FieldError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, cause := range e.Causes {
				walk(cause)
			}
			return
		}
		location := append(append([]string{}, prefix...), e.InstanceLocation...)
		field := "/" + strings.Join(location, "/")
		code := "invalid"
		msg := ""
		if e.ErrorKind != nil {
			if keywords := e.ErrorKind.KeywordPath(); len(keywords) > 0 {
				code = keywords[len(keywords)-1]
			}
			msg = e.ErrorKind.LocalizedString(v.printer)
		}
		fields = append(fields, FieldError{Field: field, Code: code, Message: msg})
	}
	walk(validationErr)
	return &PayloadError{Fields: fields}
}
