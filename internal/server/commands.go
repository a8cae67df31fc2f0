package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cwbudde/spoke-tension/internal/config"
)

// Command is a request received from a WebSocket client.
type Command struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Result answers a Command. Type is the command type with a "_result"
// suffix.
type Result struct {
	Type    string       `json:"type"`
	ID      string       `json:"id,omitempty"`
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError is one failed request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigureRequest is the body of the configure command.
type ConfigureRequest struct {
	Spoke       config.Spoke       `json:"spoke"`
	Measurement config.Measurement `json:"measurement"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names in error messages instead of struct field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

func (s *Server) handleCommand(cmd Command, send func(any) bool) {
	switch cmd.Type {
	case "start":
		s.respond(send, cmd, s.start())
	case "stop":
		s.respond(send, cmd, s.stop())
	case "status":
		send(success(cmd, s.Status()))
	case "configure":
		var req ConfigureRequest
		if r, ok := decodeAndValidate(cmd, &req); !ok {
			send(r)
			return
		}
		s.respond(send, cmd, s.configure(req.Spoke, req.Measurement))
	case "reset":
		d := config.Default()
		s.respond(send, cmd, s.configure(d.Spoke, d.Measurement))
	default:
		s.logger.Warn("unknown WebSocket command", "type", cmd.Type)
		send(failure(cmd, fmt.Errorf("unknown command %q", cmd.Type)))
	}
}

func (s *Server) respond(send func(any) bool, cmd Command, err error) {
	if err != nil {
		send(failure(cmd, err))
		return
	}
	send(success(cmd, s.Status()))
}

func (s *Server) start() error {
	return s.ctrl.Start(s.ctx)
}

func (s *Server) stop() error {
	return s.ctrl.Stop()
}

// configure applies new spoke and measurement sections on top of the
// current configuration.
func (s *Server) configure(spoke config.Spoke, m config.Measurement) error {
	s.mu.Lock()
	next := s.cfg
	s.mu.Unlock()

	next.Spoke = spoke
	next.Measurement = m
	if err := next.Validate(); err != nil {
		return err
	}
	sc, err := next.Session()
	if err != nil {
		return err
	}
	if err := s.ctrl.Configure(sc); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = next
	s.mu.Unlock()
	s.logger.Info("configuration updated",
		"length_mm", spoke.LengthMM,
		"material", spoke.Material,
		"lower_kgf", m.LowerTensionKgf,
		"upper_kgf", m.UpperTensionKgf,
	)
	return nil
}

// decodeAndValidate decodes the command payload into data. On failure it
// returns the result to send.
func decodeAndValidate[T any](cmd Command, data *T) (Result, bool) {
	if err := json.Unmarshal(cmd.Data, data); err != nil {
		return failure(cmd, fmt.Errorf("invalid JSON: %w", err)), false
	}
	if err := validate.Struct(data); err != nil {
		return validationFailure(cmd, err), false
	}
	return Result{}, true
}

func success(cmd Command, data any) Result {
	return Result{Type: cmd.Type + "_result", ID: cmd.ID, Success: true, Data: data}
}

func failure(cmd Command, err error) Result {
	return Result{Type: cmd.Type + "_result", ID: cmd.ID, Error: err.Error()}
}

func validationFailure(cmd Command, err error) Result {
	r := failure(cmd, errors.New("validation failed"))
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		r.Error = err.Error()
		return r
	}
	for _, e := range verrs {
		r.Fields = append(r.Fields, FieldError{Field: config.FieldPath(e), Message: config.Message(e)})
	}
	return r
}
