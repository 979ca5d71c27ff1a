// Package control parses remote-control commands and receives them over NATS
// and HTTP.
//
// Two verbs are understood:
//
//	listen [bool]    start listening, or explicitly start (true) / stop (false)
//	autostop [bool]  enable autostop, or explicitly enable / disable
//
// Commands arrive either as text ("listen", "autostop 0", "listen false") or
// as JSON ({"verb":"listen","value":false}).
package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrUnknownVerb is returned for verbs other than listen and autostop.
var ErrUnknownVerb = errors.New("control: unknown verb")

// Verb names a control action.
type Verb string

const (
	VerbListen   Verb = "listen"
	VerbAutostop Verb = "autostop"
)

// Command is one parsed control request.
type Command struct {
	Verb Verb `json:"verb"`

	// Value is the explicit argument, nil when omitted.
	Value *bool `json:"value,omitempty"`
}

// Enabled resolves the command's target state. An omitted argument means
// true for both verbs.
func (c Command) Enabled() bool {
	return c.Value == nil || *c.Value
}

// String renders c in text form.
func (c Command) String() string {
	if c.Value == nil {
		return string(c.Verb)
	}
	return string(c.Verb) + " " + strconv.FormatBool(*c.Value)
}

// New validates verb and builds a Command. args holds at most one boolean.
func New(verb string, args ...string) (Command, error) {
	v := Verb(strings.ToLower(strings.TrimSpace(verb)))
	switch v {
	case VerbListen, VerbAutostop:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
	cmd := Command{Verb: v}
	switch len(args) {
	case 0:
	case 1:
		b, err := ParseBool(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("control: %s: %w", v, err)
		}
		cmd.Value = &b
	default:
		return Command{}, fmt.Errorf("control: %s takes at most one argument, got %d", v, len(args))
	}
	return cmd, nil
}

// Parse reads a command from text or JSON.
func Parse(data []byte) (Command, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return Command{}, errors.New("control: empty command")
	}
	if strings.HasPrefix(s, "{") {
		var raw struct {
			Verb  string `json:"verb"`
			Value any    `json:"value"`
		}
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return Command{}, fmt.Errorf("control: decode: %w", err)
		}
		if raw.Value == nil {
			return New(raw.Verb)
		}
		return New(raw.Verb, fmt.Sprint(raw.Value))
	}
	fields := strings.Fields(strings.TrimPrefix(s, "/"))
	if len(fields) == 0 {
		return Command{}, errors.New("control: empty command")
	}
	return New(fields[0], fields[1:]...)
}

// ParseBool accepts true/false, on/off, yes/no and integers (non-zero is
// true).
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes":
		return true, nil
	case "false", "off", "no":
		return false, nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n != 0, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
