package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/textwand/textwand/internal/script"
)

// CustomOperation is the operation whose instruction the caller supplies
// wholesale through the "prompt" parameter.
const CustomOperation = "custom"

// Operation binds an identifier to an instruction template. Templates may
// reference parameters as {name}. Script, when set, names a Lua preparer
// that produces the instruction at render time instead.
type Operation struct {
	ID          string
	Instruction string
	Script      string
}

// Rendered is the outcome of rendering one operation against input text.
// When Direct is true the operation resolved locally (a script declined to
// involve a provider) and Message is the reply to hand back as-is.
type Rendered struct {
	Prompt  string
	Direct  bool
	Message string
}

type UnknownOperationError struct{ ID string }

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("Unknown operation: %q", e.ID)
}

type MissingParameterError struct {
	Operation string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("Missing parameter %q for operation %q", e.Parameter, e.Operation)
}

type EmptyInputError struct{}

func (e *EmptyInputError) Error() string { return "No text provided" }

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)}`)

// Library is the immutable operation table. Rendering is a pure function
// over the table and its arguments.
type Library struct {
	ops map[string]Operation
}

// NewLibrary builds a library from the given operations. Later entries
// override earlier ones with the same ID, which lets config-defined
// operations shadow the built-ins.
func NewLibrary(ops []Operation) *Library {
	table := make(map[string]Operation, len(ops))
	for _, op := range ops {
		table[op.ID] = op
	}
	return &Library{ops: table}
}

// Operations returns the known operation IDs in no particular order.
func (l *Library) Operations() []string {
	ids := make([]string, 0, len(l.ops))
	for id := range l.ops {
		ids = append(ids, id)
	}
	return ids
}

// Render assembles the final prompt for operationID: the instruction with
// parameters substituted, a blank line, then the input text verbatim.
func (l *Library) Render(operationID, text string, params map[string]string) (Rendered, error) {
	op, ok := l.ops[operationID]
	if operationID == "" || !ok {
		return Rendered{}, &UnknownOperationError{ID: operationID}
	}
	if strings.TrimSpace(text) == "" {
		return Rendered{}, &EmptyInputError{}
	}

	if op.Script != "" {
		return renderScript(op, text)
	}

	instruction := op.Instruction
	if op.ID == CustomOperation {
		if p, ok := params["prompt"]; ok && strings.TrimSpace(p) != "" {
			instruction = p
		}
	}
	for name, value := range params {
		instruction = strings.ReplaceAll(instruction, "{"+name+"}", value)
	}
	if m := placeholderPattern.FindStringSubmatch(instruction); m != nil {
		return Rendered{}, &MissingParameterError{Operation: op.ID, Parameter: m[1]}
	}

	return Rendered{Prompt: instruction + "\n\n" + text}, nil
}

func renderScript(op Operation, text string) (Rendered, error) {
	res, err := script.RunPrepare(op.Script, text)
	if err != nil {
		return Rendered{}, fmt.Errorf("operation %q script: %w", op.ID, err)
	}
	if !res.SendToProvider {
		return Rendered{Direct: true, Message: res.Content}, nil
	}
	return Rendered{Prompt: res.Content}, nil
}
