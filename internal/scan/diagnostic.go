package scan

import (
	"fmt"
	"strings"
)

// Kind identifies which part of an exported signature a Diagnostic is
// about.
type Kind int

const (
	NonSerializableParam Kind = iota + 1
	NonSerializableReturn
)

// Message templates. {{funcName}} and {{paramName}} are substituted by
// Diagnostic.Message.
const (
	ParamTemplate  = "API function '{{funcName}}' parameter '{{paramName}}' has a non-serializable type."
	ReturnTemplate = "API function '{{funcName}}' return value has a non-serializable type."
)

// String returns the message ID of the kind.
func (k Kind) String() string {
	switch k {
	case NonSerializableParam:
		return "nonSerializableParam"
	case NonSerializableReturn:
		return "nonSerializableReturn"
	default:
		return "unknown"
	}
}

// ParseKind parses a message ID as returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "nonSerializableParam":
		return NonSerializableParam, nil
	case "nonSerializableReturn":
		return NonSerializableReturn, nil
	}
	return 0, fmt.Errorf("unknown diagnostic kind %q", s)
}

// Template returns the message template of the kind.
func (k Kind) Template() string {
	if k == NonSerializableReturn {
		return ReturnTemplate
	}
	return ParamTemplate
}

// Diagnostic reports one exported function parameter or return value whose
// declared type is not serializable. Line is 1-based; Column is 0-based and
// counted in UTF-16 code units. Path, Line, Column and Offset locate the
// function's declaration, which for a re-export is in another module.
type Diagnostic struct {
	Kind      Kind
	FuncName  string
	ParamName string
	Type      string
	Path      string
	Line      int
	Column    int
	Offset    int
}

// Message renders the kind's template with the diagnostic's fields.
func (d Diagnostic) Message() string {
	return strings.NewReplacer(
		"{{funcName}}", d.FuncName,
		"{{paramName}}", d.ParamName,
	).Replace(d.Kind.Template())
}

// String formats the diagnostic as path:line:col: message.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", d.Path, d.Line, d.Column+1, d.Message())
}
