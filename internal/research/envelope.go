package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// #region envelope

// ErrorDetail is the structured failure half of a ResultEnvelope.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ResultEnvelope is the only value that crosses the engine's boundary.
// Exactly one of Report or Error is set.
type ResultEnvelope struct {
	Report *Report
	Error  *ErrorDetail
}

// Succeed wraps a report.
func Succeed(r Report) ResultEnvelope {
	return ResultEnvelope{Report: &r}
}

// Fail wraps a structured error. An empty message falls back to the kind.
func Fail(kind ErrorKind, message string) ResultEnvelope {
	if strings.TrimSpace(message) == "" {
		message = string(kind)
	}
	return ResultEnvelope{Error: &ErrorDetail{Kind: kind, Message: message}}
}

// OK reports whether the envelope carries a report.
func (e ResultEnvelope) OK() bool {
	return e.Report != nil && e.Error == nil
}

// Valid reports whether exactly one side of the union is set.
func (e ResultEnvelope) Valid() bool {
	return (e.Report == nil) != (e.Error == nil)
}

// #endregion envelope

// #region json

type envelopeJSON struct {
	Report *Report   `json:"report,omitempty"`
	Error  string    `json:"error,omitempty"`
	Kind   ErrorKind `json:"kind,omitempty"`
}

// MarshalJSON renders {"report": ...} or {"error": "...", "kind": "..."}.
func (e ResultEnvelope) MarshalJSON() ([]byte, error) {
	if !e.Valid() {
		return nil, errors.New("result envelope must hold exactly one of report or error")
	}
	if e.Report != nil {
		return json.Marshal(envelopeJSON{Report: e.Report})
	}
	return json.Marshal(envelopeJSON{Error: e.Error.Message, Kind: e.Error.Kind})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *ResultEnvelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Report != nil && raw.Error == "":
		*e = ResultEnvelope{Report: raw.Report}
	case raw.Report == nil && raw.Error != "":
		kind := raw.Kind
		if kind == "" {
			kind = KindInternalError
		}
		*e = ResultEnvelope{Error: &ErrorDetail{Kind: kind, Message: raw.Error}}
	default:
		return errors.New("result envelope must hold exactly one of report or error")
	}
	return nil
}

// #endregion json

// #region markdown

// Markdown renders the report as a plain markdown document.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	if r.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Summary)
	}
	for _, s := range r.Sections {
		fmt.Fprintf(&b, "## %s\n\n%s", s.Heading, s.Body)
		if len(s.Citations) > 0 {
			refs := make([]string, len(s.Citations))
			for i, n := range s.Citations {
				refs[i] = fmt.Sprintf("[%d]", n)
			}
			fmt.Fprintf(&b, " %s", strings.Join(refs, ""))
		}
		b.WriteString("\n\n")
	}
	if len(r.References) > 0 {
		b.WriteString("## References\n\n")
		for _, ref := range r.References {
			if ref.Title != "" {
				fmt.Fprintf(&b, "%d. %s (%s)\n", ref.Number, ref.Title, ref.Origin)
			} else {
				fmt.Fprintf(&b, "%d. %s\n", ref.Number, ref.Origin)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// #endregion markdown
