// Package insight defines the structured object the assistant streams back:
// a verbal response plus an ordered list of proposed KPIs.
package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation reports model output that does not decode into Result.
var ErrSchemaViolation = errors.New("insight: output violates schema")

// SchemaName is the response format name announced to providers.
const SchemaName = "insight_result"

// SchemaJSON is the JSON Schema both sent to providers and used to validate
// their completed output.
const SchemaJSON = `{
  "type": "object",
  "properties": {
    "response": {
      "type": "string",
      "description": "The verbal response to the user's query. For example, 'Sure! I've modified...'"
    },
    "queries": {
      "type": "array",
      "description": "A list of insights relevant to the user's request.",
      "items": {
        "type": "object",
        "properties": {
          "name": {
            "type": "string",
            "description": "A short, descriptive name for the insight we are interested in."
          },
          "description": {
            "type": "string",
            "description": "A detailed description of the insight, including what it reveals about the data."
          }
        },
        "required": ["name", "description"],
        "additionalProperties": false
      }
    }
  },
  "required": ["response", "queries"],
  "additionalProperties": false
}`

// Proposal is one KPI the assistant suggests tracking.
type Proposal struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Result is a partial or final snapshot of one model call.
type Result struct {
	Response string     `json:"response"`
	Queries  []Proposal `json:"queries"`
}

// Clone returns a deep copy so snapshots handed to other goroutines never
// share the queries backing array.
func (r Result) Clone() Result {
	out := Result{Response: r.Response}
	if r.Queries != nil {
		out.Queries = make([]Proposal, len(r.Queries))
		copy(out.Queries, r.Queries)
	}
	return out
}

// Equal reports whether two snapshots carry the same content.
func (r Result) Equal(other Result) bool {
	if r.Response != other.Response || len(r.Queries) != len(other.Queries) {
		return false
	}
	for i := range r.Queries {
		if r.Queries[i] != other.Queries[i] {
			return false
		}
	}
	return true
}

// Extends reports whether next is a refinement of prev: no proposal removed
// or reordered and every string only grown at its end.
func Extends(prev, next Result) bool {
	if !strings.HasPrefix(next.Response, prev.Response) {
		return false
	}
	if len(next.Queries) < len(prev.Queries) {
		return false
	}
	for i, p := range prev.Queries {
		n := next.Queries[i]
		if !strings.HasPrefix(n.Name, p.Name) || !strings.HasPrefix(n.Description, p.Description) {
			return false
		}
	}
	return true
}

var (
	compiledOnce sync.Once
	compiled     *gojsonschema.Schema
	compileErr   error
)

func schema() (*gojsonschema.Schema, error) {
	compiledOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(SchemaJSON))
	})
	return compiled, compileErr
}

// Decode strictly parses completed model output. Anything that is not a
// schema-valid document yields ErrSchemaViolation.
func Decode(raw string) (Result, error) {
	doc := trimFence(raw)
	if doc == "" {
		return Result{}, fmt.Errorf("%w: empty output", ErrSchemaViolation)
	}
	s, err := schema()
	if err != nil {
		return Result{}, fmt.Errorf("insight: compile schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Result{}, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
	}
	var out Result
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if out.Queries == nil {
		out.Queries = []Proposal{}
	}
	return out, nil
}

// trimFence strips markdown code fences and any chatter before the first
// opening brace, which some providers emit even in JSON mode.
func trimFence(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}
