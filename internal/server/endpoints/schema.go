package endpoints

import (
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request schemas for the POST endpoints. Violations become 422
// envelopes before anything reaches the dispatcher.
const (
	inferRequestSchema = `{
	"type": "object",
	"properties": {
		"logId": {"type": "string"},
		"file": {"type": "string", "minLength": 1},
		"fileType": {"type": ["integer", "null"]},
		"useDocOrientationClassify": {"type": ["boolean", "null"]},
		"useDocUnwarping": {"type": ["boolean", "null"]}
	},
	"required": ["file"]
}`

	restructureRequestSchema = `{
	"type": "object",
	"properties": {
		"logId": {"type": "string"},
		"pages": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"prunedResult": {"type": "object"},
					"markdownImages": {"type": ["object", "null"]}
				}
			}
		},
		"mergeTables": {"type": "boolean"},
		"relevelTitles": {"type": "boolean"},
		"concatenatePages": {"type": "boolean"}
	},
	"required": ["pages"]
}`
)

func mustCompileSchema(name, body string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(body)); err != nil {
		panic(fmt.Sprintf("endpoints: bad schema %s: %v", name, err))
	}
	return c.MustCompile(name)
}

var (
	inferSchema       = mustCompileSchema("infer.json", inferRequestSchema)
	restructureSchema = mustCompileSchema("restructure.json", restructureRequestSchema)
)

// validationMessage flattens a schema validation error into the
// "field.path: message" form, one entry per offending field, joined
// with semicolons.
func validationMessage(err error) string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}

	var msgs []string
	collectLeafCauses(verr, &msgs)
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

func collectLeafCauses(verr *jsonschema.ValidationError, msgs *[]string) {
	if len(verr.Causes) == 0 {
		loc := strings.ReplaceAll(strings.TrimPrefix(verr.InstanceLocation, "/"), "/", ".")
		if loc == "" {
			*msgs = append(*msgs, verr.Message)
		} else {
			*msgs = append(*msgs, fmt.Sprintf("%s: %s", loc, verr.Message))
		}
		return
	}
	for _, cause := range verr.Causes {
		collectLeafCauses(cause, msgs)
	}
}
