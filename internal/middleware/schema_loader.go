package middleware

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	contextutils "issuetracker/internal/utils"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// SchemaLoader holds the compiled request body schemas, keyed by file name
// without the .json suffix
type SchemaLoader struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaLoader creates an empty schema loader
func NewSchemaLoader() *SchemaLoader {
	return &SchemaLoader{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// LoadSchemas compiles every *.json file under dir in fsys
func (sl *SchemaLoader) LoadSchemas(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return contextutils.WrapError(err, "failed to read schema directory")
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to read schema %s", entry.Name())
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return contextutils.WrapErrorf(err, "failed to compile schema %s", entry.Name())
		}
		sl.schemas[strings.TrimSuffix(entry.Name(), ".json")] = schema
	}
	return nil
}

// MustLoadEmbeddedSchemas returns a loader with the schemas compiled into the
// binary. A broken schema is a build defect, so it panics.
func MustLoadEmbeddedSchemas() *SchemaLoader {
	sl := NewSchemaLoader()
	if err := sl.LoadSchemas(schemaFiles, "schemas"); err != nil {
		panic(err)
	}
	return sl
}

// Has reports whether a schema with that name was loaded
func (sl *SchemaLoader) Has(name string) bool {
	_, ok := sl.schemas[name]
	return ok
}

// ValidateBytes validates a raw JSON document against a schema. The first
// failing field is reported as the AppError details.
func (sl *SchemaLoader) ValidateBytes(body []byte, schemaName string) error {
	schema, exists := sl.schemas[schemaName]
	if !exists {
		return contextutils.ErrorWithContextf("schema %s not found", schemaName)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidInput, contextutils.SeverityWarn,
			"Request body is not valid JSON.", "", err)
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	messages := make([]string, 0, len(errs))
	for _, validationErr := range errs {
		messages = append(messages, fmt.Sprintf("%s: %s", validationErr.Field(), validationErr.Description()))
	}
	return contextutils.Validationf(fieldOf(errs[0]), "%s", strings.Join(messages, "; "))
}

// fieldOf names the offending property; "required" errors point at the
// parent object, so the missing property is taken from the details
func fieldOf(e gojsonschema.ResultError) string {
	if e.Type() == "required" {
		if p, ok := e.Details()["property"].(string); ok {
			return p
		}
	}
	if e.Field() == "(root)" {
		return ""
	}
	return e.Field()
}
