package api

import (
	"errors"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Peap0ds-23/collaborative-todo-1/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

var (
	taskSchema = jsonschema.MustCompileString("task.json", `{
		"type": "object",
		"properties": {
			"title":       {"type": "string", "maxLength": 500},
			"description": {"type": "string", "maxLength": 5000},
			"dueDate":     {"type": "string"},
			"priority":    {"type": "string"},
			"timeZone":    {"type": "string"}
		},
		"required": ["title"],
		"additionalProperties": false
	}`)
	toggleSchema = jsonschema.MustCompileString("toggle.json", `{
		"type": "object",
		"properties": {"complete": {"type": "boolean"}},
		"required": ["complete"],
		"additionalProperties": false
	}`)
	orderSchema = jsonschema.MustCompileString("order.json", `{
		"type": "object",
		"properties": {
			"taskIds": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"required": ["taskIds"],
		"additionalProperties": false
	}`)
	shareSchema = jsonschema.MustCompileString("share.json", `{
		"type": "object",
		"properties": {"email": {"type": "string"}},
		"required": ["email"],
		"additionalProperties": false
	}`)
	credentialsSchema = jsonschema.MustCompileString("credentials.json", `{
		"type": "object",
		"properties": {
			"email":    {"type": "string"},
			"password": {"type": "string"}
		},
		"required": ["email", "password"],
		"additionalProperties": false
	}`)
)

type taskBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority"`
	TimeZone    string `json:"timeZone"`
}

type toggleBody struct {
	Complete bool `json:"complete"`
}

type orderBody struct {
	TaskIDs []string `json:"taskIds"`
}

type shareBody struct {
	Email string `json:"email"`
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// bindBody reads a JSON body, checks it against schema and decodes it into
// dst. Schema violations come back as *domain.ValidationError.
func bindBody(c echo.Context, schema *jsonschema.Schema, dst any) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize+1))
	if err != nil {
		return &domain.ValidationError{Message: "invalid body"}
	}
	if len(data) > maxBodySize {
		return &domain.ValidationError{Message: "body too large"}
	}
	var doc any
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return &domain.ValidationError{Message: "invalid body"}
	}
	if err := schema.Validate(doc); err != nil {
		return schemaError(err)
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		return &domain.ValidationError{Message: "invalid body"}
	}
	return nil
}

func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &domain.ValidationError{Message: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if field == "" {
		field = missingProperty(leaf.Message)
	}
	return &domain.ValidationError{Field: field, Message: leaf.Message}
}

// missingProperty pulls the first name out of "missing properties: 'a', 'b'".
func missingProperty(msg string) string {
	if !strings.HasPrefix(msg, "missing properties") {
		return ""
	}
	start := strings.IndexByte(msg, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(msg[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
