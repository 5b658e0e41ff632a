package utils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"taskmaster/backend"
)

const taskSchemaURL = "taskmaster://schemas/task.json"

const taskSchemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "dueDate", "priority", "category"],
  "properties": {
    "_id": {"type": "string"},
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "dueDate": {"type": "string", "format": "date"},
    "priority": {"enum": ["low", "medium", "high"]},
    "category": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "uniqueItems": true
    },
    "status": {"enum": ["pending", "completed"]}
  }
}`

var (
	taskSchema     *jsonschema.Schema
	taskSchemaErr  error
	taskSchemaOnce sync.Once
)

func compiledTaskSchema() (*jsonschema.Schema, error) {
	taskSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(taskSchemaURL, strings.NewReader(taskSchemaSource)); err != nil {
			taskSchemaErr = err
			return
		}
		taskSchema, taskSchemaErr = compiler.Compile(taskSchemaURL)
	})
	return taskSchema, taskSchemaErr
}

// ValidateTaskPayload checks the JSON a task would be sent as. The first
// schema violation is reported as a ValidationError on the offending field.
func ValidateTaskPayload(task *backend.Task) error {
	schema, err := compiledTaskSchema()
	if err != nil {
		return fmt.Errorf("task schema: %w", err)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode task: %w", err)
	}

	if err := schema.Validate(obj); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return err
		}
		leaf := firstLeaf(ve)
		return &ValidationError{Field: fieldFromPointer(leaf.InstanceLocation), Message: leaf.Message}
	}
	return nil
}

func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

func fieldFromPointer(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "task"
	}
	return strings.ReplaceAll(ptr, "/", ".")
}
