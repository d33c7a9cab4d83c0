package manifest

// schema describes testsets.json: an object keyed by test set directory, each
// holding an ordered array of test entries.
const schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "array",
    "items": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "timeout": {"type": "number", "minimum": 0},
        "skip": {
          "oneOf": [
            {"type": "string"},
            {"type": "array", "items": {"type": "string"}}
          ]
        },
        "reason": {"type": "string"},
        "expected-fail": {"type": "boolean"},
        "uncaught": {"type": "boolean"},
        "expected": {"type": "string", "minLength": 1}
      }
    }
  }
}`
