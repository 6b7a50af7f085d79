// Package utils holds small helpers shared across the pipeline: lenient JSON
// parsing for LLM output and sanitization for prompt-embedded user text.
package utils

import (
	"encoding/json"
	"fmt"
	"regexp"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// StripFences removes a surrounding markdown code fence if present.
func StripFences(s string) string {
	if m := fencePattern.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// RepairJSON attempts to fix common JSON defects in model output: single
// quotes, unquoted keys, trailing commas, unclosed brackets, comments.
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %v", err)
	}
	return repaired, nil
}

// ParseHJSONToStruct parses human-friendly JSON (comments, unquoted keys,
// optional commas) directly into a Go struct. Used for operator config files.
func ParseHJSONToStruct(data []byte, schema interface{}) error {
	if err := hjson.Unmarshal(data, schema); err != nil {
		return fmt.Errorf("HJSON_UNMARSHAL_ERROR: %v", err)
	}
	return nil
}

// SmartParse tries multiple strategies to extract structured data from model
// output. Order of attempts:
//  1. Standard JSON (after fence stripping)
//  2. JSON repair
//  3. Hjson (most lenient)
func SmartParse(input string, schema interface{}) error {
	input = StripFences(input)

	if err := json.Unmarshal([]byte(input), schema); err == nil {
		return nil
	}

	if repaired, err := RepairJSON(input); err == nil {
		if err := json.Unmarshal([]byte(repaired), schema); err == nil {
			return nil
		}
	}

	var loose interface{}
	if err := hjson.Unmarshal([]byte(input), &loose); err == nil {
		if jsonBytes, err := json.Marshal(loose); err == nil {
			if err := json.Unmarshal(jsonBytes, schema); err == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("SMART_PARSE_FAILED: all parsing strategies failed")
}
