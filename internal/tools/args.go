// ABOUTME: Compatibility shims applied to argument mappings before handlers run.
// ABOUTME: Unwraps kwargs-wrapped payloads and remaps declared argument synonyms.

package tools

import (
	"encoding/json"
	"fmt"
)

// unwrapKwargs flattens arguments sent as {"kwargs": {...}} or
// {"kwargs": "<json object>"} into a plain mapping. Some external callers
// wrap tool arguments this way; the unwrap happens exactly once.
func unwrapKwargs(args map[string]any) map[string]any {
	if len(args) != 1 {
		return args
	}
	wrapped, ok := args["kwargs"]
	if !ok {
		return args
	}

	switch v := wrapped.(type) {
	case map[string]any:
		return v
	case string:
		var inner map[string]any
		if err := json.Unmarshal([]byte(v), &inner); err == nil {
			return inner
		}
	}
	return args
}

// applySynonyms moves values from declared aliases to their canonical
// argument name. A canonical value already present always wins.
func applySynonyms(synonyms map[string]string, args map[string]any) map[string]any {
	if len(synonyms) == 0 {
		return args
	}
	for alias, canonical := range synonyms {
		v, ok := args[alias]
		if !ok {
			continue
		}
		if _, present := args[canonical]; !present {
			args[canonical] = v
		}
		delete(args, alias)
	}
	return args
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrMissingArgument, key)
	}
	return s, nil
}

// contentArg extracts the content argument for write operations. Presence
// is required but an empty string is a valid value.
func contentArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingArgument, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
	}
	return s, nil
}

// mapArg extracts an optional object argument.
func mapArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q: expected object, got %T", key, v)
	}
	return m, nil
}
