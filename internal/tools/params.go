package tools

import (
	"fmt"
	"math"
	"strconv"
)

// maxExactFloat is the largest integer a JSON number decodes to without loss.
const maxExactFloat = 1 << 53

func stringParam(params map[string]interface{}, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok
}

func requiredString(params map[string]interface{}, key string) (string, error) {
	s, ok := stringParam(params, key)
	if !ok || s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// intParam accepts JSON numbers and numeric strings.
func intParam(params map[string]interface{}, key string) (int, bool, error) {
	switch v := params[key].(type) {
	case nil:
		return 0, false, nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > maxExactFloat {
			return 0, false, fmt.Errorf("invalid %s: %v is not an integer", key, v)
		}
		return int(v), true, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s: %w", key, err)
		}
		return n, true, nil
	default:
		return 0, false, fmt.Errorf("invalid %s: unexpected type %T", key, v)
	}
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}
