// Package chain threads values out of one response into later requests.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmespath/go-jmespath"
)

// ErrNotJSON is returned when a body cannot be searched
var ErrNotJSON = errors.New("response is not valid JSON")

// Expressions used by the scenarios
const (
	PathStatus       = "status"
	PathUsername     = "data.username"
	PathAccessToken  = "data.accessToken"
	PathRefreshToken = "data.refreshToken"
	PathErrorMessage = "error.message"
)

var (
	accessTokenExpr  = jmespath.MustCompile(PathAccessToken)
	refreshTokenExpr = jmespath.MustCompile(PathRefreshToken)
)

// TokenPair is the access/refresh token pair of a credentials response
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Lookup resolves a single expression. ok is false when the value is
// absent or null.
func Lookup(responseBody, jmesPath string) (value string, ok bool, err error) {
	jsonData, err := decode(responseBody)
	if err != nil {
		return "", false, err
	}

	result, err := jmespath.Search(jmesPath, jsonData)
	if err != nil {
		return "", false, fmt.Errorf("failed to search %s: %w", jmesPath, err)
	}
	if result == nil {
		return "", false, nil
	}

	value, err = stringify(result)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Tokens pulls data.accessToken and data.refreshToken out of a
// credentials response. Missing tokens come back empty.
func Tokens(responseBody string) (TokenPair, error) {
	jsonData, err := decode(responseBody)
	if err != nil {
		return TokenPair{}, err
	}

	var pair TokenPair
	if v, err := accessTokenExpr.Search(jsonData); err == nil {
		pair.AccessToken, _ = v.(string)
	}
	if v, err := refreshTokenExpr.Search(jsonData); err == nil {
		pair.RefreshToken, _ = v.(string)
	}
	return pair, nil
}

func decode(body string) (interface{}, error) {
	var jsonData interface{}
	if err := json.Unmarshal([]byte(body), &jsonData); err != nil {
		return nil, ErrNotJSON
	}
	return jsonData, nil
}

func stringify(result interface{}) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%g", v), nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	default:
		// For complex types, marshal to JSON
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to convert extracted value to string: %w", err)
		}
		return string(jsonBytes), nil
	}
}
