package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/saiset-co/sai-trade-client/types"
	"github.com/saiset-co/sai-trade-client/utils"
)

type builtRequest struct {
	method string
	path   string
	query  string
	body   []byte
}

// buildRequest fills {name} placeholders from params. Whatever is left goes
// to the query string for GET and DELETE and to a JSON body otherwise.
func buildRequest(op types.Operation, params types.Params) (*builtRequest, error) {
	remaining := make(map[string]interface{}, len(params))
	for k, v := range params {
		remaining[k] = v
	}

	path, err := interpolatePath(op.Path, remaining)
	if err != nil {
		return nil, err
	}

	req := &builtRequest{method: op.Method, path: path}

	if len(remaining) == 0 {
		return req, nil
	}

	switch op.Method {
	case "GET", "DELETE":
		req.query = encodeQuery(remaining)
	default:
		body, err := utils.Marshal(remaining)
		if err != nil {
			return nil, types.WrapError(err, "failed to marshal request body")
		}
		req.body = body
	}

	return req, nil
}

func interpolatePath(template string, params map[string]interface{}) (string, error) {
	var b strings.Builder

	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			b.WriteString(template)
			break
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			b.WriteString(template)
			break
		}
		end += start

		name := template[start+1 : end]
		value, ok := params[name]
		if !ok || value == nil {
			return "", types.Errorf(types.ErrMissingPathParam, "%s", name)
		}
		delete(params, name)

		b.WriteString(template[:start])
		b.WriteString(url.PathEscape(formatParam(value)))
		template = template[end+1:]
	}

	return b.String(), nil
}

func encodeQuery(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
		case []interface{}:
			for _, item := range v {
				values.Add(k, formatParam(item))
			}
		case []string:
			for _, item := range v {
				values.Add(k, item)
			}
		default:
			values.Add(k, formatParam(v))
		}
	}

	return values.Encode()
}

// formatParam renders numbers decoded from JSON (float64) without an
// exponent, so 12345678 stays 12345678.
func formatParam(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// CacheKey derives "<operation>.<canonical params>" so equal params always
// share an entry.
func CacheKey(operation string, params types.Params) (string, error) {
	if len(params) == 0 {
		return operation, nil
	}

	encoded, err := utils.MarshalCanonical(params)
	if err != nil {
		return "", types.WrapError(err, "failed to derive cache key")
	}

	return utils.JoinKey(operation, string(encoded)), nil
}
