package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/basegraphhq/researchd/common/llm"
)

// HTTPToolSpec is one user-declared HTTP tool, loaded from configuration
//. URLTemplate may reference any
// declared Params entry as `{param}`; APIKeyParam, if set, is substituted
// from APIKey rather than from the model's arguments, so the key itself is
// never part of the schema the model sees.
type HTTPToolSpec struct {
	Name        string
	Description string
	Method      string // defaults to GET
	URLTemplate string
	APIKeyParam string
	APIKey      string
	Params      []string // declared placeholder names, each becomes a required string arg
}

func registerHTTPTools(specs []HTTPToolSpec) []Tool {
	client := &http.Client{Timeout: defaultFetchTimeout}
	tools := make([]Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, httpTool(client, spec))
	}
	return tools
}

func httpTool(client *http.Client, spec HTTPToolSpec) Tool {
	schema := dynamicParamsSchema(spec.Params)
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	return Tool{
		Type: TypeHTTP,
		Definition: llm.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  schema,
		},
		Invoke: func(ctx context.Context, arguments string) (string, error) {
			args, err := llm.ParseToolArguments[map[string]string](arguments)
			if err != nil {
				return "Error: " + err.Error(), nil
			}

			endpoint := spec.URLTemplate
			for _, p := range spec.Params {
				endpoint = strings.ReplaceAll(endpoint, "{"+p+"}", args[p])
			}
			if spec.APIKeyParam != "" {
				endpoint = strings.ReplaceAll(endpoint, "{"+spec.APIKeyParam+"}", spec.APIKey)
			}

			req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
			if err != nil {
				return "", fmt.Errorf("building request for %s: %w", spec.Name, err)
			}
			req.Header.Set("User-Agent", "researchd/1.0")

			ctxTimeout, cancel := context.WithTimeout(ctx, 20*time.Second)
			defer cancel()
			resp, err := client.Do(req.WithContext(ctxTimeout))
			if err != nil {
				return "", fmt.Errorf("%s transport: %w", spec.Name, err)
			}
			defer resp.Body.Close()

			body, err := readLimited(resp.Body)
			if err != nil {
				return "", fmt.Errorf("%s: reading response: %w", spec.Name, err)
			}
			if resp.StatusCode >= 400 {
				return fmt.Sprintf("%s returned HTTP %d: %s", spec.Name, resp.StatusCode, string(body)), nil
			}
			return string(body), nil
		},
	}
}

// dynamicParamsSchema builds a minimal JSON schema describing one required
// string property per declared param name, for tools whose shape is only
// known once configuration is loaded.
func dynamicParamsSchema(params []string) any {
	properties := map[string]any{}
	for _, p := range params {
		properties[p] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             params,
		"additionalProperties": false,
	}
}
