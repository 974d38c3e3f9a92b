package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/basegraphhq/researchd/common/llm"
)

// MCPServerSpec configures one stdio-subprocess MCP server// "stdio-subprocess servers announcing their own tool list on startup").
type MCPServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     []string
}

// mcpClient speaks a minimal subset of the Model Context Protocol over a
// subprocess's stdin/stdout: initialize, tools/list, tools/call. It is
// intentionally narrow — enough to discover and invoke tools a declared
// server exposes, not a full client implementation.
type mcpClient struct {
	cmd    *exec.Cmd
	stdin  *bufio.Writer
	stdout *bufio.Reader
	mu     sync.Mutex
	nextID int64
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type mcpToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

func startMCPClient(ctx context.Context, spec MCPServerSpec) (*mcpClient, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Env = append(cmd.Env, spec.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp %s: stdin pipe: %w", spec.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp %s: stdout pipe: %w", spec.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp %s: start: %w", spec.Name, err)
	}

	client := &mcpClient{
		cmd:    cmd,
		stdin:  bufio.NewWriter(stdin),
		stdout: bufio.NewReader(stdout),
	}

	if _, err := client.call("initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "researchd", "version": "1.0"},
	}); err != nil {
		return nil, fmt.Errorf("mcp %s: initialize: %w", spec.Name, err)
	}
	return client, nil
}

func (c *mcpClient) call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := atomic.AddInt64(&c.nextID, 1)
	req := jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if err := c.stdin.Flush(); err != nil {
		return nil, fmt.Errorf("flushing request: %w", err)
	}

	line, err := c.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (c *mcpClient) listTools() ([]mcpToolDescriptor, error) {
	result, err := c.call("tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Tools []mcpToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("decoding tools/list: %w", err)
	}
	return payload.Tools, nil
}

func (c *mcpClient) callTool(name, argumentsJSON string) (string, error) {
	var arguments map[string]any
	if err := json.Unmarshal([]byte(argumentsJSON), &arguments); err != nil {
		return "", fmt.Errorf("decoding tool arguments: %w", err)
	}
	result, err := c.call("tools/call", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return "", err
	}
	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return string(result), nil
	}
	var text string
	for _, c := range payload.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return text, nil
}

// registerMCPServer starts the subprocess, discovers its tool list, and
// wraps each discovered tool as a registered Tool. A server that fails to
// start or announce its tools is logged by the caller and skipped — one
// misbehaving MCP server never blocks the rest of the registry from
// assembling.
func registerMCPServer(ctx context.Context, spec MCPServerSpec) ([]Tool, func() error, error) {
	client, err := startMCPClient(ctx, spec)
	if err != nil {
		return nil, nil, err
	}

	descriptors, err := client.listTools()
	if err != nil {
		_ = client.cmd.Process.Kill()
		return nil, nil, fmt.Errorf("mcp %s: listing tools: %w", spec.Name, err)
	}

	tools := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		d := d
		tools = append(tools, Tool{
			Type: TypeMCP,
			Definition: llm.Tool{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
			Invoke: func(_ context.Context, arguments string) (string, error) {
				return client.callTool(d.Name, arguments)
			},
		})
	}

	closeFn := func() error {
		if c := client.cmd; c != nil && c.Process != nil {
			return c.Process.Kill()
		}
		return nil
	}
	return tools, closeFn, nil
}
