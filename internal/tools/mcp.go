package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer registers every tool of svc on a new MCP server.
func NewMCPServer(svc *Service, name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	addTool(server, svc, ToolSearchDecisions, svc.SearchDecisions)
	addTool(server, svc, ToolSearchCanton, svc.SearchCanton)
	addTool(server, svc, ToolRelatedDecisions, svc.RelatedDecisions)
	addTool(server, svc, ToolDecisionDetails, svc.DecisionDetails)
	addTool(server, svc, ToolSuccessRate, svc.SuccessRate)
	addTool(server, svc, ToolSimilarCases, svc.SimilarCases)
	addTool(server, svc, ToolProvisionInterpret, svc.ProvisionInterpretation)
	return server
}

// ServeStdio serves the tools over stdin/stdout until ctx is cancelled or the client disconnects.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

func addTool[In, Out any](server *mcp.Server, svc *Service, name string, fn func(context.Context, In) (*Out, error)) {
	tool := &mcp.Tool{Name: name, Description: description(name)}
	mcp.AddTool(server, tool, handler(svc, name, fn))
}

// handler adapts a service method to the SDK's typed handler. Errors become
// tool errors; the SDK renders Out as structured and text content.
func handler[In, Out any](svc *Service, name string, fn func(context.Context, In) (*Out, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		var zero Out
		out, err := fn(ctx, in)
		if err != nil {
			svc.logFailure(name, err)
			return nil, zero, err
		}
		return nil, *out, nil
	}
}

func description(name string) string {
	for _, info := range toolInfos {
		if info.Name == name {
			return info.Description
		}
	}
	return ""
}
