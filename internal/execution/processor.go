package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/flexinfer/agentmarket/pkg/types"
)

// Processor turns a step's input into its output.
type Processor interface {
	Process(ctx context.Context, agent types.AgentRef, input string) (string, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, agent types.AgentRef, input string) (string, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, agent types.AgentRef, input string) (string, error) {
	return f(ctx, agent, input)
}

// EchoProcessor returns the input unchanged.
type EchoProcessor struct{}

// Process implements Processor.
func (EchoProcessor) Process(_ context.Context, _ types.AgentRef, input string) (string, error) {
	return input, nil
}

// CannedProcessor returns a fixed response shaped by the agent id.
type CannedProcessor struct{}

const codeAssistantSnippet = "```javascript\n" +
	"// Implementation for: %s\n" +
	"function processInput(data) {\n" +
	"  // Parse the input\n" +
	"  const parsed = JSON.parse(data);\n" +
	"  \n" +
	"  // Process the data\n" +
	"  const result = parsed.map(item => item.value * 2);\n" +
	"  \n" +
	"  return result;\n" +
	"}\n" +
	"```"

// Process implements Processor. A node carries an agent reference whenever
// it has agent data, so an empty id stands for a node without one.
func (CannedProcessor) Process(_ context.Context, agent types.AgentRef, input string) (string, error) {
	switch agent.ID {
	case "":
		return "Processed: " + input, nil
	case "text-generator":
		return "Generated text based on your input: \"" + input + "\"\n\n" +
			"Here's a creative expansion: " + input + " is just the beginning of what we can explore together. " +
			"Let me help you develop this further with some additional ideas and perspectives.", nil
	case "code-assistant":
		return "Here's some code based on your request:\n\n" + fmt.Sprintf(codeAssistantSnippet, input), nil
	case "data-analyzer":
		words := strings.Split(input, " ")
		if len(words) > 3 {
			words = words[:3]
		}
		return "Analysis of your input:\n\n" +
			"• Key themes identified: " + strings.Join(words, ", ") + "\n" +
			"• Sentiment: Positive\n" +
			"• Recommendations: Consider exploring related topics such as X, Y, and Z.", nil
	default:
		return "Processed your input: \"" + input + "\"\n\n" +
			"Here's my response based on my capabilities. " +
			"I've analyzed the content and prepared relevant information that addresses your needs.", nil
	}
}

// NewProcessor resolves a processor by configuration name.
func NewProcessor(name string) (Processor, error) {
	switch name {
	case "", "echo":
		return EchoProcessor{}, nil
	case "canned":
		return CannedProcessor{}, nil
	default:
		return nil, fmt.Errorf("unknown processor %q", name)
	}
}
