package main

import (
	"context"
	"fmt"
	"os"

	"github.com/raezil/agentchat-go/agent"
)

func main() {
	client := agent.NewClient(os.Getenv("AGENT_API_KEY"),
		agent.WithAgentID(os.Getenv("AGENT_ID")),
	)

	res := client.CallAgent(context.Background(), agent.AgentRequest{
		Message: "Hello! What can you help me with?",
	})
	if err := res.Err(); err != nil {
		panic(err)
	}

	fmt.Printf("%s\n", res.Message)
}
