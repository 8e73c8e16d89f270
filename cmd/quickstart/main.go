package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/raezil/agentchat-go/agent"
)

func main() {
	keyFlag := flag.String("key", "", "agent API key (overrides AGENT_API_KEY)")
	agentFlag := flag.String("agent", "", "agent ID (overrides AGENT_ID)")
	flag.Parse()

	cfg := agent.LoadConfig(os.Getenv)
	if *keyFlag != "" {
		cfg.APIKey = *keyFlag
	}
	if *agentFlag != "" {
		cfg.AgentID = *agentFlag
	}
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "missing API key: set -key or AGENT_API_KEY")
		os.Exit(2)
	}
	client := agent.NewClient(cfg.APIKey, cfg.Options()...)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res := client.Chat(ctx, "Summarise what you can help me with in two sentences.")
	if !res.Success {
		fmt.Fprintf(os.Stderr, "%s: %s\n", res.Error.Kind, res.Error.Message)
		if res.Error.RawResponse != nil {
			fmt.Fprintln(os.Stderr, *res.Error.RawResponse)
		}
		os.Exit(1)
	}
	fmt.Println(res.Message)

	// The decoded payload is available too.
	out, _ := json.MarshalIndent(res.Data, "", "  ")
	fmt.Println(string(out))
}
