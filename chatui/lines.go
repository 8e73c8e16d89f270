package chatui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/raezil/agentchat-go/agent"
	"github.com/raezil/agentchat-go/hostlink"
)

// RunLines is the non-interactive front-end used when stdin is not a
// terminal: one message per input line, one reply per output block.
func RunLines(ctx context.Context, client Sender, relay *hostlink.Relay, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		text := strings.TrimSpace(sc.Text())
		switch text {
		case "":
			continue
		case "/fix":
			fmt.Fprintln(out, requestFix(relay))
			continue
		}
		res := client.CallAgent(ctx, agent.AgentRequest{Message: text})
		if res.Success {
			fmt.Fprintf(out, "agent> %s\n", res.Message)
		} else {
			fmt.Fprintf(out, "error> %s\n", describe(res.Error))
		}
	}
	return sc.Err()
}
