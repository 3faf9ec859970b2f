package harness

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/zjrosen/oompa/internal/log"
)

const claudeBinary = "claude"

func init() {
	Register(KindClaude, func() Harness { return &Claude{} })
}

// Claude adapts invocations to the Claude Code CLI.
// The prompt travels in argv; session ids are minted by the CLI and
// recovered from the stream-json init event.
type Claude struct{}

func (c *Claude) Kind() Kind { return KindClaude }

func (c *Claude) BuildCmd(inv Invocation) []string {
	args := []string{claudeBinary, "--print"}
	if inv.Structured {
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	args = append(args, "--dangerously-skip-permissions")
	if inv.Resume && inv.SessionID != "" {
		args = append(args, "--resume", inv.SessionID)
	}
	if inv.Model != "" {
		args = append(args, "--model", inv.Model)
	}
	args = append(args, "--", inv.Prompt)
	return args
}

// Stdin returns nil: the prompt is delivered via argv.
func (c *Claude) Stdin(string) []byte { return nil }

// NewSessionID returns "": the CLI mints its own session id, which
// ParseOutput extracts from the init event.
func (c *Claude) NewSessionID() string { return "" }

// claudeEvent is the subset of the stream-json protocol we consume.
type claudeEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	Message   struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// ParseOutput walks the stream-json lines, collecting assistant text and
// the session id from the system/init event. Non-JSON lines are kept
// verbatim so plain-text output still round-trips.
func (c *Claude) ParseOutput(raw []byte, currentSessionID string) Output {
	out := Output{SessionID: currentSessionID}
	var text strings.Builder

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var ev claudeEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.Write(line)
			continue
		}

		switch ev.Type {
		case "system":
			if ev.Subtype == "init" && ev.SessionID != "" {
				out.SessionID = ev.SessionID
			}
		case "assistant":
			for _, block := range ev.Message.Content {
				if block.Type != "text" || block.Text == "" {
					continue
				}
				if text.Len() > 0 {
					text.WriteByte('\n')
				}
				text.WriteString(block.Text)
			}
		case "result":
			if ev.Result != "" && !strings.Contains(text.String(), ev.Result) {
				if text.Len() > 0 {
					text.WriteByte('\n')
				}
				text.WriteString(ev.Result)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn(log.CatHarness, "claude output scan failed", "error", err.Error())
	}

	out.Text = text.String()
	return out
}

func (c *Claude) Available() bool { return BinaryAvailable(claudeBinary) }

func (c *Claude) ProbeCmd(model string) []string {
	args := []string{claudeBinary, "--print"}
	if model != "" {
		args = append(args, "--model", model)
	}
	return append(args, "--", "say ok")
}
