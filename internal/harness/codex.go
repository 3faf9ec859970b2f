package harness

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/zjrosen/oompa/internal/log"
)

const codexBinary = "codex"

func init() {
	Register(KindCodex, func() Harness { return &Codex{} })
}

// Codex adapts invocations to the OpenAI Codex CLI.
// The prompt travels on stdin; thread ids come back in the
// thread.started event of the JSON line stream.
type Codex struct{}

func (c *Codex) Kind() Kind { return KindCodex }

func (c *Codex) BuildCmd(inv Invocation) []string {
	args := []string{codexBinary, "exec", "--skip-git-repo-check"}
	if inv.Structured {
		args = append(args, "--json")
	}
	if inv.WorkDir != "" {
		args = append(args, "-C", inv.WorkDir)
	}
	if inv.Model != "" {
		args = append(args, "-m", inv.Model)
	}
	if inv.Reasoning != "" {
		args = append(args, "-c", "model_reasoning_effort="+inv.Reasoning)
	}
	if inv.Resume && inv.SessionID != "" {
		args = append(args, "resume", inv.SessionID)
	}
	// Read the prompt from stdin.
	args = append(args, "-")
	return args
}

func (c *Codex) Stdin(prompt string) []byte { return []byte(prompt) }

// NewSessionID returns "": codex mints thread ids itself, which
// ParseOutput extracts from the thread.started event.
func (c *Codex) NewSessionID() string { return "" }

// codexEvent is the subset of the codex JSON line protocol we consume.
type codexEvent struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	Item     struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

// ParseOutput walks the JSON lines, collecting agent messages and the
// thread id. Non-JSON lines are kept verbatim for plain-text runs.
func (c *Codex) ParseOutput(raw []byte, currentSessionID string) Output {
	out := Output{SessionID: currentSessionID}
	var text strings.Builder

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var ev codexEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.Write(line)
			continue
		}

		switch ev.Type {
		case "thread.started":
			if ev.ThreadID != "" {
				out.SessionID = ev.ThreadID
			}
		case "item.completed":
			if ev.Item.Type == "agent_message" && ev.Item.Text != "" {
				if text.Len() > 0 {
					text.WriteByte('\n')
				}
				text.WriteString(ev.Item.Text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn(log.CatHarness, "codex output scan failed", "error", err.Error())
	}

	out.Text = text.String()
	return out
}

func (c *Codex) Available() bool { return BinaryAvailable(codexBinary) }

func (c *Codex) ProbeCmd(model string) []string {
	args := []string{codexBinary, "exec", "--skip-git-repo-check"}
	if model != "" {
		args = append(args, "-m", model)
	}
	return append(args, "say ok")
}
