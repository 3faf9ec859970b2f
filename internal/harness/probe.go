package harness

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/zjrosen/oompa/internal/log"
)

// DefaultProbeTimeout bounds the launch-time "say ok" probe.
const DefaultProbeTimeout = 60 * time.Second

// Probe runs the harness's "say ok" command to verify the binary and
// model actually respond before the swarm starts burning cycles on them.
func Probe(ctx context.Context, h Harness, model string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := h.ProbeCmd(model)
	if len(argv) == 0 {
		return fmt.Errorf("harness %s built an empty probe command", h.Kind())
	}

	log.Debug(log.CatHarness, "probing", "kind", string(h.Kind()), "model", model)
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput() //nolint:gosec // G204: argv comes from the harness adapter
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return fmt.Errorf("probe %s/%s: %w: %s", h.Kind(), model, err, detail)
	}
	return nil
}
