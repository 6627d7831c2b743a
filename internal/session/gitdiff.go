package session

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// gitProbeTimeout bounds a single git invocation so a hung child
// process cannot pile up probes.
const gitProbeTimeout = 10 * time.Second

// gitDiffShortstat runs `git diff --shortstat` in dir and returns
// the parsed (additions, deletions). Any failure reports ok=false
// and the caller leaves the stored status untouched.
func gitDiffShortstat(ctx context.Context, dir string) (additions, deletions uint64, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, gitProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "diff", "--shortstat")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return 0, 0, false
	}
	additions, deletions = parseShortstat(string(out))
	return additions, deletions, true
}

// parseShortstat extracts the insertion and deletion counts from
// `git diff --shortstat` output, e.g.
// " 3 files changed, 42 insertions(+), 10 deletions(-)".
// Empty output means a clean tree.
func parseShortstat(out string) (additions, deletions uint64) {
	for _, segment := range strings.Split(out, ",") {
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		n, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(segment, "insertion"):
			additions = n
		case strings.Contains(segment, "deletion"):
			deletions = n
		}
	}
	return additions, deletions
}
