package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/gofrs/flock"

	"brickkit/internal/logging"
	"brickkit/internal/services"
)

const runLockName = ".run.lock"

// claimRunDir creates the run directory and holds an exclusive lock on it
// until the returned release func runs.
func (c *Coordinator) claimRunDir(r *Result) (func(), error) {
	if id := r.RunID; id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "claim run dir", fmt.Sprintf("invalid run id %q", id), nil)
	}
	if err := os.MkdirAll(r.RunDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	lock := flock.New(filepath.Join(r.RunDir, runLockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunLocked
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("failed to release run lock", logging.Error(err))
		}
		_ = os.Remove(lock.Path())
	}, nil
}

func sortedCopy(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}
