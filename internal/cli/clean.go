package cli

import (
	"context"
	"fmt"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"github.com/wheelforge/wheelforge/internal/publish"
)

// Represents the 'wheelforge clean' command.
type CleanCmd struct {
	Dir string `arg:"" optional:"" default:"dist" help:"Output directory to clean."`
}

// Executes the clean command, removing built artifacts from the given
// directory. The same guard rails apply as during publication.
func (c *CleanCmd) Run(ctx context.Context) error {
	dir, err := filepath.Abs(c.Dir)
	if err != nil {
		return pkgerrors.Errorf("resolving %q: %v", c.Dir, err)
	}

	removed, err := publish.Clean(dir)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d artifact(s) from %s\n", removed, dir)
	return nil
}
