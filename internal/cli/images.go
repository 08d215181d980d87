package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/wheelforge/wheelforge/internal/environment"
)

// Represents the 'wheelforge images' command.
type ImagesCmd struct{}

// Executes the images command, listing every supported build environment
// key with its image reference.
func (c *ImagesCmd) Run(ctx context.Context) error {
	for _, pair := range environment.Images() {
		fmt.Printf("%-28s %s\n", pair[0], pair[1])
	}
	fmt.Printf("\npython versions: %s\n", strings.Join(environment.SupportedVersions(), ", "))
	return nil
}
