package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewCleanCommand creates the clean command.
func NewCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the cache database",
		Long: `Delete the cache database and its sidecar files. The next analysis
starts from scratch and rebuilds the cache.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutEngine(cmd)

			path := cc.Cfg.CachePath
			if path == "" || path == ":memory:" {
				cc.Renderer.Println("Cache is in-memory; nothing to clean")
				return nil
			}

			removed := false
			for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
				err := os.Remove(p)
				if err == nil {
					removed = true
					continue
				}
				if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("failed to remove %s: %w", p, err)
				}
			}

			if !removed {
				cc.Renderer.Printf("No cache found at %s\n", path)
				return nil
			}

			// Drop the cache directory too if nothing else lives there.
			_ = os.Remove(filepath.Dir(path))

			cc.Renderer.Success(fmt.Sprintf("Removed cache at %s", path))
			return nil
		},
	}
}
