// Command quill is the development and operations CLI: docker compose
// helpers, migrations, tokens and a chat client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill development CLI",
		Long: `Quill CLI drives the docker compose stack, runs tests and the binaries, applies
database migrations, mints API tokens and asks questions about uploaded PDFs.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newStackCmd(),
		newTestCmd(),
		newRunCmd(),
		newMigrateCmd(),
		newTokenCmd(),
		newPlansCmd(),
		newSubscribeCmd(),
		newAskCmd(),
	)
	return cmd
}

// composeFlag is a boolean flag that appends extra arguments to a compose
// invocation when set.
type composeFlag struct {
	name, usage string
	def         bool
	adds        []string
	value       bool
}

// newComposeCmd builds a "docker compose <verb>" subcommand. Positional args
// are passed through as service names when services is true.
func newComposeCmd(file *string, verb, short string, services bool, flags ...*composeFlag) *cobra.Command {
	use := verb
	if services {
		use += " [service...]"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := []string{"compose", "-f", *file, verb}
			for _, f := range flags {
				if f.value {
					composeArgs = append(composeArgs, f.adds...)
				}
			}
			if services {
				composeArgs = append(composeArgs, args...)
			}
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
	if !services {
		cmd.Args = cobra.NoArgs
	}
	for _, f := range flags {
		cmd.Flags().BoolVar(&f.value, f.name, f.def, f.usage)
	}
	return cmd
}

func newStackCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Manage the docker compose stack (postgres, redis, minio, ollama)",
	}
	cmd.PersistentFlags().StringVarP(&file, "compose-file", "f", "docker-compose.yml", "Compose file to use")
	cmd.AddCommand(
		newComposeCmd(&file, "pull", "Pull images", true,
			&composeFlag{name: "quiet", usage: "Hide progress output", adds: []string{"-q"}}),
		newComposeCmd(&file, "up", "Start the stack", true,
			&composeFlag{name: "detached", usage: "Run in the background", def: true, adds: []string{"-d"}}),
		newComposeCmd(&file, "down", "Stop the stack", false,
			&composeFlag{name: "volumes", usage: "Also remove volumes", adds: []string{"-v"}}),
		newComposeCmd(&file, "logs", "Show service logs", true,
			&composeFlag{name: "follow", usage: "Stream logs continuously", adds: []string{"-f"}}),
	)
	return cmd
}

func newTestCmd() *cobra.Command {
	var race, cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			if len(args) == 0 {
				args = []string{"./..."}
			}
			return runCommand(cmd.Context(), "go", append(goArgs, args...)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable the race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Report coverage")
	return cmd
}

var binaries = []struct{ name, path, short string }{
	{"api", "./cmd/api", "HTTP API backed by postgres, minio and redis"},
	{"worker", "./cmd/worker", "asynq ingestion worker"},
	{"server", "./cmd/server", "single-process server with in-memory stores"},
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Quill binary with go run",
	}
	for _, b := range binaries {
		path := b.path
		cmd.AddCommand(&cobra.Command{
			Use:   b.name,
			Short: b.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), "go", append([]string{"run", path}, args...)...)
			},
		})
	}
	return cmd
}

func runCommand(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	return c.Run()
}
