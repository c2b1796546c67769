package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fastmd/internal/parallel"
	"fastmd/internal/render"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	outDir   string
	sanitize bool
	preview  bool
}

func newRenderCommand(c *cli) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render <file>...",
		Short: "Transform Markdown/MDX files through the worker pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRender(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "o", "", "Write one <name>.js module per file into this directory")
	cmd.Flags().BoolVar(&opts.sanitize, "sanitize", false, "Sanitize generated HTML")
	cmd.Flags().BoolVarP(&opts.preview, "preview", "p", false, "Preview each file in the terminal")
	return cmd
}

func (c *cli) runRender(ctx context.Context, out io.Writer, files []string, opts *renderOptions) error {
	rt, err := newRuntime(c.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.close(context.Background()); err != nil {
			rt.logger.Warn("Shutdown incomplete: %v", err)
		}
	}()

	tasks := make([]parallel.Task, 0, len(files))
	byID := make(map[string]parallel.Task, len(files))
	sources := make(map[string]string, len(files))
	for i, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		sources[file] = string(data)
		task := parallel.NewTask(fmt.Sprintf("file-%d", i), file, string(data)).
			WithOptions(parallel.TaskOptions{Sanitize: opts.sanitize})
		tasks = append(tasks, task)
		byID[task.ID()] = task
	}

	batch, err := parallel.NewBatch(uuid.NewString(), tasks)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := rt.pool.ProcessBatch(ctx, batch)
	if err != nil {
		return err
	}

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return err
		}
	}

	failed := 0
	// Results arrive in completion order.
	for _, result := range results {
		file := byID[result.ID()].File()
		if f, ok := result.Failure(); ok {
			failed++
			fmt.Fprintln(out, failure(fmt.Sprintf("%s: %s", file, f.Error)))
			continue
		}
		s, _ := result.Success()
		fmt.Fprintf(out, "%s %s\n", success(file), gray(fmt.Sprintf("(%s, worker %d)", s.Duration.Round(time.Microsecond), result.WorkerID())))

		if opts.outDir != "" {
			target := filepath.Join(opts.outDir, moduleName(file))
			if err := os.WriteFile(target, []byte(s.Output.Code), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
		}
		if opts.preview && isTTY() && !render.IsMDX(file) {
			if err := preview(out, rt.registry, sources[file]); err != nil {
				rt.logger.Warn("Preview of %s failed: %v", file, err)
			}
		}
	}

	fmt.Fprintf(out, "%s %d succeeded, %d failed in %s\n",
		bold("Summary:"), len(results)-failed, failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func preview(out io.Writer, registry *render.Registry, source string) error {
	engine, err := registry.Lookup(render.EngineANSI)
	if err != nil {
		return err
	}
	_, body := render.ExtractFrontmatter(source)
	rendered, err := engine.Convert([]byte(body))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, rendered)
	return err
}

// moduleName maps docs/intro.md to intro.js.
func moduleName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".js"
}
