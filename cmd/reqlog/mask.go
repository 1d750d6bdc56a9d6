package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reqlog/internal/app"
	"reqlog/internal/masking"
)

// adHocMask names the rule built from --path flags.
const adHocMask = "cli"

type maskOptions struct {
	masks        []string
	paths        []string
	showNested   bool
	textFallback bool
	explain      bool
}

func newMaskCmd(configPath *string) *cobra.Command {
	var opts maskOptions

	cmd := &cobra.Command{
		Use:   "mask [file]",
		Short: "Mask a payload with the configured rules",
		Long: `Read a JSON or form-encoded payload from a file or stdin and print it with
the global masks and any masks named with --mask applied. --path adds
one-off path expressions such as "user/password" or "items/*/token".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cmd.Flags().Changed("show-nested") {
				opts.showNested = cfg.ShowNestedKeysInSensitivePaths
			}
			if !cmd.Flags().Changed("text-fallback") {
				opts.textFallback = cfg.PreferTextFallbackMasking
			}

			registry, err := app.NewRegistry(cfg.Masks)
			if err != nil {
				return err
			}

			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return runMask(cmd.OutOrStdout(), cmd.ErrOrStderr(), registry, input, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.masks, "mask", "m", nil, "named mask to apply (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.paths, "path", "p", nil, "ad-hoc path expression to mask (repeatable)")
	cmd.Flags().BoolVar(&opts.showNested, "show-nested", false, "keep the keys of masked objects visible")
	cmd.Flags().BoolVar(&opts.textFallback, "text-fallback", false, "mask unparseable strings wholesale")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "print the applied rules to stderr")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

func runMask(out, errOut io.Writer, registry *masking.Registry, input []byte, opts maskOptions) error {
	names := append([]string(nil), opts.masks...)
	for _, name := range names {
		if _, ok := registry.Get(name); !ok {
			return fmt.Errorf("unknown mask %q (available: %s)", name, strings.Join(registry.Names(), ", "))
		}
	}
	if len(opts.paths) > 0 {
		registry.Add(adHocMask, masking.NewPaths(opts.paths...))
		names = append(names, adHocMask)
	}

	s := masking.NewSanitizer(registry, masking.Options{
		Enabled:            true,
		ShowNestedKeys:     opts.showNested,
		PreferTextFallback: opts.textFallback,
	})

	if opts.explain {
		explain(errOut, registry, names)
	}

	result := s.Body(context.Background(), []byte(strings.TrimSpace(string(input))), names...)
	if str, ok := result.(string); ok {
		_, err := fmt.Fprintln(out, str)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

func explain(w io.Writer, registry *masking.Registry, names []string) {
	fmt.Fprintf(w, "fingerprint: %s\n", registry.Fingerprint())
	fmt.Fprintf(w, "global: %s\n", strings.Join(registry.GlobalNames(), ", "))

	applied := append(registry.GlobalNames(), names...)
	seen := make(map[string]bool, len(applied))
	for _, name := range applied {
		if seen[name] {
			continue
		}
		seen[name] = true
		p, _ := registry.Get(name)
		fmt.Fprintf(w, "%s: %s\n", name, describe(p))
	}
}

func describe(p masking.Processor) string {
	switch v := p.(type) {
	case *masking.Paths:
		return strings.Join(v.Patterns(), ", ")
	case *masking.Values:
		return "values(" + strings.Join(v.Names(), ", ") + ")"
	case masking.Chain:
		parts := make([]string, 0, len(v))
		for _, part := range v.Parts() {
			parts = append(parts, describe(part))
		}
		return strings.Join(parts, " + ")
	default:
		return "(custom)"
	}
}
