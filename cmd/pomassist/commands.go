package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
)

type positionFlags struct {
	file      string
	line      uint32
	character uint32
}

func (f *positionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "POM file")
	cmd.Flags().Uint32Var(&f.line, "line", 0, "zero-based line")
	cmd.Flags().Uint32Var(&f.character, "character", 0, "zero-based UTF-16 character")
	_ = cmd.MarkFlagRequired("file")
}

func completeCmd(configPath *string) *cobra.Command {
	var flags positionFlags
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "List completion candidates at a position",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			id, err := a.open(flags.file)
			if err != nil {
				return err
			}
			offset, err := a.position(id, flags.line, flags.character)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), a.svc.Complete(ctx, id, 1, offset))
		},
	}
	flags.register(cmd)
	return cmd
}

func hoverCmd(configPath *string) *cobra.Command {
	var flags positionFlags
	cmd := &cobra.Command{
		Use:   "hover",
		Short: "Describe the value at a position",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			id, err := a.open(flags.file)
			if err != nil {
				return err
			}
			offset, err := a.position(id, flags.line, flags.character)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), a.svc.Hover(ctx, id, 1, offset))
		},
	}
	flags.register(cmd)
	return cmd
}

func diagnoseCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Report the problems of a POM file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			id, err := a.open(file)
			if err != nil {
				return err
			}
			diags, err := a.svc.Diagnostics(ctx, id, 1)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), diags)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "POM file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type artifactJSON struct {
	GroupID    string `json:"groupId"`
	ArtifactID string `json:"artifactId"`
	Version    string `json:"version"`
}

func localIndexCmd(configPath *string) *cobra.Command {
	var plugins bool
	cmd := &cobra.Command{
		Use:   "local-index",
		Short: "List the best local version of every artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			lookup := a.svc.Local().Artifacts
			if plugins {
				lookup = a.svc.Local().PluginArtifacts
			}
			artifacts, err := lookup(ctx)
			if err != nil {
				return err
			}
			keys := make([]coordinate.GroupArtifact, 0, len(artifacts))
			for ga := range artifacts {
				keys = append(keys, ga)
			}
			sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
			out := make([]artifactJSON, 0, len(keys))
			for _, ga := range keys {
				out = append(out, artifactJSON{GroupID: ga.GroupID, ArtifactID: ga.ArtifactID, Version: artifacts[ga].String()})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&plugins, "plugins", false, "list plugins only")
	return cmd
}
