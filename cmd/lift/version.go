package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/lift/version"
)

type versionInfo struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	Date          string `json:"date"`
	GuestVersions string `json:"guest_versions"`
}

func newVersionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:       release,
				Commit:        commit,
				Date:          date,
				GuestVersions: fmt.Sprintf("%s+", version.Minimum),
			}
			w := cmd.OutOrStdout()
			switch format := a.v.GetString("format"); format {
			case "json":
				return writeJSON(w, info)
			case "text":
				fmt.Fprintf(w, "lift %s\ncommit: %s\nbuilt: %s\nguest versions: %s\n",
					info.Version, info.Commit, info.Date, info.GuestVersions)
				return nil
			default:
				return fmt.Errorf("unknown output format: %s", format)
			}
		},
	}
	cmd.Flags().StringP("format", "f", "text", "output format: text|json")
	return cmd
}
