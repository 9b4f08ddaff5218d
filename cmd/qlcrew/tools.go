package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jllopis/qlcrew/pkg/capability"
	"github.com/spf13/cobra"
)

type toolInfo struct {
	Name        string   `json:"name"`
	Source      string   `json:"source"`
	Params      []string `json:"params"`
	Description string   `json:"description"`
	Worker      string   `json:"worker,omitempty"`
	Filtered    bool     `json:"filtered,omitempty"`
}

func newToolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the discovered and local capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			registry, closeTools, err := newRegistry(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer closeTools()

			manifest, err := loadManifest(a.cfg.Team)
			if err != nil {
				return NewSetupError(err, "load roster", fmt.Sprintf("check %s", a.cfg.Team.RosterFile))
			}

			filter := capability.NewFilter(a.cfg.Tools.Allow, a.cfg.Tools.Deny)
			var infos []toolInfo
			for _, c := range registry.List() {
				info := toolInfo{
					Name:        c.Name(),
					Source:      string(c.Source()),
					Description: c.Description(),
					Filtered:    !filter.Allowed(c.Name()),
				}
				for _, p := range c.Params() {
					info.Params = append(info.Params, p.Name+":"+string(p.Type))
				}
				if spec, ok := manifest.Roles[c.Name()]; ok && !info.Filtered {
					info.Worker = spec.Identity
					if info.Worker == "" {
						info.Worker = c.Name() + "_Agent"
					}
				}
				infos = append(infos, info)
			}

			if a.json {
				return printJSON(cmd.OutOrStdout(), infos)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSOURCE\tWORKER\tPARAMS")
			for _, info := range infos {
				worker := info.Worker
				if worker == "" {
					worker = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, info.Source, worker, strings.Join(info.Params, ", "))
			}
			return tw.Flush()
		},
	}
}
