package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/cuemby/wharf/pkg/types"
	"github.com/spf13/cobra"
)

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Inspect releases",
}

var releaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List releases",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _ := cmd.Flags().GetString("app")
		env, _ := cmd.Flags().GetString("env")
		if (app == "") != (env == "") {
			return fmt.Errorf("--app and --env must be used together")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		var releases []*types.Release
		if app != "" {
			releases, err = store.ListReleasesByAppEnv(app, env)
		} else {
			releases, err = store.ListReleases()
		}
		if err != nil {
			return fmt.Errorf("failed to list releases: %v", err)
		}

		if len(releases) == 0 {
			fmt.Println("No releases found")
			return nil
		}
		printReleases(releases)
		return nil
	},
}

func init() {
	releaseListCmd.Flags().String("app", "", "Filter by app slug")
	releaseListCmd.Flags().String("env", "", "Filter by environment")
	releaseCmd.AddCommand(releaseListCmd)
}

func printReleases(releases []*types.Release) {
	sort.Slice(releases, func(i, j int) bool {
		return releases[i].CreatedAt.After(releases[j].CreatedAt)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAPP\tENV\tSTATUS\tACTIVE\tVERSION\tCREATED")
	for _, r := range releases {
		active := ""
		if r.Active {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.AppSlug, r.Env, r.Status, active, r.AppVersion,
			r.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}
