package cmd

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SisyphusSQ/binrepl/internal/vars"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: fmt.Sprintf("Show version of %s", vars.AppName),
	Long:  fmt.Sprintf("Show version, build info and supported binlog format of %s", vars.AppName),
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, kv := range [][2]string{
			{"AppVersion: ", vars.AppVersion},
			{"Go Version: ", vars.GoVersion},
			{"Platform:   ", runtime.GOOS + "/" + runtime.GOARCH},
			{"Build Time: ", vars.BuildTime},
			{"Git Commit: ", vars.GitCommit},
			{"Git Remote: ", vars.GitRemote},
			{"Binlog:     ", "v4, rows events v1/v2, row based replication only"},
		} {
			fmt.Fprintln(out, color.CyanString(kv[0]), kv[1])
		}
	},
}

func initVersion() {
	rootCmd.AddCommand(versionCmd)
}
