// Command metric-proxy-tool is a small offline maintenance binary,
// separate from the daemon, for inspecting and repairing trace/profile
// files without a running proxy.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/metricproxy/pkg/profile"
	"github.com/cuemby/metricproxy/pkg/trace"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "metric-proxy-tool",
	Short: "Offline trace/profile inspection and maintenance",
}

func init() {
	inspectCmd.Flags().String("trace", "", "Path to a .trace file")
	_ = inspectCmd.MarkFlagRequired("trace")

	foldCmd.Flags().String("trace", "", "Path to a .trace file")
	foldCmd.Flags().Int64("max-size", 4<<20, "Fold threshold in bytes")
	_ = foldCmd.MarkFlagRequired("trace")

	profileCmd.Flags().String("profile", "", "Path to a .profile file")
	_ = profileCmd.MarkFlagRequired("profile")

	rootCmd.AddCommand(inspectCmd, foldCmd, profileCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump a trace file's frame list as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("trace")
		frames, err := trace.ReadAllFrames(path)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(frames)
	},
}

var foldCmd = &cobra.Command{
	Use:   "fold",
	Short: "Force-fold a trace file to roughly halve its resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("trace")
		maxSize, _ := cmd.Flags().GetInt64("max-size")

		tr, err := trace.Open(path, maxSize)
		if err != nil {
			return err
		}
		defer tr.Close()

		if err := tr.ForceFold(); err != nil {
			return err
		}
		fmt.Printf("folded %s\n", path)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Pretty-print a persisted job profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("profile")
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var p profile.Profile
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}
