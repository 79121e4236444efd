package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd is the base command; it carries no Run of its own, only
// persistent flags shared by every subcommand.
var RootCmd = &cobra.Command{
	Use:   "subtrans <command>",
	Short: "Subtitle translation task orchestrator",
	Long: `subtrans extracts subtitles from MKV/SRT/ASS files, dispatches them
to an LLM for translation, and places the translated result back next
to the source file.

Example:
  subtrans serve
  subtrans task create movie.mkv --target-language Chinese
  subtrans watcher add ./incoming`,
}

func init() {
	RootCmd.PersistentFlags().String("db", "", "path to the sqlite database file (default: XDG data dir)")
	RootCmd.PersistentFlags().String("api", "http://127.0.0.1:8080", "base URL of a running 'subtrans serve' instance")

	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(taskCmd)
	RootCmd.AddCommand(watcherCmd)
}
