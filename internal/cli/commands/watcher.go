package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var watcherCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Manage directory watchers on a running 'subtrans serve' instance",
}

var watcherAddCmd = &cobra.Command{
	Use:   "add <dir>",
	Short: "Start watching a directory for new subtitle/MKV files",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatcherAdd,
}

var watcherListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watchers",
	RunE:  runWatcherList,
}

func init() {
	watcherAddCmd.Flags().String("target-language", "", "target language for files discovered by this watcher")
	watcherAddCmd.Flags().String("llm-provider", "", "LLM provider for files discovered by this watcher")

	watcherCmd.AddCommand(watcherAddCmd)
	watcherCmd.AddCommand(watcherListCmd)
}

func runWatcherAdd(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	targetLang, _ := cmd.Flags().GetString("target-language")
	provider, _ := cmd.Flags().GetString("llm-provider")

	body, _ := json.Marshal(map[string]interface{}{
		"path":            args[0],
		"target_language": targetLang,
		"llm_provider":    provider,
	})

	resp, err := http.Post(api+"/api/watchers", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reach subtrans serve at %s: %w", api, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func runWatcherList(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	resp, err := http.Get(api + "/api/watchers")
	if err != nil {
		return fmt.Errorf("reach subtrans serve at %s: %w", api, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}
