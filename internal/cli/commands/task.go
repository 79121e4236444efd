package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and inspect translation tasks on a running 'subtrans serve' instance",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Submit a subtitle or MKV file for translation",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

func init() {
	taskCreateCmd.Flags().String("target-language", "", "target language (defaults to Settings.TargetLanguage)")
	taskCreateCmd.Flags().String("source-language", "", "source language hint")
	taskCreateCmd.Flags().String("llm-provider", "", "LLM provider to use (defaults to Settings.DefaultLLM)")
	taskCreateCmd.Flags().Bool("force", false, "bypass the Skip Oracle and create the task unconditionally")

	taskListCmd.Flags().String("status", "", "filter by status")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	targetLang, _ := cmd.Flags().GetString("target-language")
	sourceLang, _ := cmd.Flags().GetString("source-language")
	provider, _ := cmd.Flags().GetString("llm-provider")
	force, _ := cmd.Flags().GetBool("force")

	body, _ := json.Marshal(map[string]interface{}{
		"file_path":       args[0],
		"target_language": targetLang,
		"source_language": sourceLang,
		"llm_provider":    provider,
		"force_override":  force,
	})

	resp, err := http.Post(api+"/api/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reach subtrans serve at %s: %w", api, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	status, _ := cmd.Flags().GetString("status")

	url := api + "/api/tasks"
	if status != "" {
		url += "?status=" + status
	}
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("reach subtrans serve at %s: %w", api, err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	var v interface{}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("subtrans serve returned %s", resp.Status)
	}
	return nil
}
