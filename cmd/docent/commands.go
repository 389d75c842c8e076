package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/docent/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the document a question",
	Long: `Ask the document a question in a one-shot session.

Examples:
  docent ask "What are the eligibility criteria?"
  docent ask --language Urdu --length detailed "Summarize the exam structure"
  docent ask --audio answer.mp3 "What is the passing score?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := args[0]
		language, _ := cmd.Flags().GetString("language")
		length, _ := cmd.Flags().GetString("length")
		audioPath, _ := cmd.Flags().GetString("audio")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		var sess struct {
			ID string `json:"id"`
		}
		resp, err := client.post(ctx, "/v1/sessions", map[string]string{
			"language": language,
			"length":   length,
		})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &sess); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}

		printStep("asking...")
		var msg struct {
			Index    int    `json:"index"`
			Content  string `json:"content"`
			HasAudio bool   `json:"has_audio"`
		}
		resp, err = client.post(ctx, "/v1/sessions/"+sess.ID+"/messages", map[string]string{
			"question": question,
		})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &msg); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, msg.Content)

		if audioPath != "" {
			if !msg.HasAudio {
				printWarning("no audio was synthesized for this answer")
				return nil
			}
			if err := saveAudio(ctx, client, sess.ID, msg.Index, audioPath); err != nil {
				return err
			}
			printSuccess("audio saved to %s", audioPath)
		}
		return nil
	},
}

func saveAudio(ctx context.Context, client *apiClient, sessionID string, index int, path string) error {
	resp, err := client.get(ctx, fmt.Sprintf("/v1/sessions/%s/messages/%d/audio", sessionID, index))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching audio: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading audio: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Submit feedback about the assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		sessionID, _ := cmd.Flags().GetString("session")

		if text == "" {
			return fmt.Errorf("--text is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := client.post(ctx, "/v1/feedback", map[string]string{
			"session_id": sessionID,
			"feedback":   text,
		})
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}

		printSuccess("feedback recorded")
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change docent configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration keys and current values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(os.Stdout, "%-28s %-34s %v\n", k.Key, k.EnvVar, k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("set %s", args[0])
		return nil
	},
}

func init() {
	askCmd.Flags().String("language", "", "answer language (default from config)")
	askCmd.Flags().String("length", "", "answer length: short or detailed")
	askCmd.Flags().String("audio", "", "save synthesized speech to this MP3 file")

	feedbackCmd.Flags().String("text", "", "feedback text")
	feedbackCmd.Flags().String("session", "", "session the feedback refers to")

	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSetCmd)
}
