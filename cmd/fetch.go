package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/contentrelay/internal/content"
	"github.com/JakeFAU/contentrelay/internal/page"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetches a single item and prints the result as JSON",
	}
	cmd.AddCommand(newFetchTranscriptCmd(), newFetchPageCmd(), newFetchPostCmd())
	return cmd
}

func newFetchTranscriptCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "transcript <video-id>",
		Short: "Fetches the captions of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res := appInstance.Transcripts.Fetch(cmd.Context(), args[0], lang)
			return printResult(cmd, res.Success, res.Failure, res)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "caption language (default from transcript.default_language)")
	return cmd
}

func newFetchPageCmd() *cobra.Command {
	var (
		waitFor string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "page <url>",
		Short: "Renders a web page and extracts its readable content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res := appInstance.Pages.Fetch(cmd.Context(), page.Request{
				URL:             args[0],
				WaitForSelector: waitFor,
				Timeout:         timeout,
			})
			return printResult(cmd, res.Success, res.Failure, res)
		},
	}
	cmd.Flags().StringVar(&waitFor, "wait-for", "", "CSS selector to wait for before extracting")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "navigation timeout (default from browser.navigation_timeout)")
	return cmd
}

func newFetchPostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "post <url>",
		Short: "Extracts a social post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res := appInstance.Social.Fetch(cmd.Context(), args[0])
			return printResult(cmd, res.Success, res.Failure, res)
		},
	}
}

// printResult writes the envelope to stdout and turns a failure into a
// non-zero exit.
func printResult(cmd *cobra.Command, success bool, failure *content.Failure, payload any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if !success && failure != nil {
		return fmt.Errorf("fetch failed: %s", failure.ErrorType)
	}
	return nil
}
