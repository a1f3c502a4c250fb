package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/loom/notify"
)

// NewNotifyCmd creates the notify command, which posts a message into a
// running opencode session (or a file, for inspection).
func NewNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a message to a running opencode session",
		Args:  cobra.NoArgs,
		RunE:  runNotify,
	}

	cmd.Flags().String("text", "", "Message text")
	cmd.Flags().String("title", "", "Optional message title")
	cmd.Flags().String("base-url", notify.DefaultBaseURL, "opencode server base URL")
	cmd.Flags().String("session-id", "", "Session to message (default: the active session)")
	cmd.Flags().String("provider", "", "Model provider hint forwarded with the prompt")
	cmd.Flags().String("model", "", "Model hint forwarded with the prompt")
	cmd.Flags().String("file", "", "Write the message as JSON to this file instead of a session")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func runNotify(cmd *cobra.Command, _ []string) error {
	text, _ := cmd.Flags().GetString("text")
	title, _ := cmd.Flags().GetString("title")
	file, _ := cmd.Flags().GetString("file")

	var notifier notify.Notifier
	if file != "" {
		notifier = &notify.File{Path: file}
	} else {
		baseURL, _ := cmd.Flags().GetString("base-url")
		session := notify.NewSession(baseURL)
		session.SessionID, _ = cmd.Flags().GetString("session-id")
		session.Provider, _ = cmd.Flags().GetString("provider")
		session.Model, _ = cmd.Flags().GetString("model")
		notifier = session
	}

	msg := notify.Message{Title: title, Text: text}
	if err := notifier.Notify(cmd.Context(), msg); err != nil {
		return exitError(exitRuntime, "sending notification: %v", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Notification sent.")
	return nil
}
