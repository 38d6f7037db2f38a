package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var askSessionID string

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send a single message and print the reply",
	Long: `Sends one message without entering the interactive loop.

Use --session to address an existing diary; without it the message lands in a
fresh throwaway session, which is mostly useful for trying memo out.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSessionID, "session", "", "session id to address (default: new session)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionID := askSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := a.engine.ProcessTurn(ctx, sessionID, strings.Join(args, " "), nil)
	if err != nil {
		return fmt.Errorf("processing message: %w", err)
	}

	fmt.Printf("%s %s\n", reply.Mood, reply.Text)
	return nil
}
