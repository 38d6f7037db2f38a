package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/memodiary/memo/internal/llm"
	"github.com/memodiary/memo/internal/summarize"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive diary conversation",
	Long: `Opens an interactive conversation. Replies stream as they are generated.

Pass --session to continue an existing diary; without it a new session id is
generated and printed, so you can come back to it later.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "session id to continue (default: new session)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionID := chatSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
		fmt.Printf("New diary session: %s\n\n", sessionID)
	}

	// Long-lived process: let the nightly sweep keep summaries fresh.
	scheduler, err := summarize.NewScheduler(a.summarizer, a.store, a.logger)
	if err != nil {
		return fmt.Errorf("creating rollup scheduler: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	welcome, err := a.engine.StartSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	fmt.Printf("%s %s\n\n", welcome.Mood, welcome.Text)

	var history []llm.Message
	history = append(history, llm.Message{Role: llm.RoleAssistant, Text: welcome.Text})

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		if ctx.Err() != nil {
			break
		}

		reply, err := a.engine.ProcessTurnStream(ctx, sessionID, input, history,
			func(chunk string) error {
				fmt.Print(chunk)
				return nil
			})
		if err != nil {
			return fmt.Errorf("processing turn: %w", err)
		}
		fmt.Printf("\n\n")

		history = append(history,
			llm.Message{Role: llm.RoleUser, Text: input},
			llm.Message{Role: llm.RoleAssistant, Text: reply.Text})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println("Take care. 🌱")
	return nil
}
