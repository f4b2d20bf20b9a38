package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"corridorbots/pkg/config"
	"corridorbots/pkg/corridor"
	"corridorbots/pkg/policy"
	"corridorbots/pkg/provider"
)

var (
	askModel     bool
	responseText string
)

var promptCmd = &cobra.Command{
	Use:   "prompt <snapshot.json|->",
	Short: "Render the model prompt for a snapshot",
	Long:  "Prints the prompt a generative bot would send for the given snapshot. With --ask the prompt is sent to the configured model and the parsed, validated action is printed; --response parses a canned reply instead.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		snap, err := readSnapshot(args[0], cmd.InOrStdin())
		if err != nil {
			fmt.Printf("failed to read snapshot: %v\n", err)
			return
		}

		prompt := policy.RenderPrompt(snap)
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, prompt)

		response := strings.TrimSpace(responseText)
		maxText := corridor.DefaultMaxTextLength
		if askModel {
			cfg, err := loadConfig()
			if err != nil {
				fmt.Printf("failed to load config: %v\n", err)
				return
			}
			maxText = cfg.Typing.MaxTextLength

			response, err = askProvider(cmd.Context(), cfg, prompt)
			if err != nil {
				fmt.Printf("model request failed: %v\n", err)
				return
			}
		}
		if response == "" {
			return
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, describeResponse(snap, response, maxText))
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().BoolVar(&askModel, "ask", false, "send the prompt to the configured model")
	promptCmd.Flags().StringVarP(&responseText, "response", "r", "", "parse this reply instead of asking the model")
}

func readSnapshot(path string, stdin io.Reader) (corridor.Snapshot, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return corridor.Snapshot{}, err
	}

	return corridor.DecodeSnapshot(data)
}

func askProvider(ctx context.Context, cfg *config.Config, prompt string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := provider.New(cfg.LLM)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.LLM.Timeout())
	defer cancel()

	completion, err := client.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	return completion.Text, nil
}

// describeResponse parses a model reply and shows what the bot would do with it.
func describeResponse(snap corridor.Snapshot, response string, maxText int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "response: %s\n", strings.TrimSpace(response))

	action, err := policy.ParseAction(response)
	if err != nil {
		fmt.Fprintf(&b, "parse failed: %v", err)
		return b.String()
	}

	validated := corridor.Validate(snap, action, maxText)
	fmt.Fprintf(&b, "action: %s", validated)
	if validated.Text != "" {
		fmt.Fprintf(&b, "\ntext: %s", validated.Text)
	}

	return b.String()
}
