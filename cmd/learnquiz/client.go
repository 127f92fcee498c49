package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/learnquiz/internal/quizapi"
	"github.com/pavelanni/learnquiz/internal/runner"
	"github.com/pavelanni/learnquiz/internal/session"
)

func addClientFlags(f *pflag.FlagSet) {
	f.String("api-url", "http://localhost:8080/api/v1", "Quiz service base URL")
	f.String("token", "", "Bearer token (defaults to the one saved by login)")
	f.String("token-file", defaultTokenFile(), "File holding the saved bearer token")
	f.Duration("timeout", 30*time.Second, "Per-request timeout")
	f.Float64("rate-limit", 0, "Maximum requests per second (0 = unlimited)")
	addLogFlags(f)
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".learnquiz-token"
	}
	return filepath.Join(home, ".config", "learnquiz", "token")
}

// newClient builds an API client from flags, falling back to the saved token.
func newClient(v *viper.Viper) *quizapi.Client {
	token := v.GetString("token")
	if token == "" {
		data, err := os.ReadFile(v.GetString("token-file"))
		if err == nil {
			token = strings.TrimSpace(string(data))
		}
	}
	if token != "" && quizapi.TokenExpired(token, time.Now()) {
		slog.Warn("saved token has expired, run `learnquiz login`")
	}
	return quizapi.New(quizapi.Config{
		BaseURL:   v.GetString("api-url"),
		Token:     token,
		Timeout:   v.GetDuration("timeout"),
		RateLimit: v.GetFloat64("rate-limit"),
		Burst:     1,
	})
}

func unauthorizedHint(err error) error {
	if quizapi.IsUnauthorized(err) {
		return fmt.Errorf("%w (run `learnquiz login`)", err)
	}
	return err
}

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take [quiz-id]",
		Short: "Take a quiz in the terminal (lists quizzes without an id)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.String("course", "", "Only list quizzes of this course")
	addClientFlags(f)
	return cmd
}

func runTake(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	client := newClient(v)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if len(args) == 0 {
		quizzes, err := client.ListQuizzes(ctx, v.GetString("course"), 0, 100)
		if err != nil {
			return unauthorizedHint(err)
		}
		if len(quizzes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No quizzes available.")
			return nil
		}
		for _, q := range quizzes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", q.ID, q.Title)
		}
		return nil
	}

	sess := session.New(client, session.WithLogger(slog.Default()))
	_, err := runner.New(sess, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx, args[0])
	if errors.Is(err, runner.ErrQuit) {
		return nil
	}
	return unauthorizedHint(err)
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [result-id]",
		Short: "List past quiz results, or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.Int("skip", 0, "Number of results to skip")
	f.Int("limit", 10, "Maximum number of results (1-100)")
	addClientFlags(f)
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	client := newClient(v)
	ctx := cmd.Context()

	if len(args) == 1 {
		res, err := client.GetHistory(ctx, args[0])
		if err != nil {
			return unauthorizedHint(err)
		}
		// Option texts are best effort; the quiz may have been removed.
		qs, err := client.GetQuestions(ctx, res.QuizID)
		if err != nil {
			slog.Debug("questions unavailable for result", "quiz_id", res.QuizID, "error", err)
		}
		runner.PrintResult(cmd.OutOrStdout(), res, qs)
		return nil
	}

	entries, err := client.ListHistory(ctx, v.GetInt("skip"), v.GetInt("limit"))
	if err != nil {
		return unauthorizedHint(err)
	}
	runner.PrintHistory(cmd.OutOrStdout(), entries)
	return nil
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the quiz service and save the token",
		RunE:  runLogin,
	}
	f := cmd.Flags()
	f.StringP("username", "u", "", "Username")
	f.String("password", "", "Password (read from stdin when empty)")
	addClientFlags(f)
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	in := bufio.NewScanner(cmd.InOrStdin())
	prompt := func(label string) (string, error) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ", label)
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return "", err
			}
			return "", errors.New("no input")
		}
		return strings.TrimSpace(in.Text()), nil
	}

	username := v.GetString("username")
	if username == "" {
		var err error
		if username, err = prompt("Username"); err != nil {
			return fmt.Errorf("read username: %w", err)
		}
	}
	password := v.GetString("password")
	if password == "" {
		var err error
		if password, err = prompt("Password"); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	client := quizapi.New(quizapi.Config{
		BaseURL: v.GetString("api-url"),
		Timeout: v.GetDuration("timeout"),
	})
	tok, err := client.Login(cmd.Context(), username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	path := v.GetString("token-file")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(tok.AccessToken+"\n"), 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	if exp, err := quizapi.TokenExpiry(tok.AccessToken); err == nil && !exp.IsZero() {
		slog.Info("logged in", "username", username, "expires", exp.Local().Format(time.RFC3339))
	} else {
		slog.Info("logged in", "username", username)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", username)
	return nil
}
