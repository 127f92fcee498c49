package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/learnquiz/internal/model"
	"github.com/pavelanni/learnquiz/internal/quizservice"
	"github.com/pavelanni/learnquiz/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the quiz service",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "learnquiz.db", "SQLite database path")
	f.String("api-prefix", "/api/v1", "URL prefix of the REST API")
	f.StringSliceP("quizzes", "q", nil, "Quiz JSON files to import at startup (repeatable)")
	f.String("jwt-secret", "", "HMAC secret for access tokens (or set LEARNQUIZ_JWT_SECRET)")
	f.Duration("token-ttl", 8*time.Hour, "Access token lifetime")
	f.StringSlice("allowed-origins", []string{"http://localhost:3000"}, "CORS allowed origins")
	f.String("admin-password", "", "Initial admin password (or set LEARNQUIZ_ADMIN_PASSWORD)")
	addLogFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import quizzes from JSON files into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "learnquiz.db", "SQLite database path")
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all quiz results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "learnquiz.db", "SQLite database path")
	f.String("export-id", "", "Identifier for the export (random when empty)")
	f.String("date", "", "Export date in YYYY-MM-DD format (today when empty)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if err := loadQuizzes(db, v.GetStringSlice("quizzes")); err != nil {
		return fmt.Errorf("load quizzes: %w", err)
	}

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return errors.New("jwt secret is required: set --jwt-secret flag or LEARNQUIZ_JWT_SECRET env var")
	}

	h, err := quizservice.New(db, model.ServiceConfig{
		JWTSecret:      secret,
		TokenTTL:       v.GetDuration("token-ttl"),
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	prefix := strings.TrimRight(v.GetString("api-prefix"), "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(prefix),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db", v.GetString("db"),
			"api_prefix", prefix,
			"token_ttl", v.GetDuration("token-ttl"),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return loadQuizzes(db, args)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportAllResults()
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	exportID := v.GetString("export-id")
	if exportID == "" {
		exportID = uuid.NewString()
	}
	date := v.GetString("date")
	if date == "" {
		date = time.Now().Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}

	quizzes := make(map[string]bool)
	for _, r := range results {
		quizzes[r.QuizID] = true
	}

	export := model.ResultsExport{
		ExportID:   exportID,
		Date:       date,
		NumQuizzes: len(quizzes),
		Results:    results,
	}
	if export.Results == nil {
		export.Results = []model.StudentResult{}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported results", "count", len(results), "quizzes", len(quizzes))
	return nil
}

// loadQuizzes imports quiz files, skipping files whose content was already imported.
func loadQuizzes(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("quiz file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("quiz file changed since last import, skipping to avoid breaking existing results",
				"path", path)
			continue
		}

		var quizzes []model.QuizImport
		if err := json.Unmarshal(data, &quizzes); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for i, qi := range quizzes {
			if err := qi.Validate(); err != nil {
				return fmt.Errorf("%s: quiz %d: %w", path, i+1, err)
			}
		}

		for _, qi := range quizzes {
			quiz, questions := qi.Build()
			saved, err := db.InsertQuiz(quiz, questions)
			if err != nil {
				return fmt.Errorf("insert quiz %q from %s: %w", qi.Title, path, err)
			}
			slog.Info("imported quiz", "path", path, "quiz_id", saved.ID, "title", saved.Title,
				"questions", len(questions))
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or LEARNQUIZ_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
