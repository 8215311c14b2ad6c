package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/preupac/simulador/internal/auth"
	"github.com/preupac/simulador/internal/model"
	"github.com/preupac/simulador/internal/sheet"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Append questions from JSON files to the questions worksheet",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addBackendFlags(cmd.Flags())
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var questions []model.QuestionImport
		if err := json.Unmarshal(data, &questions); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		n, err := db.ImportQuestions(ctx, questions)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "count", n)
	}
	return nil
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results per student as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	addBackendFlags(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	students, err := db.ExportResults(ctx)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	export := model.ResultsExport{
		Spreadsheet: source(backendConfig(v)),
		Date:        time.Now().Format(time.DateOnly),
		Students:    students,
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

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

func initWorkbookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-workbook PATH",
		Short: "Create an empty xlsx workbook with the users, questions and results worksheets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(viperForCmd(cmd))
			if err := sheet.CreateWorkbook(args[0]); err != nil {
				return err
			}
			slog.Info("created workbook", "path", args[0])
			return nil
		},
	}
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage rows of the users worksheet",
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Append a user",
		RunE:  runUserAdd,
	}
	f := add.Flags()
	addBackendFlags(f)
	f.String("username", "", "Login name (usuario)")
	f.String("name", "", "Display name (nombre)")
	f.String("password", "", "Password (or set SIMULADOR_PASSWORD)")
	f.String("role", string(model.RoleStudent), "Role (Estudiante, Tutor)")
	f.Bool("hash", false, "Store a bcrypt hash instead of the plain password")
	_ = add.MarkFlagRequired("username")

	cmd.AddCommand(add)
	return cmd
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	ctx := cmd.Context()

	role, err := model.ParseRole(v.GetString("role"))
	if err != nil {
		return err
	}
	password := v.GetString("password")
	if password == "" {
		return fmt.Errorf("password is required: set --password or SIMULADOR_PASSWORD")
	}
	if v.GetBool("hash") {
		password, err = auth.HashPassword(password)
		if err != nil {
			return err
		}
	}

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	u := model.User{
		Username: strings.TrimSpace(v.GetString("username")),
		Name:     strings.TrimSpace(v.GetString("name")),
		Password: password,
		Role:     role,
	}
	if err := db.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	slog.Info("created user", "usuario", u.Username, "rol", u.Role, "hashed", v.GetBool("hash"))
	return nil
}
