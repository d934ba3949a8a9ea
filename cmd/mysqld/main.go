// Command mysqld is the miniql server process. It uses cobra for CLI
// subcommands.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"miniql/internal/config"
	"miniql/internal/core"
	"miniql/internal/server"
	"miniql/internal/sqlexec"
	"miniql/internal/txn"
)

const version = "0.1.0-miniql"

type serveFlags struct {
	configPath string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "mysqld",
		Short: "miniql: a single-node, MySQL-wire-compatible relational engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine and accept statements on a SQL console",
		Long: `Serve opens (or creates) the configured data directory and accepts
SQL statements on stdin, one session as the root user, until EOF.
Input is buffered line by line and run once a line containing ';' is
read; text left without a ';' at EOF is not run. This stands in for full MySQL wire-protocol
framing, which is explicitly out of scope for this engine.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(flags)
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "mysqld.toml", "Path to the server TOML config file")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func runServe(flags *serveFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	engine, err := server.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error("close engine", zap.Error(err))
		}
	}()

	log.Info("mysqld ready", zap.String("listen_addr", cfg.Server.ListenAddr))
	return runConsole(engine)
}

// runConsole drives one root session from stdin, buffering input lines
// and running the buffered text as one statement whenever a line
// containing ';' is read, printing each outcome to stdout until EOF.
// Buffered text with no ';' when EOF is reached is discarded.
func runConsole(engine *server.Engine) error {
	sess := engine.NewConnection("root")
	defer engine.CloseConnection(sess)

	reader := bufio.NewReader(os.Stdin)
	var buf strings.Builder
	for {
		line, err := reader.ReadString('\n')
		buf.WriteString(line)
		if strings.Contains(line, ";") {
			stmt := strings.TrimSpace(buf.String())
			buf.Reset()
			if stmt != "" {
				runOne(engine, sess, stmt)
			}
		}
		if err != nil {
			break
		}
	}
	return nil
}

func runOne(engine *server.Engine, sess *txn.Session, sql string) {
	out, err := engine.Execute(sess, sql)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return
	}
	printOutcome(out)
}

func printOutcome(out *sqlexec.Outcome) {
	if out.OK != nil {
		if out.OK.Info != "" {
			fmt.Printf("%s\n", out.OK.Info)
		} else {
			fmt.Printf("Query OK, %d row(s) affected\n", out.OK.AffectedRows)
		}
		return
	}
	rs := out.Result
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	fmt.Println(strings.Join(names, "\t"))
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = formatCell(c)
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	fmt.Printf("%d row(s) in set\n", len(rs.Rows))
}

func formatCell(c core.Cell) string {
	if c.IsNull() {
		return "NULL"
	}
	switch c.Kind {
	case core.KindInt:
		return fmt.Sprintf("%d", c.I)
	case core.KindFloat:
		return fmt.Sprintf("%g", c.F)
	case core.KindText:
		return c.S
	default:
		return fmt.Sprintf("%d", c.I)
	}
}
