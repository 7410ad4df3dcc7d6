package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/marianozunino/transferhelper/internal/archive"
	"github.com/marianozunino/transferhelper/internal/config"
	"github.com/marianozunino/transferhelper/internal/hasher"
	"github.com/marianozunino/transferhelper/internal/logger"
	"github.com/marianozunino/transferhelper/internal/model"
	"github.com/marianozunino/transferhelper/internal/registry"
	"github.com/marianozunino/transferhelper/internal/transfer"
	"github.com/marianozunino/transferhelper/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	availableColor = color.New(color.FgGreen)
	expiredColor   = color.New(color.FgRed)
	warnColor      = color.New(color.FgYellow)
)

type cli struct {
	configDir  string
	server     string
	noProgress bool

	cfg    *config.Config
	log    *zap.Logger
	client *transfer.Client
	hasher registry.Hasher
	reg    *registry.Registry

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{
		hasher: hasher.MD5{},
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
	}
}

func (c *cli) setup() error {
	cfg, err := config.LoadConfig(c.configDir)
	if err != nil {
		return err
	}
	if c.server != "" {
		cfg.Server = c.server
	}

	log, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	c.cfg = cfg
	c.log = log
	c.client = transfer.NewClient(cfg.Server, cfg.Timeout, log)
	return nil
}

func (c *cli) registry() (*registry.Registry, error) {
	if c.reg != nil {
		return c.reg, nil
	}
	reg, err := registry.Open(c.cfg, c.client, c.hasher, registry.WithLogger(c.log))
	if err != nil {
		return nil, err
	}
	c.reg = reg
	return reg, nil
}

func (c *cli) close() {
	if c.reg != nil {
		if err := c.reg.Close(); err != nil && c.log != nil {
			c.log.Error("failed to close store", zap.Error(err))
		}
		c.reg = nil
	}
	if c.log != nil {
		_ = c.log.Sync()
	}
}

// ask prints question and reports whether the answer starts with y
func (c *cli) ask(question string) bool {
	fmt.Fprintf(c.out, "%s [y/N]: ", question)
	answer, _ := c.readLine()
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func (c *cli) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *cli) progressPrinter() transfer.ProgressFunc {
	if c.noProgress {
		return nil
	}
	last := -1
	return func(fraction float64) {
		percent := int(fraction * 100)
		if percent == last {
			return
		}
		last = percent
		fmt.Fprintf(c.errOut, "\r%s %3d%%", utils.ProgressBar(fraction, 30), percent)
		if percent == 100 {
			fmt.Fprintln(c.errOut)
		}
	}
}

func (c *cli) printLinks(links []model.LinkRecord, showDelete bool) {
	if len(links) == 0 {
		fmt.Fprintln(c.out, "No entries found.")
		return
	}

	column := "LINK"
	if showDelete {
		column = "DELETE LINK"
	}

	now := time.Now()
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\t%s\tCREATED\tSTATUS\n", column)
	for _, l := range links {
		target := l.Link
		if showDelete {
			target = l.DeleteCredential
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", l.ID, l.Name, target, utils.FormatDate(l.CreatedAt), availability(l, now))
	}
	w.Flush()
}

func availability(l model.LinkRecord, now time.Time) string {
	if l.IsExpired(now) {
		return expiredColor.Sprint("expired")
	}
	return availableColor.Sprintf("available (%s left)", utils.FormatDaysRemaining(l.DaysLeft(now)))
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "transferhelper",
		Short: "Keep track of files uploaded to transfer.sh",
		Long: `transferhelper uploads files to a transfer.sh compatible service and keeps
a local registry of the links and delete links it hands back.

Quick start:
  transferhelper upload report.pdf        # Upload a file and record it
  transferhelper list                     # Show recorded links
  transferhelper delete 3                 # Delete entry 3 locally and remotely
  transferhelper config set server https://transfer.example.com/`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configDir, "config-dir", "", "Directory holding the config file and database (default: user config dir)")
	rootCmd.PersistentFlags().StringVarP(&c.server, "server", "s", "", "Transfer service URL, overrides the config file")

	uploadCmd := &cobra.Command{
		Use:     "upload <file|dir>",
		Aliases: []string{"u", "up"},
		Short:   "Upload a file and record its links",
		Long: `Upload a file and record its links.

A directory is compressed to <name>.tar.gz first and the archive is uploaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			return c.upload(cmd.Context(), args[0], name)
		},
	}
	uploadCmd.Flags().StringP("name", "n", "", "Name to record the upload under (default: file name)")
	uploadCmd.Flags().BoolVar(&c.noProgress, "no-progress", false, "Disable the progress bar")

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l", "ls"},
		Short:   "List recorded uploads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			showDelete, _ := cmd.Flags().GetBool("del")
			return c.list(cmd.Context(), showDelete)
		},
	}
	listCmd.Flags().Bool("del", false, "Show delete links instead of download links")

	deleteCmd := &cobra.Command{
		Use:     "delete [id]",
		Aliases: []string{"d", "del", "rm"},
		Short:   "Delete an upload remotely and remove its entry",
		Long: `Delete an upload remotely and remove its entry.

Without an id the recorded entries are listed and the id is asked for.
When the remote delete fails the entry is kept unless you choose to
remove it anyway.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.delete(cmd.Context(), args)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check <id>",
		Short: "Ask the service whether an upload is still available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return c.check(cmd.Context(), id)
		},
	}

	dropCmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete the whole registry database",
		Long: `Delete the whole registry database. Remote files are not touched and
stay reachable until they expire.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return c.drop(yes)
		},
	}
	dropCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	configCmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"c", "cfg"},
		Short:   "Manage configuration",
		Long: fmt.Sprintf(`Manage configuration settings.

Available keys: %s`, strings.Join(config.Keys, ", ")),
	}

	configSetCmd := &cobra.Command{
		Use:     "set <key> <value>",
		Aliases: []string{"s"},
		Short:   "Set a configuration value",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}

	configGetCmd := &cobra.Command{
		Use:     "get <key>",
		Aliases: []string{"g"},
		Short:   "Get a configuration value",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := c.cfg.Get(args[0])
			if value == "" {
				fmt.Fprintf(c.out, "%s is not set\n", args[0])
			} else {
				fmt.Fprintf(c.out, "%s = %s\n", args[0], value)
			}
			return nil
		},
	}

	configPathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(c.out, c.cfg.ConfigFile())
		},
	}

	configCmd.AddCommand(configSetCmd, configGetCmd, configPathCmd)
	rootCmd.AddCommand(uploadCmd, listCmd, deleteCmd, checkCmd, dropCmd, configCmd)
	return rootCmd
}

func (c *cli) upload(ctx context.Context, path, name string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		archived, cleanup, err := c.compress(path)
		if err != nil {
			return err
		}
		defer cleanup()
		path = archived
	}

	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		display := name
		if display == "" {
			display = filepath.Base(path)
		}
		fmt.Fprintf(c.out, "Uploading %s (%s)\n", display, utils.FormatFileSize(info.Size()))
	}

	rec, err := reg.Register(ctx, name, path, c.progressPrinter())
	if err != nil {
		var persistErr *registry.PersistenceError
		if errors.As(err, &persistErr) && persistErr.Orphaned() {
			warnColor.Fprintln(c.errOut, "The file was uploaded but could not be recorded. Keep these links:")
			fmt.Fprintf(c.errOut, "  Link:        %s\n", persistErr.Link)
			fmt.Fprintf(c.errOut, "  Delete link: %s\n", persistErr.DeleteCredential)
		}
		return fmt.Errorf("error uploading file: %w", err)
	}

	fmt.Fprintf(c.out, "Uploaded %s as entry %d\n", rec.Name, rec.ID)
	return c.list(ctx, false)
}

// compress packs dir into <name>.tar.gz in a scratch directory. cleanup
// removes the scratch directory.
func (c *cli) compress(dir string) (string, func(), error) {
	fmt.Fprintf(c.out, "%s is a directory, compressing...\n", dir)

	tmp, err := os.MkdirTemp("", "transferhelper-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmp) }

	dst := filepath.Join(tmp, filepath.Base(filepath.Clean(dir))+".tar.gz")
	info, err := archive.TarGz(dir, dst)
	if err != nil {
		cleanup()
		return "", nil, err
	}

	c.log.Info("directory compressed",
		zap.String("dir", dir),
		zap.Int("files", info.Files),
		zap.Int64("original", info.Original),
		zap.Int64("compressed", info.Compressed))
	fmt.Fprintf(c.out, "Compressed %d files to %s (ratio %.2f)\n", info.Files, filepath.Base(dst), info.Ratio())
	return dst, cleanup, nil
}

func (c *cli) list(ctx context.Context, showDelete bool) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	links, err := reg.List(ctx)
	if err != nil {
		return err
	}
	c.printLinks(links, showDelete)
	return nil
}

func (c *cli) delete(ctx context.Context, args []string) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}

	var raw string
	if len(args) == 1 {
		raw = args[0]
	} else {
		links, err := reg.List(ctx)
		if err != nil {
			return err
		}
		c.printLinks(links, false)
		if len(links) == 0 {
			return nil
		}
		fmt.Fprint(c.out, "Enter the ID of the entry to delete: ")
		if raw, err = c.readLine(); err != nil {
			return fmt.Errorf("failed to read id: %w", err)
		}
	}

	id, err := parseID(raw)
	if err != nil {
		return err
	}

	confirm := func(rec model.LinkRecord) bool {
		return c.ask(fmt.Sprintf("Delete %q (%s)?", rec.Name, rec.Link))
	}
	forceConfirm := func(rec model.LinkRecord, remoteErr error) bool {
		warnColor.Fprintf(c.errOut, "Remote delete failed: %v\n", remoteErr)
		return c.ask("Remove the local entry anyway? The file stays reachable until it expires.")
	}

	outcome, err := reg.Delete(ctx, id, c.client.Delete, confirm, forceConfirm)
	if err != nil {
		return err
	}

	switch outcome {
	case registry.OutcomeNotFound:
		return fmt.Errorf("entry %d not found", id)
	case registry.OutcomeCancelled:
		fmt.Fprintln(c.out, "Cancelled.")
	case registry.OutcomeRolledBack:
		fmt.Fprintf(c.out, "Entry %d kept.\n", id)
	case registry.OutcomeCommitted:
		fmt.Fprintf(c.out, "Entry %d deleted.\n", id)
	}
	return nil
}

func (c *cli) check(ctx context.Context, id int64) error {
	reg, err := c.registry()
	if err != nil {
		return err
	}
	rec, err := reg.Find(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("entry %d not found", id)
	}

	ok, err := c.client.Exists(ctx, rec.Link)
	if err != nil {
		return err
	}
	if ok {
		availableColor.Fprintf(c.out, "%s is available (expected until %s)\n", rec.Link, utils.FormatDate(rec.ExpiresAt()))
	} else {
		expiredColor.Fprintf(c.out, "%s is gone\n", rec.Link)
	}
	return nil
}

func (c *cli) drop(yes bool) error {
	path := c.cfg.DatabasePath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(c.out, "No database to delete.")
		return nil
	}

	if !yes && !c.ask(fmt.Sprintf("Delete the database at %s?", path)) {
		fmt.Fprintln(c.out, "Cancelled.")
		return nil
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}
	c.log.Info("database dropped", zap.String("path", path))
	fmt.Fprintf(c.out, "Deleted %s\n", path)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := newCLI(os.Stdin, os.Stdout, os.Stderr)
	err := newRootCmd(c).ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
