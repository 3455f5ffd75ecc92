package cli

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"filehub/internal/registry"
	"filehub/internal/session"
	"filehub/internal/transfer"
)

func newListCmd(opts options) *cobra.Command {
	var uploadedBy string
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List shared files, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Refresh(cmd.Context()); err != nil {
				return err
			}
			files := a.session.Snapshot().Files
			if uploadedBy != "" {
				filtered := files[:0]
				for _, f := range files {
					if f.UploadedBy == uploadedBy {
						filtered = append(filtered, f)
					}
				}
				files = filtered
			}
			renderFiles(cmd, files)
			return nil
		},
	}
	cmd.Flags().StringVar(&uploadedBy, "by", "", "Only show files uploaded by this user")
	return cmd
}

func renderFiles(cmd *cobra.Command, files []registry.FileRecord) {
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No files shared yet.")
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "Name", "Size", "Type", "Uploaded", "By"})
	var total int64
	for _, f := range files {
		tw.AppendRow(table.Row{f.ID, f.Name, humanize.IBytes(uint64(max(f.Size, 0))), f.MediaType, f.UploadedAt, f.UploadedBy})
		total += f.Size
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d files", len(files)), humanize.IBytes(uint64(max(total, 0))), "", "", ""})
	tw.Render()
}

func newPutCmd(opts options) *cobra.Command {
	var mediaType, name string
	cmd := &cobra.Command{
		Use:   "put <file>...",
		Short: "Upload local files to the shared registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.user() == "" {
				return fmt.Errorf("%w: pass --user or set %s_USER", session.ErrNoIdentity, EnvPrefix)
			}
			if name != "" && len(args) > 1 {
				return errors.New("--name can only be used with a single file")
			}

			a, err := newApp(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.SetIdentity(opts.user()); err != nil {
				return err
			}
			for _, path := range args {
				content, err := afero.ReadFile(a.fs, path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				fileName := name
				if fileName == "" {
					fileName = filepath.Base(path)
				}
				if err := a.session.SelectFile(fileName, detectType(path, mediaType), content); err != nil {
					return err
				}
				record, err := a.session.Upload(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", record.ID, record.Name, humanize.IBytes(uint64(record.Size)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mediaType, "type", "t", "", "Content type (default: guessed from the extension)")
	cmd.Flags().StringVar(&name, "name", "", "Name to record instead of the local file name")
	return cmd
}

func detectType(path, override string) string {
	if override != "" {
		return override
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return ""
}

func newGetCmd(opts options) *cobra.Command {
	var output, dir string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download a shared file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := a.session.SelectRecord(args[0]); err != nil {
				return err
			}
			saver := transfer.FileSaver{Fs: a.fs, Dir: dir, Path: output}
			if output == "-" {
				return a.session.Download(cmd.Context(), transfer.WriterSaver{W: cmd.OutOrStdout()})
			}
			if err := a.session.Download(cmd.Context(), saver); err != nil {
				return err
			}
			target := output
			if target == "" {
				for _, f := range a.session.Snapshot().Files {
					if f.ID == args[0] {
						target = filepath.Join(dir, transfer.SafeName(f.Name))
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this path (\"-\" for stdout)")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to save into when --output is not set")
	return cmd
}

func newRemoveCmd(opts options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete shared files (missing ids are ignored)",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				if err := a.session.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("%s: %w", session.DeleteFailedMessage, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}
