package admin

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/services"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = func(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var errNotConfirmed = errors.New("erasure not confirmed")

func newEraseCmd(connect connectFunc) *cobra.Command {
	var (
		email string
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Permanently erase an account and everything it owns",
		Long: `Deletes the account's files, blobs, folders, grants, keys and recovery data.
Running it again on a partially erased account resumes the erasure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !yes {
				if err := confirm(cmd.InOrStdin(), out, email); err != nil {
					return err
				}
			}

			b, err := connect(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			report, err := b.EraseByEmail(cmd.Context(), email)
			if err != nil && !(services.IsPartial(err) && report != nil) {
				return fmt.Errorf("error erasing %s: %w", email, err)
			}
			printReport(out, report)
			return err
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "email of the account to erase")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// confirm asks the operator to retype the email. Without a terminal there is
// nobody to ask, so --yes is required.
func confirm(in io.Reader, out io.Writer, email string) error {
	if !isTerminal(in) {
		return fmt.Errorf("%w: stdin is not a terminal, pass --yes", errNotConfirmed)
	}
	color.New(color.FgRed, color.Bold).Fprintf(out, "This permanently erases %s.\n", email)
	fmt.Fprint(out, "Type the email again to continue\n> ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return fmt.Errorf("%w: %v", errNotConfirmed, err)
	}
	if !strings.EqualFold(strings.TrimSpace(line), strings.TrimSpace(email)) {
		return errNotConfirmed
	}
	return nil
}

func printReport(out io.Writer, r *models.ErasureReport) {
	title := color.New(color.FgGreen, color.Bold)
	if len(r.BlobFailures) > 0 {
		title = color.New(color.FgYellow, color.Bold)
	}
	title.Fprintf(out, "erased %s (%s)\n", r.Email, r.UserID)
	if r.Resumed {
		fmt.Fprintln(out, "resumed an earlier erasure")
	}
	fmt.Fprintf(out, "blobs deleted: %d\n", r.BlobsDeleted)
	for _, s := range r.Steps {
		fmt.Fprintf(out, "  %-20s %d\n", s.Name, s.RowsDeleted)
	}
	for _, f := range r.BlobFailures {
		color.New(color.FgRed).Fprintf(out, "  blob %s (file %s): %s\n", f.BlobKey, f.FileID, f.Error)
	}
	if r.EventError != "" {
		color.New(color.FgRed).Fprintf(out, "event not published: %s\n", r.EventError)
	}
}
