// Package confirm shows the operator what is about to happen and waits for
// explicit consent before the disk is touched.
package confirm

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"osinstall/internal/config"
	"osinstall/internal/errors"
	"osinstall/internal/partition"
)

// DefaultToken is the only answer that lets the installation proceed.
const DefaultToken = "yes"

// Gate prompts on Out and reads a single line from In.
type Gate struct {
	In    io.Reader
	Out   io.Writer
	Token string
}

// New returns a gate that expects DefaultToken.
func New(in io.Reader, out io.Writer) *Gate {
	return &Gate{In: in, Out: out, Token: DefaultToken}
}

// Confirm renders the summary and returns errors.ErrUserAborted unless the
// operator types the token exactly. Only the line terminator is stripped,
// so " yes", "YES" and "y" all abort. End of input aborts.
func (g *Gate) Confirm(cfg config.InstallConfig, plan partition.Plan, capacityMiB int64) error {
	if err := Summary(g.Out, cfg, plan, capacityMiB); err != nil {
		return err
	}

	warn := color.New(color.FgRed, color.Bold)
	warn.Fprintf(g.Out, "\nALL DATA ON %s WILL BE DESTROYED.\n", cfg.Device)
	fmt.Fprintf(g.Out, "Type '%s' to continue: ", g.token())

	answer, err := readLine(g.In)
	if err != nil {
		return errors.E("confirm", err)
	}
	if answer != g.token() {
		return errors.ErrUserAborted
	}
	return nil
}

func (g *Gate) token() string {
	if g.Token == "" {
		return DefaultToken
	}
	return g.Token
}

// readLine returns the first line of r without its terminator. Empty input
// yields "" and no error.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !stderrors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// Summary writes the effective settings and the partition layout as two
// tables. capacityMiB resolves the size of the last partition; pass 0 when
// the device size is unknown.
func Summary(w io.Writer, cfg config.InstallConfig, plan partition.Plan, capacityMiB int64) error {
	fmt.Fprintln(w, color.CyanString("Installation settings"))
	settings := tablewriter.NewWriter(w)
	settings.Header([]string{"SETTING", "VALUE"})
	for _, f := range cfg.Fields() {
		settings.Append([]string{f[0], f[1]})
	}
	if err := settings.Render(); err != nil {
		return fmt.Errorf("error rendering settings: %w", err)
	}

	fmt.Fprintln(w, color.CyanString("\nPartition layout for %s", plan.Device))
	layout := tablewriter.NewWriter(w)
	layout.Header([]string{"#", "DEVICE", "ROLE", "FILESYSTEM", "EXTENT (MiB)", "SIZE"})
	for _, s := range plan.Specs {
		size := "rest of disk"
		if n := s.Size(capacityMiB); n >= 0 {
			size = strconv.FormatInt(n, 10) + " MiB"
		}
		layout.Append([]string{
			strconv.Itoa(s.Number),
			partition.DevicePath(plan.Device, s.Number),
			string(s.Role),
			string(s.Filesystem),
			s.Extent(capacityMiB),
			size,
		})
	}
	if err := layout.Render(); err != nil {
		return fmt.Errorf("error rendering partition layout: %w", err)
	}
	return nil
}
