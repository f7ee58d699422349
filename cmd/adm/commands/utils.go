package commands

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	contextutils "issuetracker/internal/utils"

	"golang.org/x/term"
)

// readPassword reads a secret without echo; tests replace it
var readPassword = func() (string, error) {
	b, err := term.ReadPassword(int(syscall.Stdin))
	return string(b), err
}

// promptPassword asks for a password twice and checks both entries match
func promptPassword(out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "Enter %s: ", label)
	password, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", contextutils.WrapErrorf(err, "failed to read password")
	}
	if password == "" {
		return "", contextutils.ErrorWithContextf("password cannot be empty")
	}

	fmt.Fprintf(out, "Confirm %s: ", label)
	confirm, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", contextutils.WrapErrorf(err, "failed to read password confirmation")
	}
	if password != confirm {
		return "", contextutils.ErrorWithContextf("passwords do not match")
	}
	return password, nil
}

// promptLine reads one line from in, used when a positional argument is omitted
func promptLine(in io.Reader, out io.Writer, label string) (string, error) {
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprintf(out, "%s: ", label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", contextutils.WrapErrorf(err, "failed to read %s", strings.ToLower(label))
	}
	return strings.TrimSpace(line), nil
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	if err := db.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		return "Connected (unknown database)"
	}
	return fmt.Sprintf("Connected to %s", dbName)
}
