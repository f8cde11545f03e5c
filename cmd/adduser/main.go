// Command adduser creates a web and mobile user and optionally adds it to
// organisations.
//
//	adduser [-db path] [-org title]... username
//
// The password is prompted for on a terminal and read from the first line
// of stdin otherwise.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"expensehub/internal/auth"
	"expensehub/internal/cli"
	"expensehub/internal/storage"
)

const minPasswordLength = 8

func main() {
	cli.LoadEnvFile()
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type orgList []string

func (o *orgList) String() string { return strings.Join(*o, ",") }

func (o *orgList) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", envOr("SQLITE_DB_PATH", "./data/expensehub.db"), "SQLite database path")
	var orgs orgList
	fs.Var(&orgs, "org", "organisation title to add the user to (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: adduser [-db path] [-org title]... username")
		return 2
	}
	username := strings.TrimSpace(fs.Arg(0))

	password, err := readPassword(stdin, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "adduser: %v\n", err)
		return 1
	}

	if err := addUser(context.Background(), *dbPath, username, password, orgs); err != nil {
		fmt.Fprintf(stderr, "adduser: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "created user %s\n", username)
	return 0
}

func addUser(ctx context.Context, dbPath, username, password string, orgs []string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	// Resolve every organisation before creating anything.
	orgIDs := make([]int64, 0, len(orgs))
	for _, title := range orgs {
		org, err := repo.OrganisationByTitle(ctx, title)
		if err != nil {
			return fmt.Errorf("organisation %q: %w", title, err)
		}
		orgIDs = append(orgIDs, org.ID)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user, err := repo.CreateUser(ctx, username, hash)
	if err != nil {
		return err
	}
	for _, id := range orgIDs {
		if err := repo.AddOrganisationUser(ctx, id, user.ID); err != nil {
			return err
		}
	}
	return nil
}

var errPasswordMismatch = errors.New("passwords do not match")

func readPassword(stdin io.Reader, prompt io.Writer) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		first, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		fmt.Fprint(prompt, "Repeat password: ")
		second, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		if string(first) != string(second) {
			return "", errPasswordMismatch
		}
		return string(first), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
