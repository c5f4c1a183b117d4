// Command bountyctl operates on a stopped node's database: snapshot
// export and import, state comparison, and invariant audit.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"AgentBounty/internal/bounty"
	"AgentBounty/internal/logger"
	"AgentBounty/internal/registry"
	"AgentBounty/internal/snapshot"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

const usage = `usage: bountyctl <command> [flags]

commands:
  export -data DIR -out FILE     write a compressed snapshot of DIR
  import -data DIR -in FILE      replace the state in DIR with a snapshot
  diff DIR1 DIR2                 compare two databases
  audit -data DIR [-fee-vault HEX]  check custody invariants
`

func main() {
	logger.Init()

	code, err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}

	os.Exit(code)
}

// run dispatches a subcommand. The exit code is 1 when state differs or
// an invariant is violated, 2 on usage errors.
func run(args []string, out io.Writer) (int, error) {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return 2, nil
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "export":
		return runExport(rest, out)
	case "import":
		return runImport(rest, out)
	case "diff":
		return runDiff(rest, out)
	case "audit":
		return runAudit(rest, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return 0, nil
	default:
		fmt.Fprint(out, usage)
		return 2, fmt.Errorf("unknown command %q", cmd)
	}
}

// runExport writes a snapshot file.
func runExport(args []string, out io.Writer) (int, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dataPath := fs.String("data", "", "database directory")
	outPath := fs.String("out", "", "snapshot file to write")

	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if *dataPath == "" || *outPath == "" {
		return 2, fmt.Errorf("export requires -data and -out")
	}

	db, err := storage.New(*dataPath)
	if err != nil {
		return 1, fmt.Errorf("open %s:\n%w", *dataPath, err)
	}
	defer db.Close()

	f, err := os.Create(*outPath)
	if err != nil {
		return 1, fmt.Errorf("create %s:\n%w", *outPath, err)
	}

	snap, err := snapshot.Export(db, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 1, fmt.Errorf("export:\n%w", err)
	}

	fmt.Fprintf(out, "exported %d entries to %s (checksum %x)\n", len(snap.Entries), *outPath, snap.Checksum[:8])

	return 0, nil
}

// runImport restores a snapshot file, then audits the result.
func runImport(args []string, out io.Writer) (int, error) {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	dataPath := fs.String("data", "", "database directory")
	inPath := fs.String("in", "", "snapshot file to read")
	vaultHex := fs.String("fee-vault", "", "fee vault identity (hex)")

	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if *dataPath == "" || *inPath == "" {
		return 2, fmt.Errorf("import requires -data and -in")
	}

	vault, err := parseVault(*vaultHex)
	if err != nil {
		return 2, err
	}

	f, err := os.Open(*inPath)
	if err != nil {
		return 1, fmt.Errorf("open %s:\n%w", *inPath, err)
	}
	defer f.Close()

	db, err := storage.New(*dataPath)
	if err != nil {
		return 1, fmt.Errorf("open %s:\n%w", *dataPath, err)
	}
	defer db.Close()

	snap, err := snapshot.Import(db, f)
	if err != nil {
		return 1, fmt.Errorf("import:\n%w", err)
	}

	fmt.Fprintf(out, "imported %d entries into %s (checksum %x)\n", len(snap.Entries), *dataPath, snap.Checksum[:8])

	return audit(db, vault, out)
}

// runDiff compares two databases key by key.
func runDiff(args []string, out io.Writer) (int, error) {
	if len(args) != 2 {
		return 2, fmt.Errorf("diff requires two database directories")
	}

	left, err := storage.New(args[0])
	if err != nil {
		return 1, fmt.Errorf("open %s:\n%w", args[0], err)
	}
	defer left.Close()

	right, err := storage.New(args[1])
	if err != nil {
		return 1, fmt.Errorf("open %s:\n%w", args[1], err)
	}
	defer right.Close()

	var d *snapshot.Difference
	err = left.View(func(l storage.Reader) error {
		return right.View(func(r storage.Reader) error {
			var err error
			d, err = snapshot.Diff(l, r)
			return err
		})
	})
	if err != nil {
		return 1, err
	}

	if d.Empty() {
		fmt.Fprintln(out, "states are identical")
		return 0, nil
	}

	fmt.Fprintln(out, "states differ:")
	printKeys(out, "only in "+args[0], d.OnlyLeft)
	printKeys(out, "only in "+args[1], d.OnlyRight)
	printKeys(out, "different content", d.Changed)

	return 1, nil
}

// runAudit checks invariants of one database.
func runAudit(args []string, out io.Writer) (int, error) {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	dataPath := fs.String("data", "", "database directory")
	vaultHex := fs.String("fee-vault", "", "fee vault identity (hex)")

	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if *dataPath == "" {
		return 2, fmt.Errorf("audit requires -data")
	}

	vault, err := parseVault(*vaultHex)
	if err != nil {
		return 2, err
	}

	db, err := storage.New(*dataPath)
	if err != nil {
		return 1, fmt.Errorf("open %s:\n%w", *dataPath, err)
	}
	defer db.Close()

	return audit(db, vault, out)
}

// audit prints the invariant report of db.
func audit(db *storage.Storage, vault types.Pubkey, out io.Writer) (int, error) {
	var report *bounty.Report
	err := db.View(func(r storage.Reader) error {
		var err error
		report, err = bounty.Audit(r, vault)
		return err
	})
	if err != nil {
		return 1, fmt.Errorf("audit:\n%w", err)
	}

	fmt.Fprintf(out, "bounties=%d escrowed=%d fees_due=%d events=%d\n",
		report.Bounties, report.Escrowed, report.FeesDue, report.Events)

	if report.OK() {
		fmt.Fprintln(out, "all invariants hold")
		return 0, nil
	}

	printKeys(out, "violations", report.Violations)

	return 1, nil
}

// parseVault resolves the fee vault flag.
func parseVault(s string) (types.Pubkey, error) {
	if s == "" {
		return registry.FeeVault, nil
	}

	vault, err := types.ParsePubkey(s)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("invalid fee vault:\n%w", err)
	}

	return vault, nil
}

// printKeys prints a labelled list, skipping empty ones.
func printKeys(out io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}

	fmt.Fprintf(out, "  %s: %d\n", label, len(items))
	for _, item := range items {
		fmt.Fprintf(out, "      %s\n", item)
	}
}
