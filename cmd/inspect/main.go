// Command inspect is a read-only maintenance tool for the relayer
// store. It talks to PostgreSQL directly so it can be pointed at a
// production database without pulling in the relayer's configuration.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	_ "github.com/lib/pq"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("DATABASE_DSN"), "PostgreSQL connection string")
	limit := flag.Int("limit", 50, "maximum rows to print")
	flag.Usage = usage
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "missing -dsn (or DATABASE_DSN)")
		os.Exit(2)
	}
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		fatal("open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		fatal("ping database: %v", err)
	}

	switch cmd := flag.Arg(0); cmd {
	case "withdrawals":
		err = listWithdrawals(db, *limit)
	case "messages":
		err = listMessages(db, *limit)
	case "transactions":
		err = listTransactions(db, *limit)
	case "lineage":
		if flag.NArg() < 2 {
			fatal("lineage requires a validium transaction hash")
		}
		err = showLineage(db, flag.Arg(1))
	case "state":
		err = showState(db)
	default:
		fatal("unknown command %q", cmd)
	}
	if err != nil {
		fatal("%v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: inspect -dsn <dsn> <command>

Commands:
  withdrawals         list recent withdrawals
  messages            list recent messages
  transactions        list recent transactions
  lineage <tx-hash>   show the full record chain for one withdrawal
  state               show the indexer checkpoint
`)
	flag.PrintDefaults()
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func listWithdrawals(db *sql.DB, limit int) error {
	rows, err := db.Query(`
		SELECT validium_tx_hash, status, COALESCE(reject_reason, ''), created_at
		FROM withdrawals ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := newTable("VALIDIUM TX\tSTATUS\tREJECT REASON\tCREATED")
	for rows.Next() {
		var hash, status, reason, created string
		if err := rows.Scan(&hash, &status, &reason, &created); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", hash, status, reason, created)
	}
	w.Flush()
	return rows.Err()
}

func listMessages(db *sql.DB, limit int) error {
	rows, err := db.Query(`
		SELECT message_hash, validium_tx_hash, recipient, amount, status
		FROM messages ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := newTable("MESSAGE HASH\tVALIDIUM TX\tRECIPIENT\tAMOUNT\tSTATUS")
	for rows.Next() {
		var hash, tx, recipient, amount, status string
		if err := rows.Scan(&hash, &tx, &recipient, &amount, &status); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", hash, tx, recipient, amount, status)
	}
	w.Flush()
	return rows.Err()
}

func listTransactions(db *sql.DB, limit int) error {
	rows, err := db.Query(`
		SELECT hash, message_hash, nonce, status, COALESCE(failure_reason, '')
		FROM transactions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := newTable("HASH\tMESSAGE HASH\tNONCE\tSTATUS\tFAILURE REASON")
	for rows.Next() {
		var hash, msgHash, status, reason string
		var nonce uint64
		if err := rows.Scan(&hash, &msgHash, &nonce, &status, &reason); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", hash, msgHash, nonce, status, reason)
	}
	w.Flush()
	return rows.Err()
}

func showLineage(db *sql.DB, txHash string) error {
	var status, reason, created string
	err := db.QueryRow(`
		SELECT status, COALESCE(reject_reason, ''), created_at
		FROM withdrawals WHERE validium_tx_hash = $1`, txHash).
		Scan(&status, &reason, &created)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no withdrawal recorded for %s", txHash)
	}
	if err != nil {
		return err
	}
	fmt.Printf("withdrawal %s\n  status: %s\n", txHash, status)
	if reason != "" {
		fmt.Printf("  reject reason: %s\n", reason)
	}
	fmt.Printf("  created: %s\n", created)

	msgs, err := db.Query(`
		SELECT message_hash, recipient, amount, status
		FROM messages WHERE validium_tx_hash = $1`, txHash)
	if err != nil {
		return err
	}
	defer msgs.Close()

	for msgs.Next() {
		var msgHash, recipient, amount, msgStatus string
		if err := msgs.Scan(&msgHash, &recipient, &amount, &msgStatus); err != nil {
			return err
		}
		fmt.Printf("  message %s\n    recipient: %s amount: %s status: %s\n",
			msgHash, recipient, amount, msgStatus)

		txs, err := db.Query(`
			SELECT hash, nonce, status, COALESCE(failure_reason, '')
			FROM transactions WHERE message_hash = $1 ORDER BY created_at`, msgHash)
		if err != nil {
			return err
		}
		for txs.Next() {
			var hash, txStatus, failure string
			var nonce uint64
			if err := txs.Scan(&hash, &nonce, &txStatus, &failure); err != nil {
				txs.Close()
				return err
			}
			fmt.Printf("    transaction %s nonce=%d status=%s", hash, nonce, txStatus)
			if failure != "" {
				fmt.Printf(" failure=%q", failure)
			}
			fmt.Println()
		}
		if err := txs.Err(); err != nil {
			txs.Close()
			return err
		}
		txs.Close()
	}
	return msgs.Err()
}

func showState(db *sql.DB) error {
	var block uint64
	var updated string
	err := db.QueryRow(`SELECT last_processed_block, updated_at FROM indexer_states WHERE id = 1`).
		Scan(&block, &updated)
	if err == sql.ErrNoRows {
		fmt.Println("no checkpoint recorded")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("last processed block: %d (updated %s)\n", block, updated)
	return nil
}

func newTable(header string) *tabwriter.Writer {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	return w
}
