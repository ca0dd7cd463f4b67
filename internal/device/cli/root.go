package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Root runs the interactive loop. Command handlers print their own errors;
// the loop only routes input.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintln(a.out, "Applicator tracking console (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Fprintf(a.out, "seedtrack %s> ", a.getStatus())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		if !a.isLoggedIn() {
			switch cmd {
			case "help":
				fmt.Fprintln(a.out, "Available commands: login, exit")
			case "login":
				a.login(ctx)
			case "exit", "quit":
				fmt.Fprintln(a.out, "Bye!")
				return
			default:
				fmt.Fprintln(a.out, "Log in first (type 'login')")
			}
			continue
		}

		switch cmd {
		case "help":
			fmt.Fprintln(a.out, "Available commands: download, scan, status, (l)ist, audit, sync, conflicts, wipe, logout, exit")
		case "download":
			a.download(ctx)
		case "scan":
			a.scan(ctx)
		case "status":
			a.status(ctx)
		case "l", "list":
			a.list(ctx)
		case "audit":
			a.audit(ctx)
		case "sync":
			a.sync(ctx)
		case "conflicts":
			a.conflicts(ctx)
		case "wipe":
			a.wipe(ctx)
		case "login":
			a.login(ctx)
		case "logout":
			a.logout(ctx)
		case "exit", "quit":
			a.logout(ctx)
			fmt.Fprintln(a.out, "Bye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}
}
