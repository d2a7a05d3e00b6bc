// Command ircdctl is the operator console client: it dials a running
// ircd's control socket, authenticates, and then drives an interactive
// REPL. Grounded on pkg/miniclient's Attach method (liner-based prompt
// loop, Ctrl-C aborts the current line rather than the session, history,
// "quit"/"disconnect" shortcuts) generalized from minimega's local-command
// gob protocol to the console package's plain-text AUTH+command/response
// protocol, and on pkg/minipager for paging long output.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/GameSurge/srvx-sub002/internal/console"
	"github.com/GameSurge/srvx-sub002/pkg/minipager"
)

var (
	addr     = flag.String("addr", "127.0.0.1:7001", "ircd control socket address")
	account  = flag.String("account", "", "operator account name")
	password = flag.String("password", "", "operator password")
)

func main() {
	flag.Parse()

	if *account == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "ircdctl: -account and -password are required")
		os.Exit(1)
	}

	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ircdctl: dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	fmt.Fprintf(conn, "AUTH %s %s\n", *account, *password)
	line, err := r.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "ircdctl: auth: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(line) != "OK" {
		fmt.Fprintf(os.Stderr, "ircdctl: %s\n", strings.TrimSpace(line))
		os.Exit(1)
	}

	attach(conn, r)
}

func attach(conn net.Conn, r *bufio.Reader) {
	fmt.Println("connected to ircd control socket")
	fmt.Println("use 'quit' or ^D to disconnect")
	fmt.Println()

	input := liner.NewLiner()
	defer input.Close()
	input.SetCtrlCAborts(true)

	prompt := fmt.Sprintf("ircdctl:%v$ ", conn.RemoteAddr())
	pager := minipager.DefaultPager

	for {
		line, err := input.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			fmt.Fprintf(os.Stderr, "ircdctl: %v\n", err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		if line == "quit" || line == "disconnect" {
			break
		}

		fmt.Fprintln(conn, line)
		out, err := readResponse(r)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ircdctl: %v\n", err)
			break
		}
		if len(out) > 20 {
			pager.Page(strings.Join(out, "\n"))
		} else {
			for _, l := range out {
				fmt.Println(l)
			}
		}
	}
}

func readResponse(r *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return lines, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == console.End {
			return lines, nil
		}
		lines = append(lines, line)
	}
}
