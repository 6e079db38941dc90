package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"matchfeed.com/internal/engine"
	"matchfeed.com/internal/matching"
)

const consoleHelp = `commands:
  insert <buy|sell> <price> <qty>
  update <id> <price> <qty>
  delete <id>
  find <id>
  dump
  help`

var errUsage = errors.New("usage")

type consoleActor interface {
	Do(ctx context.Context, cmd engine.Command) (engine.Result, error)
	Inspect(ctx context.Context, fn func(e *engine.Engine)) error
}

// parseLine turns one console line into a command. dump is true for the
// book view, which is not a command.
func parseLine(line string) (cmd engine.Command, dump bool, err error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return cmd, false, errUsage
	}
	args := f[1:]
	num := func(i int) (int64, error) {
		if i >= len(args) {
			return 0, errUsage
		}
		return strconv.ParseInt(args[i], 10, 64)
	}
	id := func() (uint64, error) {
		if len(args) < 1 {
			return 0, errUsage
		}
		return strconv.ParseUint(args[0], 10, 64)
	}

	switch strings.ToLower(f[0]) {
	case "insert", "i":
		if len(args) != 3 {
			return cmd, false, errUsage
		}
		side, err := matching.ParseSide(args[0])
		if err != nil {
			return cmd, false, err
		}
		price, err := num(1)
		if err != nil {
			return cmd, false, err
		}
		qty, err := num(2)
		if err != nil {
			return cmd, false, err
		}
		return engine.Command{Type: engine.CmdInsert, Side: side, Price: price, Qty: qty}, false, nil
	case "update", "u":
		if len(args) != 3 {
			return cmd, false, errUsage
		}
		oid, err := id()
		if err != nil {
			return cmd, false, err
		}
		price, err := num(1)
		if err != nil {
			return cmd, false, err
		}
		qty, err := num(2)
		if err != nil {
			return cmd, false, err
		}
		return engine.Command{Type: engine.CmdUpdate, OrderID: oid, Price: price, Qty: qty}, false, nil
	case "delete", "d":
		oid, err := id()
		if err != nil {
			return cmd, false, err
		}
		return engine.Command{Type: engine.CmdDelete, OrderID: oid}, false, nil
	case "find", "f":
		oid, err := id()
		if err != nil {
			return cmd, false, err
		}
		return engine.Command{Type: engine.CmdFind, OrderID: oid}, false, nil
	case "dump":
		return cmd, true, nil
	}
	return cmd, false, errUsage
}

// runConsole reads commands line by line until EOF or ctx ends.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, a consoleActor) {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(out, consoleHelp)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "help" {
			fmt.Fprintln(out, consoleHelp)
			continue
		}
		cmd, dump, err := parseLine(line)
		if err != nil {
			if errors.Is(err, errUsage) {
				fmt.Fprintln(out, consoleHelp)
			} else {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		}
		if dump {
			var buf bytes.Buffer
			if err := a.Inspect(ctx, func(e *engine.Engine) { e.Dump(&buf) }); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			_, _ = out.Write(buf.Bytes())
			continue
		}
		res, err := a.Do(ctx, cmd)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printResult(out, cmd, res)
	}
}

func printResult(out io.Writer, cmd engine.Command, res engine.Result) {
	switch cmd.Type {
	case engine.CmdFind:
		if !res.Found {
			fmt.Fprintf(out, "order %d not found\n", cmd.OrderID)
			return
		}
		fallthrough
	case engine.CmdInsert, engine.CmdUpdate:
		o := res.Order
		fmt.Fprintf(out, "order id=%d side=%s price=%d qty=%d seq=%d\n", o.ID, o.Side, o.Price, o.Qty, res.Seq)
	case engine.CmdDelete:
		fmt.Fprintf(out, "deleted %d seq=%d\n", cmd.OrderID, res.Seq)
	}
}
