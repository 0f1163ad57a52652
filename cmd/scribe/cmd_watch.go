package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/user/scribe/internal/docserver"
	"github.com/user/scribe/internal/document/memdoc"
	"github.com/user/scribe/pkg/docclient"
)

var (
	watchServer    string
	watchRedisAddr string
	watchJSON      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <documentID>",
	Short: "Print the operations applied to a document",
	Long: "Watch follows a document's op feed over the server's websocket, or over the Redis " +
		"relay when --redis-addr is set.",
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchServer, "server", "", "Document server URL (env: SCRIBE_SERVER)")
	watchCmd.Flags().StringVar(&watchRedisAddr, "redis-addr", "", "Follow the Redis op relay instead of the websocket")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print ops as JSON lines")
}

func runWatch(cmd *cobra.Command, args []string) error {
	docID := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	out := cmd.OutOrStdout()
	fn := func(op memdoc.Op) { printOp(out, op) }

	if watchRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: watchRedisAddr})
		defer rdb.Close()
		return docserver.Subscribe(ctx, rdb, docID, fn)
	}

	server := resolveServer(watchServer)
	if server == "" {
		return errors.New("watch needs --server, SCRIBE_SERVER or --redis-addr")
	}
	return docclient.New(server).Watch(ctx, docID, fn)
}

func printOp(w io.Writer, op memdoc.Op) {
	if watchJSON {
		_ = printJSONLine(w, op)
		return
	}
	switch op.Type {
	case "marker":
		fmt.Fprintf(w, "%6d marker %-8s @%d\n", op.Seq, op.MarkerID, op.Pos)
	default:
		fmt.Fprintf(w, "%6d text   %-8q @%d\n", op.Seq, op.Text, op.Pos)
	}
}
