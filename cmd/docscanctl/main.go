package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/internal/server"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: docscanctl [-addr host:port] submit|resubmit|status|data <document-id>\n")
	fmt.Fprintf(os.Stderr, "       docscanctl [-addr host:port] export [-owner id] <out.xlsx>\n")
	flag.PrintDefaults()
}

func main() {
	var (
		addr    = flag.String("addr", "localhost:8080", "docscand gRPC address")
		owner   = flag.String("owner", "", "owner id to export (export only, empty = all)")
		timeout = flag.Duration("timeout", 5*time.Minute, "call timeout; inline processing can take a while")
	)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 2 {
		usage()
		os.Exit(2)
	}
	cmd, arg := flag.Arg(0), flag.Arg(1)

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	client := server.NewDocumentClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", uuid.NewString())

	var res *structpb.Struct
	switch cmd {
	case "submit":
		res, err = client.Submit(ctx, arg)
	case "resubmit":
		res, err = client.Resubmit(ctx, arg)
	case "status":
		res, err = client.GetStatus(ctx, arg)
	case "data":
		res, err = client.GetExtractedData(ctx, arg)
	case "export":
		var xlsx []byte
		if xlsx, err = client.Export(ctx, *owner); err == nil {
			err = os.WriteFile(arg, xlsx, 0o644)
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
	if res == nil {
		fmt.Printf("wrote %s\n", arg)
		return
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(res)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
