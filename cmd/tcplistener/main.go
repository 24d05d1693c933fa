// Command tcplistener accepts plain TCP connections, decodes one request per
// connection and prints what the decoder produced. Useful with curl or nc to
// see how chunked arrival is handled.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/nbhttp/internal/request"
	"github.com/Brownie44l1/nbhttp/internal/response"
	"github.com/Brownie44l1/nbhttp/internal/server"
)

func main() {
	addr := flag.String("addr", ":42069", "listen address")
	readSize := flag.Int("read-size", 8, "bytes per read, small values exercise partial decoding")
	tempDir := flag.String("temp-dir", "", "upload directory (default: OS temp dir)")
	flag.Parse()

	log, err := server.NewLogger("debug", "text", os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.WithError(err).Fatal("listen failed")
	}
	defer listener.Close()
	log.WithField("addr", *addr).Info("listening")

	opts := request.Options{
		Config: request.Config{TempDir: *tempDir},
		Logger: log,
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.WithError(err).Warn("accept failed")
			continue
		}
		go handleConnection(conn, opts, *readSize, log)
	}
}

func handleConnection(conn net.Conn, opts request.Options, readSize int, log *logrus.Entry) {
	defer conn.Close()
	log = log.WithField("remote", conn.RemoteAddr().String())

	d := request.NewDecoder(conn, opts)
	defer d.Release()

	buf := make([]byte, max(readSize, 1))
	for !d.Done() {
		n, err := conn.Read(buf)
		if n > 0 {
			log.WithField("bytes", n).Debug("chunk")
			if _, ferr := d.Feed(buf[:n]); ferr != nil {
				log.WithError(ferr).Warn("decode failed")
				w := response.NewWriter(conn)
				w.Header().Set("Connection", "close")
				_ = w.Error(server.StatusForDecodeError(ferr), "")
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Warn("read failed")
			}
			return
		}
	}

	req := d.Request()
	printRequest(req)

	w := response.NewWriter(conn)
	w.Header().Set("Connection", "close")
	if err := w.Text(response.StatusOK, "Hello from your HTTP server!\n"); err != nil {
		log.WithError(err).Warn("write failed")
	}
}

func printRequest(req *request.Request) {
	fmt.Println("Request line:")
	fmt.Printf("- Method: %s\n", req.Method())
	fmt.Printf("- URI: %s\n", req.URI())
	fmt.Printf("- Query: %s\n", req.QueryString())
	fmt.Printf("- Version: %s\n", req.Proto())

	fmt.Println("Headers:")
	all := req.Headers().GetAllHeaders()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("- %s: %s\n", k, all[k])
	}

	if params := req.Params(); len(params) > 0 {
		fmt.Println("Params:")
		for k, v := range params {
			fmt.Printf("- %s: %v\n", k, v)
		}
	}

	for field, f := range req.Files() {
		fmt.Printf("File %q: %s (%d bytes, %s) -> %s\n", field, f.Filename, f.Size, f.ContentType, f.Path)
	}

	if body := req.Body(); len(body) > 0 {
		fmt.Println("Body:")
		fmt.Println(string(body))
	}
}
