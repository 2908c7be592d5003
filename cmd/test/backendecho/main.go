package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/phayes/freeport"
)

type flagOptions struct {
	Noise        bool `long:"noise" description:"Emit log noise and an invalid readiness line before the real one (debug feature)"`
	ReadyDelayMs int  `long:"ready-delay-ms" description:"Delay in milliseconds before announcing readiness (debug feature)"`
}

// Backendecho plays the sidecar role for manual and integration testing:
// it binds a free TCP port, announces it with the readiness handshake,
// then echoes whatever connects until it is terminated.
func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Running Backendecho, opts: %+v...\n", opts)

	port, err := freeport.GetFreePort()
	if err != nil {
		fmt.Printf("Failed to find a free port: %v\n", err)
		os.Exit(1)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		fmt.Printf("Failed to listen on port %d: %v\n", port, err)
		os.Exit(1)
	}
	defer listener.Close()

	if opts.Noise {
		fmt.Println("log: starting up")
		fmt.Println("BACKEND_READY:abc")
	}

	if opts.ReadyDelayMs > 0 {
		time.Sleep(time.Duration(opts.ReadyDelayMs) * time.Millisecond)
	}

	fmt.Printf("BACKEND_READY:%d\n", port)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go echo(conn)
		}
	}()

	// Enable signal handling
	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	receivedSignal := <-sig
	fmt.Printf("Backendecho received signal: %v\n", receivedSignal)
	fmt.Printf("Backendecho stopped\n")
}

func echo(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Fprintf(conn, "%s\n", scanner.Text())
	}
}
