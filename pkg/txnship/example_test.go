package txnship_test

import (
	"context"
	"fmt"
	"os"

	"github.com/bft-labs/txnship/pkg/txnship"
)

// ExampleNew shows how to embed the sink in an application.
func ExampleNew() {
	dir, err := os.MkdirTemp("", "spool")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.RemoveAll(dir)

	cfg := txnship.Config{
		Addrs:    []string{"127.0.0.1:9000"},
		Table:    "events",
		Columns:  []string{"ts", "body"},
		SpoolDir: dir,
	}

	svc, err := txnship.New(cfg, txnship.WithConnector(&memStore{}))
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		return
	}

	if err := svc.Start(context.Background()); err != nil {
		fmt.Printf("failed to start: %v\n", err)
		return
	}

	status := svc.Status()
	fmt.Printf("Status is valid: %v\n", status == txnship.StateStarting || status == txnship.StateRunning)

	_ = svc.Stop()

	// Output: Status is valid: true
}

// commitPrinter reports commits and ignores everything else.
type commitPrinter struct {
	txnship.BaseEventHandler
}

func (commitPrinter) OnCommit(ev txnship.CommitEvent) {
	fmt.Printf("committed %d events\n", ev.Events)
}

// Example_withEventHandler shows how to receive commit events.
func Example_withEventHandler() {
	cfg := txnship.Config{
		Addrs:    []string{"127.0.0.1:9000"},
		Table:    "events",
		Columns:  []string{"ts", "body"},
		SpoolDir: "/var/spool/txnship",
	}

	svc, err := txnship.New(cfg, txnship.WithEventHandler(commitPrinter{}))
	if err != nil {
		fmt.Printf("failed to create service: %v\n", err)
		return
	}

	_ = svc
}
