// Command watch tails a campaign's push channel and prints every event,
// which is handy when poking at the simulator or a flaky backend.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"questmap.app/internal/protocol"
	"questmap.app/internal/push"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8490/push", "push channel ws url")
		campaignID = flag.String("campaign", "", "campaign id (required)")
		radius     = flag.Float64("radius", 0, "subscription radius (0 lets the server decide)")
		schemaDir  = flag.String("schemas", "", "schema directory (optional; enables payload validation)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)

	if strings.TrimSpace(*campaignID) == "" {
		logger.Fatalf("-campaign is required")
	}

	var schemas *protocol.SchemaSet
	if *schemaDir != "" {
		var err error
		if schemas, err = protocol.LoadSchemas(*schemaDir); err != nil {
			logger.Fatalf("load schemas: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()

	consumer := push.NewConsumer(push.Config{
		URL:        *url,
		CampaignID: *campaignID,
		Radius:     *radius,
		Schemas:    schemas,
		Logger:     logger,
	})
	go consumer.Run(ctx)

	events := consumer.Events()
	conns := consumer.Conns()
	for {
		select {
		case <-ctx.Done():
			logger.Printf("events=%d invalid=%d", consumer.TotalEvents(), consumer.InvalidPayloads())
			return
		case cev := <-conns:
			switch cev.State {
			case push.StateConnected:
				if cev.Reconnect {
					logger.Printf("reconnected")
				} else {
					logger.Printf("connected")
				}
			case push.StateDisconnected:
				logger.Printf("disconnected: %v", cev.Err)
			}
		case ev := <-events:
			switch {
			case ev.PlayerID != "":
				logger.Printf("%-18s player=%s", ev.Name, ev.PlayerID)
			case ev.SpawnID != "":
				logger.Printf("%-18s spawn=%s", ev.Name, ev.SpawnID)
			default:
				logger.Printf("%s", ev.Name)
			}
		}
	}
}
