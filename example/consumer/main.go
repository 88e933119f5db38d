// Command consumer is a minimal downstream subscriber for registry
// events. It connects to the NATS streaming cluster the server
// publishes to and prints every version lifecycle event it receives.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	stan "github.com/nats-io/stan.go"

	"pkghub/internal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	topic := flag.String("topic", "registry.events", "Topic to consume")
	flag.Parse()

	logger := internal.NewLogger("consumer")

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	natsCfg := config.Watermill.NATS
	if natsCfg.ClusterID == "" || natsCfg.ClientID == "" {
		logger.Fatalf("watermill nats cluster_id and client_id are required")
	}

	subCfg := wmnats.StreamingSubscriberConfig{
		ClusterID:   natsCfg.ClusterID,
		ClientID:    natsCfg.ClientID + "-consumer",
		QueueGroup:  "pkghub-consumers",
		DurableName: "pkghub-consumer",
		Unmarshaler: wmnats.GobMarshaler{},
	}
	if natsCfg.URL != "" {
		subCfg.StanOptions = append(subCfg.StanOptions, stan.NatsURL(natsCfg.URL))
	}

	subscriber, err := wmnats.NewStreamingSubscriber(subCfg, watermill.NewStdLogger(false, false))
	if err != nil {
		logger.Fatalf("subscriber: %v", err)
	}
	defer subscriber.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	messages, err := subscriber.Subscribe(ctx, *topic)
	if err != nil {
		logger.Fatalf("subscribe %s: %v", *topic, err)
	}

	logger.Printf("consuming %s", *topic)
	for msg := range messages {
		log.Printf("%s %s package=%s version=%s (%d bytes)",
			msg.Metadata.Get("provider"),
			msg.Metadata.Get("event"),
			msg.Metadata.Get("package"),
			msg.Metadata.Get("version"),
			len(msg.Payload),
		)
		msg.Ack()
	}
}
