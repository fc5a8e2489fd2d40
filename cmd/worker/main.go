package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/trailgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/trailgraph/internal/queue"
	"github.com/OFFIS-RIT/trailgraph/internal/timing"
	"github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger/console"

	amqp "github.com/rabbitmq/amqp091-go"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	// pipeline, session store and collectors
	rt, err := bootstrap.New(ctx)
	if err != nil {
		logger.Fatal("[Worker] Failed to initialize", "err", err)
	}
	defer rt.Close()
	go rt.SweepSessions(ctx, time.Hour)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("[Worker] Failed to set up queues", "err", err)
	}

	handler := queue.NewHandler(queue.NewHandlerParams{
		Manager:        rt.Manager,
		Locker:         rt.Locker,
		Events:         ch,
		Collectors:     rt.Collectors,
		LeaseTTL:       util.GetEnvDuration("LEASE_TTL", 2*time.Minute),
		CollectTimeout: rt.CollectTimeout,
	})

	logger.Info("[Worker] Listening for messages")

	// One consumer channel with prefetch=1 so a single message is in flight
	// across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("[Worker] Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("[Worker] Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("[Worker] Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("[Worker] Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("[Worker] Message channel closed", "queue", qName)
						return
					}
					select {
					case messageChan <- queuedMessage{msg: msg, queueName: qName}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("[Worker] Stopping message processor")
				return
			case qm := <-messageChan:
				process(ctx, handler, consumerCh, rt, qm.msg, qm.queueName)
			}
		}
	}()

	<-ctx.Done()
	logger.Info("[Worker] Shutdown signal received, exiting...")
}

func process(ctx context.Context, handler *queue.Handler, ch *amqp.Channel, rt *bootstrap.App, msg amqp.Delivery, queueName string) {
	done := timing.Track("[Worker] Processing time", "queue", queueName)
	defer done()
	logger.Info("[Worker] Received message", "queue", queueName)

	// If there was an error send to retry or dead-letter, otherwise ack the message
	if err := handler.Process(ctx, queueName, msg.Body); err != nil {
		logger.Error("[Worker] Error processing message", "queue", queueName, "err", err)
		queue.HandleProcessingError(ch, msg, queueName, err)
	} else {
		if err := msg.Ack(false); err != nil {
			logger.Error("[Worker] Failed to ack message", "err", err)
		}
		logger.Info("[Worker] Message processed successfully", "queue", queueName)
	}

	if rt.AIClient != nil {
		metrics := rt.AIClient.GetMetrics()
		logger.Info(
			"[Worker] AI Metrics",
			"input_tokens", metrics.InputTokens,
			"output_tokens", metrics.OutputTokens,
			"total_tokens", metrics.TotalTokens,
			"duration", timing.Clock(time.Duration(metrics.DurationMs)*time.Millisecond),
		)
		rt.AIClient.ResetMetrics()
	}
}
