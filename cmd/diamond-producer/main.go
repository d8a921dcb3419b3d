// Command diamond-producer simulates game servers publishing diamond awards
// to the Kafka topic the server consumes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/clashsync/internal/kafka"
)

var reasons = []string{"battle_win", "battle_loss", "daily_bonus", "tournament", "streak"}

func userIDs(list string, generated int) []string {
	if list != "" {
		return strings.Split(list, ",")
	}
	ids := make([]string, generated)
	for i := range ids {
		ids[i] = fmt.Sprintf("player-%d", i+1)
	}
	return ids
}

// award picks a delta for a reason; losses occasionally cost diamonds
func award(userID string) kafka.AwardEvent {
	reason := reasons[rand.Intn(len(reasons))]
	var delta int64
	switch reason {
	case "battle_win":
		delta = int64(rand.Intn(40) + 10)
	case "battle_loss":
		delta = -int64(rand.Intn(10) + 1)
	case "tournament":
		delta = int64(rand.Intn(400) + 100)
	default:
		delta = int64(rand.Intn(20) + 5)
	}
	return kafka.AwardEvent{UserID: userID, Delta: delta, Reason: reason, Source: "diamond-producer"}
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "clashsync-diamonds", "Kafka topic")
	users := flag.String("users", "", "User IDs to award (comma-separated); generated when empty")
	totalUsers := flag.Int("players", 100, "Number of generated user IDs")
	rate := flag.Int("rate", 50, "Awards per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ids := userIDs(*users, *totalUsers)
	if len(ids) == 0 || *rate <= 0 {
		logger.Error("need at least one user and a positive rate")
		os.Exit(1)
	}

	logger.Info("starting diamond producer",
		"brokers", *brokers,
		"topic", *topic,
		"users", len(ids),
		"rate", *rate,
	)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		logger.Error("failed to create producer", "error", err)
		os.Exit(1)
	}

	var sent, failed int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&sent, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&failed, 1)
			logger.Warn("producer error", "error", err)
		}
	}()

	shutdown := func(reason string) {
		logger.Info("shutting down", "reason", reason)
		producer.AsyncClose()
		wg.Wait()
		logger.Info("producer stopped", "sent", atomic.LoadInt64(&sent), "errors", atomic.LoadInt64(&failed))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	for {
		select {
		case <-sigChan:
			shutdown("signal")
			return

		case <-deadline:
			shutdown("duration reached")
			return

		case <-ticker.C:
			// a few top players see most of the action
			var idx int
			if len(ids) > 10 && rand.Intn(100) < 60 {
				idx = rand.Intn(10)
			} else {
				idx = rand.Intn(len(ids))
			}

			event := award(ids[idx])
			data, err := json.Marshal(event)
			if err != nil {
				logger.Warn("failed to marshal award", "error", err)
				continue
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(event.UserID),
				Value: sarama.ByteEncoder(data),
			}

		case <-statsTicker.C:
			logger.Info("progress", "sent", atomic.LoadInt64(&sent), "errors", atomic.LoadInt64(&failed))
		}
	}
}
