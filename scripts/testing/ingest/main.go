package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gear6io/slate/server"
	"github.com/gear6io/slate/server/config"
	"github.com/gear6io/slate/server/ingest"
	"github.com/gear6io/slate/server/replication"
	"github.com/gear6io/slate/utils"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
)

// segment is one synthetic WAL file the generator keeps appending to.
type segment struct {
	name string
	end  int64
}

func main() {
	var (
		configPath = flag.String("config", config.DEFAULT_CONFIG_FILE, "daemon configuration file")
		tableID    = flag.String("table", "4", "source table id to ingest into")
		segments   = flag.Int("segments", 4, "number of concurrently open segments")
		batches    = flag.Int("batches", 100, "ingest batches to write (0 = until interrupted)")
		interval   = flag.Duration("interval", 250*time.Millisecond, "delay between batches")
		closeOdds  = flag.Int("close-odds", 8, "1-in-N chance a batch closes its segment")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting replication ingest generator",
		zap.String("config", *configPath),
		zap.String("table", *tableID),
		zap.Int("segments", *segments))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Warn("Config file not found, using defaults", zap.Error(err))
		cfg = config.LoadDefaultConfig()
	}

	st, err := server.OpenStore(cfg, zerolog.Nop())
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Interrupt received, stopping generator")
		cancel()
	}()

	recorder := ingest.NewRecorder(st, zerolog.Nop())
	if err := recorder.EnsureCombiner(ctx); err != nil {
		logger.Fatal("Failed to install status combiner", zap.Error(err))
	}
	defer recorder.Close(context.Background())

	open := make([]*segment, 0, *segments)
	newSegment := func() *segment {
		return &segment{name: fmt.Sprintf("files/%s", utils.GenerateULIDString())}
	}
	for i := 0; i < *segments; i++ {
		open = append(open, newSegment())
	}

	written, closed := 0, 0
	for batch := 0; *batches == 0 || batch < *batches; batch++ {
		if ctx.Err() != nil {
			break
		}

		seg := open[rand.Intn(len(open))]
		seg.end += int64(rand.Intn(4096) + 256)

		status := replication.IngestedUntil(seg.end)
		if err := recorder.UpdateFiles(ctx, *tableID, []string{seg.name}, status); err != nil {
			logger.Error("Ingest update failed", zap.String("file", seg.name), zap.Error(err))
			break
		}
		written++

		if rand.Intn(*closeOdds) == 0 {
			closedStatus := replication.FileClosedAt(time.Now().UnixMilli())
			if err := recorder.UpdateFiles(ctx, *tableID, []string{seg.name}, closedStatus); err != nil {
				logger.Error("Close update failed", zap.String("file", seg.name), zap.Error(err))
				break
			}
			logger.Info("Closed segment", zap.String("file", seg.name), zap.Int64("bytes", seg.end))
			closed++

			for i, s := range open {
				if s == seg {
					open[i] = newSegment()
					break
				}
			}
		}

		select {
		case <-ctx.Done():
		case <-time.After(*interval):
		}
	}

	logger.Info("Generator finished",
		zap.Int("batches_written", written),
		zap.Int("segments_closed", closed))
}
