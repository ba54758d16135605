package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sitecheck/internal/config"
	"sitecheck/internal/directory"
	"sitecheck/internal/facematch"
	"sitecheck/internal/queue"
	"sitecheck/internal/store"
)

// The worker consumes enrollment jobs published by the API: whenever a
// worker's reference face photo changes, it fetches an embedding from the
// face service and caches it on the record so kiosk sessions don't have to
// embed every gallery image on demand.
func main() {
	cfg := config.Load()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		log.Println("warning: memory queue in worker only sees jobs published in-process")
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "sitecheck:jobs")
	}

	workers := directory.NewRepository(db.Client)
	faceClient := facematch.NewClient(cfg.FaceServiceURL, cfg.FaceSkip)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down worker...")
		cancel()
	}()

	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume failed: %v", err)
	}

	log.Println("enrollment worker started")
	for msg := range msgs {
		switch msg.Type {
		case queue.TypeEnroll:
			if err := enroll(ctx, workers, faceClient, string(msg.Body)); err != nil {
				log.Printf("enroll %s: %v", msg.Body, err)
			}
		case queue.TypeAttendance:
			// Attendance events are already committed by the API; the queue
			// copy exists for downstream consumers (exports, notifications).
			log.Printf("attendance event: %s", msg.Body)
		default:
			log.Printf("unknown message type %q", msg.Type)
		}
	}
	log.Println("worker exited")
}

func enroll(ctx context.Context, workers *directory.Repository, face *facematch.Client, workerID string) error {
	rec, err := workers.Get(ctx, workerID)
	if err != nil {
		return err
	}
	if rec == nil {
		log.Printf("enroll %s: worker no longer exists, skipping", workerID)
		return nil
	}
	if rec.FaceImageURL == "" {
		log.Printf("enroll %s: no reference image, skipping", workerID)
		return nil
	}

	res, err := face.EmbedURL(ctx, rec.FaceImageURL)
	if err != nil {
		return err
	}
	if res.FacesDetected != 1 {
		log.Printf("enroll %s: reference image has %d faces, want exactly 1; skipping", workerID, res.FacesDetected)
		return nil
	}

	if err := workers.UpdateEmbedding(ctx, workerID, res.Embedding); err != nil {
		return err
	}
	log.Printf("enrolled %s (%d-dim embedding)", workerID, len(res.Embedding))
	return nil
}
