package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sitecheck/internal/auth"
	"sitecheck/internal/badge"
	"sitecheck/internal/cloudinary"
	"sitecheck/internal/config"
	"sitecheck/internal/directory"
	"sitecheck/internal/facematch"
	"sitecheck/internal/frame"
	"sitecheck/internal/httpmiddleware"
	"sitecheck/internal/pipeline"
	"sitecheck/internal/ppe"
	"sitecheck/internal/qrscan"
	"sitecheck/internal/queue"
	"sitecheck/internal/recorder"
	"sitecheck/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if db == nil {
		return err
	}
	if err != nil {
		// Keep serving /healthz and /metrics while the DB comes up.
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "sitecheck:jobs")
	}

	workers := directory.NewRepository(db.Client)
	attendance := recorder.New(db.Client, workers, q)

	faceClient := facematch.NewClient(cfg.FaceServiceURL, cfg.FaceSkip)
	ppeClient := ppe.NewClient(cfg.PPEServiceURL)
	decoder := qrscan.NewDecoder()

	// Cloudinary client (nil when not configured)
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	sessions := pipeline.NewManager(func() *pipeline.Pipeline {
		return pipeline.New(pipeline.Config{
			PollInterval:     cfg.PollInterval,
			NotFoundCooldown: cfg.NotFoundCooldown,
			FaceStageTimeout: cfg.FaceStageTimeout,
			RequiredPPE:      cfg.RequiredPPE,
		}, decoder, facematch.NewMatcher(faceClient, workers), ppeClient, workers, attendance)
	})

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(corsMiddleware())

	// Security headers
	r.Use(securityHeaders())

	// Rate limiting
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		redisHealthy := redisClient.Healthy(ctx)
		dbHealthy := db.Client.PingContext(ctx) == nil
		ppeHealthy := ppeClient.Status(ctx) == nil
		faceHealthy := faceClient.Health(ctx) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status": "ok",
			"redis":  redisHealthy,
			"db":     dbHealthy,
			"ppe":    ppeHealthy,
			"face":   faceHealthy,
		})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := workers.UpsertDevice(c.Request.Context(), req.DeviceID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.DeviceID, "kiosk", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// ---- Admin worker CRUD ----

	r.GET("/v1/workers", func(c *gin.Context) {
		recs, err := workers.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"workers": recs})
	})

	r.GET("/v1/workers/:id", func(c *gin.Context) {
		rec, err := workers.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	// Create or update a worker. Multipart form: worker_id, name, post and an
	// optional face image file. The QR badge is (re)generated every time.
	upsertWorker := func(c *gin.Context, workerID string) {
		name := c.PostForm("name")
		post := c.PostForm("post")
		if workerID == "" || name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id and name required"})
			return
		}
		ctx := c.Request.Context()

		rec := directory.WorkerRecord{WorkerID: workerID, Name: name, Post: post}

		if cdnClient != nil {
			badgePNG, err := badge.EncodePNG(workerID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			badgeRes, err := cdnClient.UploadBadge(workerID, badgePNG)
			if err != nil {
				log.Printf("badge upload failed for %s: %v", workerID, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "badge upload failed"})
				return
			}
			rec.QRCodeURL = badgeRes.SecureURL
		}

		var faceUploaded bool
		if file, _, err := c.Request.FormFile("face"); err == nil {
			defer file.Close()
			data, rerr := io.ReadAll(file)
			if rerr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read face image failed"})
				return
			}
			if cdnClient == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
				return
			}
			faceRes, uerr := cdnClient.UploadFaceImage(workerID, data)
			if uerr != nil {
				log.Printf("face upload failed for %s: %v", workerID, uerr)
				c.JSON(http.StatusBadGateway, gin.H{"error": "face image upload failed"})
				return
			}
			rec.FaceImageURL = faceRes.SecureURL
			faceUploaded = true
		}

		if err := workers.Upsert(ctx, rec); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if faceUploaded {
			// Fresh reference image: invalidate the cached embedding and let
			// the enrollment worker recompute it.
			if err := workers.UpdateFaceImage(ctx, workerID, rec.FaceImageURL); err != nil {
				log.Printf("face url update failed for %s: %v", workerID, err)
			}
			if err := q.Publish(ctx, queue.Message{Type: queue.TypeEnroll, Body: []byte(workerID)}); err != nil {
				log.Printf("enroll publish failed for %s: %v", workerID, err)
			}
		}

		saved, err := workers.Get(ctx, workerID)
		if err != nil || saved == nil {
			c.JSON(http.StatusOK, rec)
			return
		}
		c.JSON(http.StatusOK, saved)
	}

	r.POST("/v1/workers", func(c *gin.Context) {
		upsertWorker(c, c.PostForm("worker_id"))
	})

	r.PUT("/v1/workers/:id", func(c *gin.Context) {
		upsertWorker(c, c.Param("id"))
	})

	// Face-only update: replaces the reference image without touching the
	// rest of the record.
	r.PUT("/v1/workers/:id/face", func(c *gin.Context) {
		workerID := c.Param("id")
		ctx := c.Request.Context()

		rec, err := workers.Get(ctx, workerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "worker not found"})
			return
		}
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}

		file, _, err := c.Request.FormFile("face")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "face file required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read face image failed"})
			return
		}

		faceRes, err := cdnClient.UploadFaceImage(workerID, data)
		if err != nil {
			log.Printf("face upload failed for %s: %v", workerID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "face image upload failed"})
			return
		}
		if err := workers.UpdateFaceImage(ctx, workerID, faceRes.SecureURL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := q.Publish(ctx, queue.Message{Type: queue.TypeEnroll, Body: []byte(workerID)}); err != nil {
			log.Printf("enroll publish failed for %s: %v", workerID, err)
		}

		c.JSON(http.StatusOK, gin.H{"worker_id": workerID, "face_image_url": faceRes.SecureURL})
	})

	r.DELETE("/v1/workers/:id", func(c *gin.Context) {
		workerID := c.Param("id")
		ctx := c.Request.Context()

		// Blob cleanup is best-effort: a missing image should not block
		// removing the record.
		if cdnClient != nil {
			if err := cdnClient.Destroy(cloudinary.FacePublicID(workerID)); err != nil {
				log.Printf("face image delete for %s: %v", workerID, err)
			}
			if err := cdnClient.Destroy(cloudinary.BadgePublicID(workerID)); err != nil {
				log.Printf("badge delete for %s: %v", workerID, err)
			}
		}

		if err := workers.Delete(ctx, workerID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": workerID})
	})

	// ---- Attendance reporting ----

	r.GET("/v1/attendance", func(c *gin.Context) {
		var compliant *bool
		if v := c.Query("compliant"); v != "" {
			parsed := v == "true" || v == "1"
			compliant = &parsed
		}
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		events, err := attendance.List(c.Request.Context(), c.Query("worker_id"), compliant, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	// ---- Kiosk sessions (device auth) ----

	authGroup := r.Group("/v1/sessions", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/:stream/start", func(c *gin.Context) {
		p := sessions.Start(c.Param("stream"))
		c.JSON(http.StatusOK, p.Snapshot())
	})

	authGroup.POST("/:stream/reset", func(c *gin.Context) {
		if !sessions.Reset(c.Param("stream")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session for stream"})
			return
		}
		p, _ := sessions.Get(c.Param("stream"))
		c.JSON(http.StatusOK, p.Snapshot())
	})

	authGroup.GET("/:stream", func(c *gin.Context) {
		p, ok := sessions.Get(c.Param("stream"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session for stream"})
			return
		}
		c.JSON(http.StatusOK, p.Snapshot())
	})

	// One captured frame, multipart "frame" file or raw image body.
	authGroup.POST("/:stream/frames", func(c *gin.Context) {
		p, ok := sessions.Get(c.Param("stream"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no session for stream; call start first"})
			return
		}

		var data []byte
		if file, _, err := c.Request.FormFile("frame"); err == nil {
			defer file.Close()
			data, err = io.ReadAll(file)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read frame failed"})
				return
			}
		} else {
			data, err = io.ReadAll(c.Request.Body)
			if err != nil || len(data) == 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "frame image required"})
				return
			}
		}

		f, err := frame.Decode(data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "undecodable frame"})
			return
		}
		if err := p.OnFrame(c.Request.Context(), f); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, p.Snapshot())
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
