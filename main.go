package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/kyc-engine/internal/detector"
	"github.com/example/kyc-engine/internal/face"
	"github.com/example/kyc-engine/internal/handlers"
	"github.com/example/kyc-engine/internal/logging"
	"github.com/example/kyc-engine/internal/ocr"
	"github.com/example/kyc-engine/internal/usecase"
)

func main() {
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("loading KYC models")

	detectorModel := getEnv("DETECTOR_MODEL_PATH", "models/yolov8n.onnx")
	det, err := detector.New(detectorModel)
	if err != nil {
		logger.Fatal("failed to load detection model", zap.Error(err), zap.String("path", detectorModel))
	}
	defer det.Close() //nolint:errcheck
	if err := det.Warmup(); err != nil {
		logger.Fatal("detector warmup failed", zap.Error(err))
	}

	faceModel := getEnv("FACE_MODEL_PATH", "models/arcface.onnx")
	verifier, err := face.NewVerifier(faceModel, os.Getenv("ONNXRUNTIME_LIB"))
	if err != nil {
		logger.Fatal("failed to load face model", zap.Error(err), zap.String("path", faceModel))
	}
	defer verifier.Close()

	langs := strings.Split(getEnv("OCR_LANGUAGES", "eng,urd"), ",")
	reader := ocr.NewReader(langs...)

	logger.Info("models loaded",
		zap.String("detector", detectorModel),
		zap.String("face", faceModel),
		zap.Strings("ocr_languages", reader.Languages()))

	uc := usecase.NewKYCUseCase(det, reader, verifier, logger)

	r := gin.Default()
	handlers.RegisterRoutes(r, uc)

	addr := ":" + getEnv("PORT", "7860")
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	logger.Info("KYC engine listening", zap.String("addr", addr))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
