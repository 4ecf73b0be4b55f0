// Command mpin-demo registers an identity, authenticates it and signs a
// document, prompting for the PIN on stdin. Without MPIN_URL it spins up
// an in-process platform, so the whole protocol can be exercised offline.
package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/mpin"
	"github.com/layer-3/mpin/adapters/events"
	"github.com/layer-3/mpin/adapters/store"
	"github.com/layer-3/mpin/mpintest"
)

func main() {
	ctx := context.Background()

	projectID := envOr("MPIN_PROJECT", "demo-project")
	userID := envOr("MPIN_USER", "demo@example.com")

	baseURL := os.Getenv("MPIN_URL")
	var platform *mpintest.Platform
	if baseURL == "" {
		var err error
		platform, err = mpintest.New()
		if err != nil {
			log.Fatalf("Failed to create platform: %v", err)
		}
		baseURL = platform.Start()
		defer platform.Close()
		log.Printf("Using in-process platform at %s", baseURL)
	}

	opts := []mpin.Option{
		mpin.WithBaseURL(baseURL),
		mpin.WithLogLevel("INFO"),
	}

	// Identities survive restarts when a store path is configured.
	if path := os.Getenv("MPIN_STORE"); path != "" {
		userStore, err := store.NewBoltStore(path)
		if err != nil {
			log.Fatalf("Failed to open user store: %v", err)
		}
		defer userStore.Close()
		opts = append(opts, mpin.WithUserStore(userStore))
	}

	// Lifecycle events go to a Redis stream when configured.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redis.NewClient(redisOpts)},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			log.Fatalf("Failed to create Redis publisher: %v", err)
		}
		opts = append(opts, mpin.WithEventPublisher(events.NewWatermillPublisher(publisher)))
	}

	client, err := mpin.New(projectID, opts...)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	activationToken := os.Getenv("MPIN_ACTIVATION_TOKEN")
	if activationToken == "" {
		if platform == nil {
			log.Fatal("MPIN_ACTIVATION_TOKEN is required when MPIN_URL is set")
		}
		activationToken = platform.CreateActivationToken(projectID, userID)
	}

	pin := stdinPin(bufio.NewReader(os.Stdin))

	user, err := client.Register(ctx, userID, activationToken, "", pin)
	if err != nil {
		log.Fatalf("Registration failed: %v", err)
	}
	fmt.Printf("Registered %s with a %d digit PIN\n", user.UserID, user.PinLength)

	token, err := client.Authenticate(ctx, user, pin)
	if err != nil {
		log.Fatalf("Authentication failed: %v", err)
	}
	fmt.Printf("Authenticated, JWT issued (%d bytes)\n", len(token))

	digest := sha256.Sum256([]byte("the demo document"))
	result, err := client.Sign(ctx, digest[:], user, pin)
	if err != nil {
		log.Fatalf("Signing failed: %v", err)
	}
	fmt.Printf("Signed the demo document at %s\n", result.Timestamp.Format(time.RFC3339))

	if platform != nil {
		fmt.Printf("Platform verified the signature: %v\n", platform.VerifySignature(&result.Signature))
	}
}

func stdinPin(r *bufio.Reader) mpin.PinProvider {
	return func(ctx context.Context) (string, error) {
		fmt.Print("Enter PIN: ")
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
