package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rateadjuster/config"
	"rateadjuster/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FirebaseTwinRegistry keeps device twins in the Realtime Database as
// {twinsPath}/{deviceID} = {"desired": {...}} and uses RTDB ETags for concurrency.
type FirebaseTwinRegistry struct {
	client    *db.Client
	twinsPath string
	logger    *zap.Logger
}

type firebaseTwinDoc struct {
	Desired map[string]interface{} `json:"desired"`
}

func NewFirebaseTwinRegistry(cfg *config.Config, logger *zap.Logger) (*FirebaseTwinRegistry, error) {
	ctx := context.Background()

	// Parse the service account JSON from environment variable
	serviceAccountJSON := []byte(cfg.FirebaseSAJSON)

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON(serviceAccountJSON)
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fr := &FirebaseTwinRegistry{
		client:    client,
		twinsPath: strings.Trim(cfg.FirebaseTwinsPath, "/"),
		logger:    logger,
	}

	if err := fr.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fr, nil
}

// TwinsPath is the RTDB path holding twin documents.
func (fr *FirebaseTwinRegistry) TwinsPath() string {
	return fr.twinsPath
}

// testConnection tests Firebase connection with retry logic
func (fr *FirebaseTwinRegistry) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fr.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		var shallow interface{}
		err := fr.client.NewRef(fr.twinsPath).OrderByKey().LimitToFirst(1).Get(ctx, &shallow)
		if err == nil {
			fr.logger.Info("Firebase connection successful")
			return nil
		}

		fr.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

func (fr *FirebaseTwinRegistry) twinRef(deviceID string) *db.Ref {
	return fr.client.NewRef(fr.twinsPath).Child(deviceID)
}

// GetTwin reads the twin document and the ETag of its node.
func (fr *FirebaseTwinRegistry) GetTwin(ctx context.Context, deviceID string) (*models.Twin, error) {
	var doc *firebaseTwinDoc
	etag, err := fr.twinRef(deviceID).GetWithETag(ctx, &doc)
	if err != nil {
		return nil, fmt.Errorf("error reading twin %s: %w", deviceID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	twin := &models.Twin{
		DeviceID: deviceID,
		ETag:     etag,
		Desired:  doc.Desired,
	}
	if twin.Desired == nil {
		twin.Desired = map[string]interface{}{}
	}
	return twin, nil
}

// UpdateTwin merges patch into the stored desired properties and writes the
// node back with SetIfUnchanged, so any write since etag was issued wins.
func (fr *FirebaseTwinRegistry) UpdateTwin(ctx context.Context, deviceID string, patch map[string]interface{}, etag string) error {
	ref := fr.twinRef(deviceID)

	var doc map[string]interface{}
	current, err := ref.GetWithETag(ctx, &doc)
	if err != nil {
		return fmt.Errorf("error reading twin %s: %w", deviceID, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if current != etag {
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, deviceID)
	}

	desired, _ := doc["desired"].(map[string]interface{})
	if desired == nil {
		desired = map[string]interface{}{}
	}
	for k, v := range patch {
		desired[k] = v
	}
	doc["desired"] = desired

	ok, err := ref.SetIfUnchanged(ctx, etag, doc)
	if err != nil {
		return fmt.Errorf("error writing twin %s: %w", deviceID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, deviceID)
	}
	return nil
}

// ListProductionRates returns the ProductionRate of every twin under twinsPath.
// Twins without the property are reported with a nil value.
func (fr *FirebaseTwinRegistry) ListProductionRates(ctx context.Context) (map[string]interface{}, error) {
	var docs map[string]firebaseTwinDoc
	if err := fr.client.NewRef(fr.twinsPath).Get(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error listing twins: %w", err)
	}

	rates := make(map[string]interface{}, len(docs))
	for id, doc := range docs {
		rates[id] = doc.Desired[models.ProductionRateProperty]
	}
	return rates, nil
}
