package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rateadjuster/models"

	"go.uber.org/zap"
)

const (
	iotHubAPIVersion = "2021-04-12"
	sasTokenTTL      = time.Hour
)

// IoTHubConnection holds the parts of an IoT Hub service connection string.
type IoTHubConnection struct {
	HostName            string
	SharedAccessKeyName string
	SharedAccessKey     string
}

// ParseIoTHubConnection parses "HostName=...;SharedAccessKeyName=...;SharedAccessKey=...".
func ParseIoTHubConnection(connectionString string) (*IoTHubConnection, error) {
	conn := &IoTHubConnection{}
	for _, part := range strings.Split(connectionString, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid connection string segment %q", part)
		}
		switch key {
		case "HostName":
			conn.HostName = value
		case "SharedAccessKeyName":
			conn.SharedAccessKeyName = value
		case "SharedAccessKey":
			conn.SharedAccessKey = value
		}
	}

	if conn.HostName == "" || conn.SharedAccessKeyName == "" || conn.SharedAccessKey == "" {
		return nil, errors.New("connection string must contain HostName, SharedAccessKeyName and SharedAccessKey")
	}
	if _, err := base64.StdEncoding.DecodeString(conn.SharedAccessKey); err != nil {
		return nil, fmt.Errorf("SharedAccessKey is not valid base64: %w", err)
	}
	return conn, nil
}

// SASToken builds a shared access signature for the hub, valid until expiry.
func (c *IoTHubConnection) SASToken(expiry time.Time) (string, error) {
	key, err := base64.StdEncoding.DecodeString(c.SharedAccessKey)
	if err != nil {
		return "", fmt.Errorf("decode shared access key: %w", err)
	}

	resource := url.QueryEscape(strings.ToLower(c.HostName))
	se := strconv.FormatInt(expiry.Unix(), 10)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(resource + "\n" + se))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%s&skn=%s",
		resource, url.QueryEscape(sig), se, url.QueryEscape(c.SharedAccessKeyName)), nil
}

// IoTHubRegistry talks to the IoT Hub twin REST API.
type IoTHubRegistry struct {
	conn       *IoTHubConnection
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

type iotHubTwin struct {
	DeviceID   string `json:"deviceId"`
	ETag       string `json:"etag"`
	Properties struct {
		Desired map[string]interface{} `json:"desired"`
	} `json:"properties"`
}

// NewIoTHubRegistry creates a registry client from a service connection string.
func NewIoTHubRegistry(connectionString string, logger *zap.Logger) (*IoTHubRegistry, error) {
	conn, err := ParseIoTHubConnection(connectionString)
	if err != nil {
		return nil, err
	}
	return &IoTHubRegistry{
		conn:    conn,
		baseURL: "https://" + conn.HostName,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
		now:    time.Now,
	}, nil
}

// GetTwin fetches the twin of deviceID.
func (r *IoTHubRegistry) GetTwin(ctx context.Context, deviceID string) (*models.Twin, error) {
	resp, err := r.do(ctx, http.MethodGet, deviceID, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkTwinResponse(resp, deviceID); err != nil {
		return nil, err
	}

	var body iotHubTwin
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode twin %s: %w", deviceID, err)
	}

	twin := &models.Twin{
		DeviceID: deviceID,
		ETag:     body.ETag,
		Desired:  body.Properties.Desired,
	}
	if twin.Desired == nil {
		twin.Desired = map[string]interface{}{}
	}
	return twin, nil
}

// UpdateTwin PATCHes the desired properties guarded by If-Match.
func (r *IoTHubRegistry) UpdateTwin(ctx context.Context, deviceID string, patch map[string]interface{}, etag string) error {
	payload := map[string]interface{}{
		"properties": map[string]interface{}{
			"desired": patch,
		},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal twin patch: %w", err)
	}

	resp, err := r.do(ctx, http.MethodPatch, deviceID, jsonData, etag)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkTwinResponse(resp, deviceID)
}

func (r *IoTHubRegistry) do(ctx context.Context, method, deviceID string, body []byte, etag string) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/twins/%s?api-version=%s", r.baseURL, url.PathEscape(deviceID), iotHubAPIVersion)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := r.conn.SASToken(r.now().Add(sasTokenTTL))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "production-rate-adjuster/1.0")
	if etag != "" {
		req.Header.Set("If-Match", quoteETag(etag))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Error("IoT Hub request failed",
			zap.String("method", method),
			zap.String("device_id", deviceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func checkTwinResponse(resp *http.Response, deviceID string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, strings.TrimSpace(string(msg)))
	default:
		return fmt.Errorf("IoT Hub API error: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}
