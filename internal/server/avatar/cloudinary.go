package avatar

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/netx"
)

const avatarTransformation = "c_fill,h_250,w_250"

// CloudinaryStore uploads avatars through Cloudinary's signed upload API.
type CloudinaryStore struct {
	apiKey     string
	apiSecret  string
	uploadURL  string
	httpClient *http.Client
	now        func() time.Time
}

type cloudinaryUploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewCloudinaryStore parses a cloudinary://<key>:<secret>@<cloud> URL.
// A nil client gets a 20 second timeout.
func NewCloudinaryStore(rawURL string, client *http.Client) (*CloudinaryStore, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}

	if parsed.Scheme != "cloudinary" {
		return nil, fmt.Errorf("invalid cloudinary scheme")
	}

	apiKey := parsed.User.Username()
	apiSecret, ok := parsed.User.Password()
	if !ok {
		return nil, fmt.Errorf("missing cloudinary api secret")
	}
	cloudName := parsed.Hostname()
	if apiKey == "" || apiSecret == "" || cloudName == "" {
		return nil, fmt.Errorf("invalid cloudinary credentials")
	}

	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	return &CloudinaryStore{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		uploadURL:  fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cloudName),
		httpClient: client,
		now:        time.Now,
	}, nil
}

func (c *CloudinaryStore) Store(ctx context.Context, userID, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}

	params := map[string]string{
		"public_id":      objectKey(userID),
		"overwrite":      "true",
		"transformation": avatarTransformation,
		"timestamp":      strconv.FormatInt(c.now().Unix(), 10),
	}
	fields := map[string]string{
		"api_key":   c.apiKey,
		"signature": c.sign(params),
	}
	for k, v := range params {
		fields[k] = v
	}

	body, err := netx.PostMultipart(ctx, c.httpClient, c.uploadURL, fields, netx.FilePart{
		Field:       "file",
		Filename:    userID,
		ContentType: contentType,
		Data:        data,
	})

	var statusErr *netx.StatusError
	if errors.As(err, &statusErr) {
		var parsed cloudinaryUploadResponse
		if json.Unmarshal(statusErr.Body, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("cloudinary upload failed: %s: %w", parsed.Error.Message, err)
		}
	}
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}

	var parsed cloudinaryUploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode cloudinary response: %w", err)
	}
	if parsed.SecureURL == "" {
		return "", fmt.Errorf("cloudinary response missing secure_url")
	}
	return parsed.SecureURL, nil
}

// sign computes the API signature: SHA-1 over the alphabetically sorted
// k=v pairs joined by '&', followed by the secret.
func (c *CloudinaryStore) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	h := sha1.New() // #nosec G401: cloudinary API signature requires SHA-1.
	_, _ = h.Write([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}
