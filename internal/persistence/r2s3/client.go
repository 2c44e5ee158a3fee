package r2s3

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	sigV4Algorithm = "AWS4-HMAC-SHA256"
	sigV4Service   = "s3"
)

// ClientConfig addresses one bucket on an S3-compatible endpoint (R2 by
// default, which signs with region "auto").
type ClientConfig struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	HTTPTimeout     time.Duration
}

type Client struct {
	endpoint string
	bucket   string
	keyID    string
	secret   string
	region   string
	http     *http.Client

	now func() time.Time
}

func New(cfg ClientConfig) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	keyID := strings.TrimSpace(cfg.AccessKeyID)
	secret := strings.TrimSpace(cfg.SecretAccessKey)
	if endpoint == "" || bucket == "" || keyID == "" || secret == "" {
		return nil, fmt.Errorf("r2s3: endpoint, bucket, access key and secret key are required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("r2s3: parse endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("r2s3: invalid endpoint %q", endpoint)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "auto"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Client{
		endpoint: strings.TrimRight(u.String(), "/"),
		bucket:   bucket,
		keyID:    keyID,
		secret:   secret,
		region:   region,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}, nil
}

// PutFile uploads the file at localPath under objectKey. Scene files and
// log segments are small, so the body is read fully to hash it.
func (c *Client) PutFile(ctx context.Context, objectKey, localPath string) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return c.Put(ctx, objectKey, b, contentTypeFor(localPath))
}

// Put uploads body under objectKey with a SigV4-signed request.
func (c *Client) Put(ctx context.Context, objectKey string, body []byte, contentType string) error {
	key := normalizeObjectKey(objectKey)
	if key == "" {
		return fmt.Errorf("r2s3: bad object key %q", objectKey)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := c.now().UTC()
	amzDate := now.Format("20060102T150405Z")
	payloadHash := sha256Hex(body)
	canonicalURI := "/" + c.bucket + "/" + escapePath(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+canonicalURI, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("Authorization", c.authorization(req.URL.Host, canonicalURI, payloadHash, now))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return fmt.Errorf("r2s3: put %s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func (c *Client) authorization(host, canonicalURI, payloadHash string, now time.Time) string {
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	const signedHeaders = "host;x-amz-content-sha256;x-amz-date"
	canonicalRequest := strings.Join([]string{
		http.MethodPut,
		canonicalURI,
		"",
		"host:" + host + "\nx-amz-content-sha256:" + payloadHash + "\nx-amz-date:" + amzDate + "\n",
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := dateStamp + "/" + c.region + "/" + sigV4Service + "/aws4_request"
	stringToSign := strings.Join([]string{sigV4Algorithm, amzDate, scope, sha256Hex([]byte(canonicalRequest))}, "\n")

	key := hmacSHA256([]byte("AWS4"+c.secret), []byte(dateStamp))
	key = hmacSHA256(key, []byte(c.region))
	key = hmacSHA256(key, []byte(sigV4Service))
	key = hmacSHA256(key, []byte("aws4_request"))
	sig := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s", sigV4Algorithm, c.keyID, scope, signedHeaders, sig)
}

func contentTypeFor(p string) string {
	switch {
	case strings.HasSuffix(p, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(p, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return ""
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || clean == "." {
		return ""
	}
	return clean
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(nil)
}
