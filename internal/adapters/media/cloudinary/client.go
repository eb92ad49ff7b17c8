package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/phenrril/teslostore/internal/domain"
)

const defaultBaseURL = "https://api.cloudinary.com/v1_1"

// uploadAttempts is how many times a single file is tried before the
// whole Upload call is failed. Nothing is ever silently dropped.
const uploadAttempts = 2

type Client struct {
	cloudName  string
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
}

type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// BaseURL overrides the Cloudinary endpoint, mainly for tests.
	BaseURL string
}

func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		cloudName:  cfg.CloudName,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResp struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

type deleteResp struct {
	Deleted map[string]string `json:"deleted"`
}

// Upload pushes every file into folder and returns one blob per file in
// input order. If any file still fails after its retries the whole call
// fails with domain.ErrUpload.
func (c *Client) Upload(ctx context.Context, files []domain.File, folder string) ([]domain.Blob, error) {
	blobs := make([]domain.Blob, 0, len(files))
	for _, f := range files {
		var (
			blob domain.Blob
			err  error
		)
		for attempt := 1; attempt <= uploadAttempts; attempt++ {
			blob, err = c.uploadOne(ctx, f, folder)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpload, f.Name, err)
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

func (c *Client) uploadOne(ctx context.Context, f domain.File, folder string) (domain.Blob, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("api_key", c.apiKey)
	_ = mw.WriteField("timestamp", ts)
	_ = mw.WriteField("folder", folder)
	_ = mw.WriteField("signature", c.sign("folder="+folder+"&timestamp="+ts))
	fw, err := mw.CreateFormFile("file", f.Name)
	if err != nil {
		return domain.Blob{}, err
	}
	if _, err := fw.Write(f.Content); err != nil {
		return domain.Blob{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.Blob{}, err
	}

	endpoint := fmt.Sprintf("%s/%s/image/upload", c.baseURL, c.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return domain.Blob{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Blob{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Blob{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Blob{}, fmt.Errorf("cloudinary upload status %d: %s", resp.StatusCode, string(raw))
	}
	var out uploadResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Blob{}, err
	}
	if out.PublicID == "" || out.SecureURL == "" {
		return domain.Blob{}, fmt.Errorf("cloudinary upload: incomplete response")
	}
	return domain.Blob{URL: out.SecureURL, ExternalID: out.PublicID}, nil
}

// Delete removes blobs by public id. Ids Cloudinary reports as
// not_found are treated as already deleted; only transport or API
// failures surface as domain.ErrDelete.
func (c *Client) Delete(ctx context.Context, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}
	params := url.Values{}
	for _, id := range externalIDs {
		params.Add("public_ids[]", id)
	}
	endpoint := fmt.Sprintf("%s/%s/resources/image/upload?%s", c.baseURL, c.cloudName, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelete, err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelete, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelete, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", domain.ErrDelete, resp.StatusCode, string(raw))
	}
	var out deleteResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelete, err)
	}
	return nil
}

func (c *Client) sign(params string) string {
	h := sha1.Sum([]byte(params + c.apiSecret))
	return hex.EncodeToString(h[:])
}
