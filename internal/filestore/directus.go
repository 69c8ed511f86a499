// Package filestore uploads public assets (QR code images) to a
// Directus-style asset server. Authentication is either a static token or an
// email/password login with background token refresh.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"evpay/internal/services"
)

// refreshBuffer is subtracted from the token lifetime so a refresh lands
// before expiry.
const refreshBuffer = 500 * time.Millisecond

type Directus struct {
	URL      string
	Email    string
	Password string
	Folder   string
	HTTP     *http.Client

	mu           sync.Mutex
	token        string
	refreshToken string
	staticToken  bool
	timer        *time.Timer
}

var _ services.FileStore = (*Directus)(nil)

func NewDirectus(url, email, password, staticToken, folder string, timeout time.Duration) (*Directus, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	d := &Directus{
		URL:      url,
		Email:    email,
		Password: password,
		Folder:   folder,
		HTTP:     &http.Client{Timeout: timeout},
	}
	if staticToken != "" {
		d.token = staticToken
		d.staticToken = true
		return d, nil
	}
	// No credentials means anonymous access; uploads then rely on the
	// folder's public permissions.
	if email == "" {
		return d, nil
	}
	if err := d.login(); err != nil {
		return nil, err
	}
	return d, nil
}

type authData struct {
	Data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Expires      int64  `json:"expires"` // milliseconds
	} `json:"data"`
}

func (d *Directus) login() error {
	return d.authenticate("auth/login", map[string]string{
		"email":    d.Email,
		"password": d.Password,
	})
}

func (d *Directus) refresh() {
	d.mu.Lock()
	token := d.refreshToken
	d.mu.Unlock()

	err := d.authenticate("auth/refresh", map[string]string{
		"refresh_token": token,
		"mode":          "json",
	})
	if err != nil {
		// Refresh token no longer valid; fall back to a fresh login.
		_ = d.login()
	}
}

func (d *Directus) authenticate(endpoint string, payload map[string]string) error {
	raw, _ := json.Marshal(payload)
	resp, err := d.HTTP.Post(d.URL+"/"+endpoint, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("filestore %s: status %d", endpoint, resp.StatusCode)
	}
	var auth authData
	if err := json.Unmarshal(body, &auth); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.token = auth.Data.AccessToken
	d.refreshToken = auth.Data.RefreshToken
	if d.timer != nil {
		d.timer.Stop()
	}
	expiry := time.Duration(auth.Data.Expires)*time.Millisecond - refreshBuffer
	if expiry > 0 {
		d.timer = time.AfterFunc(expiry, d.refresh)
	}
	return nil
}

// Upload stores the file and returns its public asset URL. Access
// permissions on the configured folder make the asset publicly readable.
func (d *Directus) Upload(ctx context.Context, data []byte, mimeType, filename, title string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"filename_disk":     filename,
		"filename_download": filename,
		"title":             title,
		"type":              mimeType,
		"folder":            d.Folder,
	} {
		if err := w.WriteField(k, v); err != nil {
			return "", err
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL+"/files", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	d.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+d.token)
	d.mu.Unlock()

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("filestore upload: status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Data struct {
			Id string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/assets/%s", d.URL, out.Data.Id), nil
}
