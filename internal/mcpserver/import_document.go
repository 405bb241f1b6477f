package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const maxDocumentSize = 100 << 20 // 100 MB

var (
	allowedExtensions = map[string]bool{
		".pdf": true, ".epub": true, ".docx": true,
		".md": true, ".markdown": true, ".txt": true,
	}

	mimeToExt = map[string]string{
		"application/pdf":      ".pdf",
		"application/epub+zip": ".epub",
		"text/markdown":        ".md",
		"text/plain":           ".txt",

		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

type importResult struct {
	Path string `json:"path"`
	Size int    `json:"size"`
}

func (s *Server) importDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename := optString(req, "filename")

	var data []byte
	var detectedExt string
	if strings.HasPrefix(rawURL, "data:") {
		data, detectedExt, err = decodeDataURI(rawURL)
	} else {
		data, detectedExt, err = fetchHTTP(rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxDocumentSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxDocumentSize)), nil
	}

	if filename == "" {
		filename = filenameFromURL(rawURL, detectedExt)
	}
	filename = sanitizeFilename(filename)

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported file extension: %s (allowed: pdf, epub, docx, md, txt)", ext)), nil
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := os.MkdirAll(s.library, 0o755); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create library dir: %v", err)), nil
	}
	dst, err := filepath.Abs(filepath.Join(s.library, filename))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return mcp.NewToolResultError(fmt.Sprintf("file already exists: %s", dst)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to save document: %v", err)), nil
	}
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(dst)
		return mcp.NewToolResultError(fmt.Sprintf("failed to save document: %v", werr)), nil
	}

	out, _ := json.Marshal(importResult{Path: dst, Size: len(data)})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mime]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mime)
	}
	return data, ext, nil
}

// fetchHTTP downloads a file from an HTTP/HTTPS URL with security checks.
func fetchHTTP(rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 60 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	resp, err := client.Get(rawURL) //nolint:noctx
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, "", fmt.Errorf("file too large: exceeds %d bytes", maxDocumentSize)
	}

	ct := resp.Header.Get("Content-Type")
	return data, mimeToExt[strings.Split(ct, ";")[0]], nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// filenameFromURL tries to extract a filename from a URL, falling back to UUID.
func filenameFromURL(rawURL string, fallbackExt string) string {
	ext := fallbackExt
	if ext == "" {
		ext = ".bin"
	}
	if strings.HasPrefix(rawURL, "data:") {
		return uuid.New().String() + ext
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		base := path.Base(parsed.Path)
		if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
			return base
		}
	}
	return uuid.New().String() + ext
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = uuid.New().String()
	}
	return name
}

// validateMagicBytes verifies file content matches the declared extension.
// EPUB and DOCX are both zip containers.
func validateMagicBytes(data []byte, ext string) error {
	detected := strings.Split(http.DetectContentType(data), ";")[0]
	var ok bool
	switch ext {
	case ".pdf":
		ok = detected == "application/pdf"
	case ".epub", ".docx":
		ok = detected == "application/zip"
	default:
		ok = strings.HasPrefix(detected, "text/")
	}
	if !ok {
		return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
	}
	return nil
}
