package nfse

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarceloCBif/BuscaBoleto/internal/document"
	"github.com/MarceloCBif/BuscaBoleto/internal/errs"
	"github.com/MarceloCBif/BuscaBoleto/internal/metrics"
)

// FormatNumber zero-pads the digits of a document number to seventeen
// characters, the width the fiscal API expects. Returns "" when no
// digits remain.
func FormatNumber(number string) string {
	d := document.Digits(number)
	if d == "" {
		return ""
	}
	if len(d) >= 17 {
		return d
	}
	return strings.Repeat("0", 17-len(d)) + d
}

// RequestID builds the consultation ID: configured prefix plus the
// padded document number.
func (c *Client) RequestID(number string) (string, error) {
	n := FormatNumber(number)
	if n == "" {
		return "", errs.New(errs.Unknown, "invalid document number")
	}
	return c.cfg.IDPrefix + n, nil
}

// AccessKey resolves the access key for a document number. The request
// ID comes back alongside so callers can report which ID was consulted.
func (c *Client) AccessKey(ctx context.Context, number string) (key, requestID string, err error) {
	requestID, err = c.RequestID(number)
	if err != nil {
		return "", "", err
	}
	if c.cfg.EndpointDPS == "" {
		return "", requestID, errs.New(errs.Config, "request ID endpoint not configured")
	}

	var payload struct {
		AccessKey *string `json:"chaveAcesso"`
	}
	if err := c.getJSON(ctx, "access_key", c.cfg.EndpointDPS+requestID, &payload); err != nil {
		return "", requestID, err
	}
	if payload.AccessKey == nil || *payload.AccessKey == "" {
		return "", requestID, errs.New(errs.Decode, "field chaveAcesso missing from response")
	}
	return *payload.AccessKey, requestID, nil
}

// XML fetches and unpacks the document behind an access key.
func (c *Client) XML(ctx context.Context, accessKey string) (string, error) {
	if accessKey == "" {
		return "", errs.New(errs.Unknown, "access key not informed")
	}
	if c.cfg.EndpointKey == "" {
		return "", errs.New(errs.Config, "consultation endpoint not configured")
	}

	var payload struct {
		XMLGZipB64 *string `json:"nfseXmlGZipB64"`
	}
	if err := c.getJSON(ctx, "xml", c.cfg.EndpointKey+accessKey, &payload); err != nil {
		return "", err
	}
	if payload.XMLGZipB64 == nil {
		return "", errs.New(errs.Decode, "field nfseXmlGZipB64 missing from response")
	}
	return decodeGzipB64(*payload.XMLGZipB64)
}

// Info records how far a lookup went.
type Info struct {
	Number    string
	RequestID string
	AccessKey string
}

// Lookup chains the two consultation steps, stopping at the first
// failure. Info carries the identifiers resolved up to that point.
func (c *Client) Lookup(ctx context.Context, number string) (string, Info, error) {
	info := Info{Number: number}

	key, requestID, err := c.AccessKey(ctx, number)
	info.RequestID = requestID
	if err != nil {
		return "", info, err
	}
	info.AccessKey = key

	xml, err := c.XML(ctx, key)
	if err != nil {
		return "", info, err
	}
	return xml, info, nil
}

// SaveXML writes the document into the download directory as
// NFSe_<number>.xml and returns the path.
func (c *Client) SaveXML(xml, number string) (string, error) {
	if err := os.MkdirAll(c.cfg.DownloadDir, 0755); err != nil {
		return "", errs.Wrap(errs.Config, "create download dir "+c.cfg.DownloadDir, err)
	}
	dest := filepath.Join(c.cfg.DownloadDir, "NFSe_"+number+".xml")
	if err := os.WriteFile(dest, []byte(xml), 0644); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return "", errs.Wrap(errs.Permission, "save "+dest, err)
		}
		return "", errs.Wrap(errs.Unknown, "save "+dest, err)
	}
	return dest, nil
}

// LookupAndSave fetches the document and writes it in one move.
func (c *Client) LookupAndSave(ctx context.Context, number string) (string, Info, error) {
	xml, info, err := c.Lookup(ctx, number)
	if err != nil {
		return "", info, err
	}
	dest, err := c.SaveXML(xml, number)
	if err != nil {
		return "", info, err
	}
	return dest, info, nil
}

// PDF downloads the rendered document for an access key and writes it
// as NFSe_<number>.pdf. The response must look like a PDF through its
// content type or its magic bytes.
func (c *Client) PDF(ctx context.Context, accessKey, number string) (string, error) {
	if accessKey == "" {
		return "", errs.New(errs.Unknown, "access key not informed")
	}
	if c.cfg.EndpointPDF == "" {
		return "", errs.New(errs.Config, "PDF endpoint not configured")
	}

	body, contentType, err := c.get(ctx, "pdf", c.cfg.EndpointPDF+accessKey)
	if err != nil {
		return "", err
	}
	if !strings.Contains(contentType, "application/pdf") && !bytes.HasPrefix(body, []byte("%PDF")) {
		return "", errs.Newf(errs.Decode, "response is not a PDF (Content-Type %q)", contentType)
	}

	if err := os.MkdirAll(c.cfg.DownloadDir, 0755); err != nil {
		return "", errs.Wrap(errs.Config, "create download dir "+c.cfg.DownloadDir, err)
	}
	dest := filepath.Join(c.cfg.DownloadDir, "NFSe_"+number+".pdf")
	if err := os.WriteFile(dest, body, 0644); err != nil {
		return "", errs.Wrap(errs.Unknown, "save "+dest, err)
	}
	return dest, nil
}

func (c *Client) getJSON(ctx context.Context, step, url string, out any) error {
	body, _, err := c.get(ctx, step, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.Wrap(errs.Decode, "parse response from "+url, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, step, url string) ([]byte, string, error) {
	session, err := c.session()
	if err != nil {
		return nil, "", err
	}

	start := time.Now()
	body, contentType, err := doGet(ctx, session, url)
	status := "success"
	if err != nil {
		status = errs.KindOf(err).String()
	}
	metrics.RecordNFSeRequest(step, status, time.Since(start))
	return body, contentType, err
}

func doGet(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errs.Wrap(errs.Config, "build request for "+url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, "", errs.Wrap(errs.Connection, "timeout calling "+url, err)
		}
		return nil, "", errs.Wrap(errs.Connection, "call "+url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errs.Wrap(errs.Connection, "read response from "+url, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, resp.Header.Get("Content-Type"), nil
	case http.StatusNotFound:
		return nil, "", errs.New(errs.NotFound, "document not found at "+url)
	case http.StatusUnauthorized:
		return nil, "", errs.New(errs.Auth, "not authorized by "+url+", certificate invalid or expired")
	case http.StatusForbidden:
		return nil, "", errs.New(errs.Permission, "access denied by "+url)
	default:
		return nil, "", errs.Newf(errs.Unknown, "unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
}

// decodeGzipB64 unpacks the base64 wrapped gzip payload the fiscal API
// uses for XML documents.
func decodeGzipB64(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errs.Wrap(errs.Decode, "decode base64 payload", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", errs.Wrap(errs.Decode, "open gzip payload", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return "", errs.Wrap(errs.Decode, "unpack gzip payload", err)
	}
	if !utf8.Valid(data) {
		return "", errs.New(errs.Decode, "document is not valid UTF-8")
	}
	return string(data), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
