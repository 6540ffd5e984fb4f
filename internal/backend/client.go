package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ForceView/internal/model"
)

const apiPrefix = "/api/v1"

// Client talks to the extraction backend.
type Client struct {
	baseURL           string
	http              *http.Client
	disconnectTimeout time.Duration
	logger            zerolog.Logger
}

func NewClient(baseURL string, timeout, disconnectTimeout time.Duration, logger zerolog.Logger) *Client {
	if disconnectTimeout <= 0 {
		disconnectTimeout = 500 * time.Millisecond
	}
	return &Client{
		baseURL:           strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:              &http.Client{Timeout: timeout},
		disconnectTimeout: disconnectTimeout,
		logger:            logger,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

type call struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// failMsg is what the user sees when the call fails.
	failMsg string
}

// PageQuery selects one page of a server-sorted table.
type PageQuery struct {
	Page          int
	SortColumn    string
	SortDirection int
	SubcaseID     int
	IDs           []string
}

func (q PageQuery) values(withSubcase bool) url.Values {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	dir := q.SortDirection
	if dir == 0 {
		dir = 1
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("sortColumn", q.SortColumn)
	v.Set("sortDirection", strconv.Itoa(dir))
	if withSubcase && q.SubcaseID != 0 {
		v.Set("subcaseId", strconv.Itoa(q.SubcaseID))
	}
	return v
}

type RunRequest struct {
	FemFilename  string `json:"fem_filename"`
	MpcfFilename string `json:"mpcf_filename"`
	SpcfFilename string `json:"spcf_filename"`
}

type idsBody struct {
	IDs []string `json:"ids"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// do performs the request without reporting. Non-2xx answers become *StatusError.
func (c *Client) do(ctx context.Context, cl call) (*http.Response, error) {
	u := c.baseURL + apiPrefix + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, cl.body)
	if err != nil {
		return nil, err
	}
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", cl.method).Str("path", cl.path).Msg("backend request failed")
		return nil, err
	}
	c.logger.Debug().Str("method", cl.method).Str("path", cl.path).Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Method: cl.method, Path: apiPrefix + cl.path, Code: resp.StatusCode, Body: strings.TrimSpace(string(blob))}
	}
	return resp, nil
}

// safeFetch performs the request and reports any failure other than "not found".
// A nil response means the failure has already been reported.
func (c *Client) safeFetch(ctx context.Context, cl call) (*http.Response, error) {
	resp, err := c.do(ctx, cl)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}
	c.logger.Warn().Err(err).Str("method", cl.method).Str("path", cl.path).Msg("backend call failed")
	msg := cl.failMsg
	if msg == "" {
		msg = fmt.Sprintf("Error fetching %s%s using %s.", apiPrefix, cl.path, cl.method)
	}
	var se *StatusError
	if errors.As(err, &se) && se.Body != "" {
		msg = fmt.Sprintf("%s (%d: %s)", msg, se.Code, se.Body)
	}
	if r := reporterFrom(ctx); r != nil {
		r.Report(msg)
	}
	return nil, err
}

func (c *Client) getJSON(ctx context.Context, cl call, out any) error {
	resp, err := c.safeFetch(ctx, cl)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = fmt.Errorf("decode %s: %w", cl.path, err)
		if r := reporterFrom(ctx); r != nil && cl.failMsg != "" {
			r.Report(cl.failMsg)
		}
		return err
	}
	return nil
}

func jsonCall(method, path string, payload any, failMsg string) (call, error) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return call{}, err
	}
	return call{method: method, path: path, body: bytes.NewReader(blob), contentType: "application/json", failMsg: failMsg}, nil
}

func ids(list []string) idsBody {
	if list == nil {
		list = []string{}
	}
	return idsBody{IDs: list}
}

// Disconnect releases the backend database handle. It is bounded by the disconnect
// timeout and never reported to the user; callers decide what a failure means.
func (c *Client) Disconnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.disconnectTimeout)
	defer cancel()
	resp, err := c.do(ctx, call{method: http.MethodPost, path: "/disconnect-db"})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) UploadChunk(ctx context.Context, filename string, offset int64, chunk []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := mw.WriteField("filename", filename); err != nil {
		return err
	}
	if err := mw.WriteField("offset", strconv.FormatInt(offset, 10)); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	resp, err := c.safeFetch(ctx, call{
		method:      http.MethodPost,
		path:        "/upload-chunk",
		body:        &buf,
		contentType: mw.FormDataContentType(),
		failMsg:     fmt.Sprintf("Error uploading %s at offset %d.", filename, offset),
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) ImportDB(ctx context.Context, databaseFilename string) (string, error) {
	cl, err := jsonCall(http.MethodPost, "/import-db", map[string]string{"database_filename": databaseFilename}, "Error importing database.")
	if err != nil {
		return "", err
	}
	var out messageResponse
	if err := c.getJSON(ctx, cl, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) RunExtractor(ctx context.Context, req RunRequest) (string, error) {
	cl, err := jsonCall(http.MethodPost, "/run-extractor", req, "Error running extractor.")
	if err != nil {
		return "", err
	}
	var out messageResponse
	if err := c.getJSON(ctx, cl, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) OutputFolder(ctx context.Context) (string, error) {
	var out struct {
		OutputFolder string `json:"output_folder"`
	}
	if err := c.getJSON(ctx, call{method: http.MethodGet, path: "/get-output-folder", failMsg: "Error fetching output folder."}, &out); err != nil {
		return "", err
	}
	return out.OutputFolder, nil
}

func (c *Client) Subcases(ctx context.Context) ([]model.Subcase, error) {
	var out []model.Subcase
	err := c.getJSON(ctx, call{method: http.MethodGet, path: "/subcases", failMsg: "Error fetching Subcases."}, &out)
	return out, err
}

func (c *Client) AllNodes(ctx context.Context) ([]model.Node, error) {
	var out []model.Node
	err := c.getJSON(ctx, call{method: http.MethodGet, path: "/nodes/all", failMsg: "Error fetching Nodes."}, &out)
	return out, err
}

func (c *Client) Nodes(ctx context.Context, q PageQuery) ([]model.Node, error) {
	cl, err := jsonCall(http.MethodPost, "/nodes", ids(q.IDs), "Error fetching Nodes.")
	if err != nil {
		return nil, err
	}
	cl.query = q.values(true)
	var out []model.Node
	err = c.getJSON(ctx, cl, &out)
	return out, err
}

// FilterNodes returns every node matching ids, unpaginated.
func (c *Client) FilterNodes(ctx context.Context, list []string) ([]model.Node, error) {
	cl, err := jsonCall(http.MethodPost, "/nodes/filter", ids(list), "Error fetching Nodes.")
	if err != nil {
		return nil, err
	}
	var out []model.Node
	err = c.getJSON(ctx, cl, &out)
	return out, err
}

func (c *Client) SPCClusters(ctx context.Context) ([]model.SPCCluster, error) {
	var out []model.SPCCluster
	err := c.getJSON(ctx, call{method: http.MethodGet, path: "/spccluster", failMsg: "Error fetching SPC Clusters."}, &out)
	return out, err
}

func (c *Client) AllSPCs(ctx context.Context, list []string) ([]model.SPC, error) {
	cl, err := jsonCall(http.MethodPost, "/spcs/all", ids(list), "Error fetching SPCs.")
	if err != nil {
		return nil, err
	}
	var out []model.SPC
	err = c.getJSON(ctx, cl, &out)
	return out, err
}

func (c *Client) SPCs(ctx context.Context, q PageQuery) ([]model.SPC, error) {
	cl, err := jsonCall(http.MethodPost, "/spcs", ids(q.IDs), "Error fetching SPCs.")
	if err != nil {
		return nil, err
	}
	cl.query = q.values(false)
	var out []model.SPC
	err = c.getJSON(ctx, cl, &out)
	return out, err
}

func (c *Client) MPCs(ctx context.Context) ([]model.MPC, error) {
	var out []model.MPC
	err := c.getJSON(ctx, call{method: http.MethodGet, path: "/mpcs", failMsg: "Error fetching MPCs."}, &out)
	return out, err
}
