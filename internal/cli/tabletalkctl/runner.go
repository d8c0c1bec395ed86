package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type chatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type chatResponse struct {
	Answer string          `json:"answer"`
	Chart  json.RawMessage `json:"chart"`
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("tabletalkctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "tabletalk API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")
	limit := fs.Int("limit", 0, "row limit for the rows command")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	method := http.MethodGet
	path := ""
	var body []byte
	switch command {
	case "health":
		path = "/v1/health"
	case "ready":
		path = "/v1/ready"
	case "schema":
		path = "/v1/dataset/schema"
	case "rows":
		path = "/v1/dataset/rows"
		if *limit > 0 {
			path += "?" + url.Values{"limit": []string{strconv.Itoa(*limit)}}.Encode()
		}
	case "ask":
		question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		encoded, err := json.Marshal(map[string]any{"messages": []chatMessage{{Sender: "user", Text: question}}})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
			return 1
		}
		method, path, body = http.MethodPost, "/v1/chat", encoded
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if command == "ask" {
		return writeAnswer(stdout, stderr, responseBody)
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func writeAnswer(stdout, stderr io.Writer, raw []byte) int {
	var response chatResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		_, _ = fmt.Fprintf(stderr, "decode answer: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, response.Answer)
	chart := bytes.TrimSpace(response.Chart)
	if len(chart) > 0 && !bytes.Equal(chart, []byte("null")) {
		if pretty, ok := prettyJSON(chart); ok {
			_, _ = fmt.Fprintln(stdout, "chart:")
			_, _ = fmt.Fprintln(stdout, pretty)
		}
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: tabletalkctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health           GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready            GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema           GET /v1/dataset/schema")
	_, _ = fmt.Fprintln(w, "  rows             GET /v1/dataset/rows (use -limit)")
	_, _ = fmt.Fprintln(w, "  ask <question>   POST /v1/chat")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
