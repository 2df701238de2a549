// Package ao talks to the message unit and compute unit over HTTP.
package ao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 4 << 20
)

type Options struct {
	MUURL      string
	CUURL      string
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

type Client struct {
	muURL  string
	cuURL  string
	http   *http.Client
	logger *logrus.Logger
}

func NewClient(opts Options) (*Client, error) {
	if opts.MUURL == "" || opts.CUURL == "" {
		return nil, fmt.Errorf("message unit and compute unit URLs are required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	return &Client{
		muURL:  strings.TrimRight(opts.MUURL, "/"),
		cuURL:  strings.TrimRight(opts.CUURL, "/"),
		http:   httpClient,
		logger: log,
	}, nil
}

// Submit posts a signed envelope to the message unit.
func (c *Client) Submit(ctx context.Context, env protocol.SignedEnvelope, target string) (protocol.Ack, error) {
	body, err := json.Marshal(protocol.Submission{Target: target, Envelope: env})
	if err != nil {
		return protocol.Ack{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.muURL+"/", bytes.NewReader(body))
	if err != nil {
		return protocol.Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return protocol.Ack{}, fmt.Errorf("submit to message unit: %w", err)
	}

	ack := protocol.Ack{
		ID:        gjson.GetBytes(data, "id").String(),
		Timestamp: gjson.GetBytes(data, "timestamp").Int(),
	}
	if ack.ID == "" {
		ack.ID = env.ID
	}
	c.logger.WithFields(logrus.Fields{"target": target, "id": ack.ID}).Debug("Envelope submitted")
	return ack, nil
}

// Results reads up to limit output messages of process after cursor.
func (c *Client) Results(ctx context.Context, process, cursor string, limit int) ([]protocol.Event, string, error) {
	q := url.Values{}
	q.Set("sort", "ASC")
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("from", cursor)
	}
	endpoint := c.cuURL + "/results/" + url.PathEscape(process) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, cursor, err
	}

	data, err := c.do(req)
	if err != nil {
		return nil, cursor, fmt.Errorf("read compute unit results: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, cursor, fmt.Errorf("compute unit returned invalid JSON")
	}

	events, next := parseResults(process, cursor, data)
	return events, next, nil
}

// parseResults flattens the messages of each result edge into events.
func parseResults(process, cursor string, data []byte) ([]protocol.Event, string) {
	var events []protocol.Event
	next := cursor

	gjson.GetBytes(data, "edges").ForEach(func(_, edge gjson.Result) bool {
		edgeCursor := edge.Get("cursor").String()
		edge.Get("node.Messages").ForEach(func(i, msg gjson.Result) bool {
			tags := map[string]string{}
			msg.Get("Tags").ForEach(func(_, tag gjson.Result) bool {
				tags[tag.Get("name").String()] = tag.Get("value").String()
				return true
			})

			events = append(events, protocol.Event{
				ID:        process + ":" + edgeCursor + ":" + i.String(),
				Action:    protocol.Action(tags[protocol.TagAction]),
				Reference: tags[protocol.TagReference],
				From:      process,
				Target:    msg.Get("Target").String(),
				Data:      []byte(msg.Get("Data").String()),
			})
			return true
		})
		if edgeCursor != "" {
			next = edgeCursor
		}
		return true
	})

	return events, next
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}
