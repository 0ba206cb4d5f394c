// Command loadtest drives a running server: it signs up users, puts them in
// one room, connects them all over WebSocket and has each send messages,
// then reports what came back.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/chatrooms/internal/logging"
	"github.com/johndosdos/chatrooms/internal/model"
)

const maxRetries = 10

type options struct {
	URL      string        `envconfig:"URL" default:"http://localhost:8080"`
	Users    int           `envconfig:"USERS" default:"10"`
	Messages int           `envconfig:"MESSAGES" default:"20"`
	Settle   time.Duration `envconfig:"SETTLE" default:"2s"`
}

type user struct {
	name  string
	token string
}

type frame struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type counters struct {
	acks       atomic.Int64
	broadcasts atomic.Int64
	errors     atomic.Int64
}

func main() {
	logging.Setup(os.Stdout, "info")

	var opts options
	if err := envconfig.Process("loadtest", &opts); err != nil {
		slog.Error("invalid options", "error", err)
		os.Exit(1)
	}

	if err := run(context.Background(), opts); err != nil {
		slog.Error("load test failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	client := &http.Client{Timeout: 10 * time.Second}
	base := strings.TrimRight(opts.URL, "/")

	users := make([]user, opts.Users)
	for i := range users {
		name := "lt" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		token, err := signup(ctx, client, base, name)
		if err != nil {
			return err
		}
		users[i] = user{name: name, token: token}
	}

	var room model.ChatRoom
	if err := call(ctx, client, http.MethodPost, base+"/chats", users[0].token,
		map[string]any{"name": "loadtest", "isGroup": true}, &room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	for _, u := range users[1:] {
		path := base + "/chats/" + strconv.FormatInt(room.ID, 10) + "/participants"
		if err := call(ctx, client, http.MethodPost, path, u.token, nil, nil); err != nil {
			return fmt.Errorf("join room as %s: %w", u.name, err)
		}
	}

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conns := make([]*websocket.Conn, len(users))
	for i, u := range users {
		c, _, err := websocket.Dial(ctx, wsURL+"?token="+u.token, nil)
		if err != nil {
			return fmt.Errorf("dial as %s: %w", u.name, err)
		}
		defer c.CloseNow() //nolint:errcheck
		conns[i] = c
	}

	var stats counters
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	var readers errgroup.Group
	for _, c := range conns {
		readers.Go(func() error {
			readFrames(readCtx, c, &stats)
			return nil
		})
	}

	start := time.Now()

	writers, wctx := errgroup.WithContext(ctx)
	for i, c := range conns {
		writers.Go(func() error {
			for n := range opts.Messages {
				p, _ := json.Marshal(map[string]any{
					"chatRoomId": room.ID,
					"message":    fmt.Sprintf("message %d from %s", n, users[i].name),
				})
				if err := c.Write(wctx, websocket.MessageText, p); err != nil {
					return fmt.Errorf("write as %s: %w", users[i].name, err)
				}
			}
			return nil
		})
	}
	if err := writers.Wait(); err != nil {
		return err
	}

	time.Sleep(opts.Settle)
	stopReading()
	_ = readers.Wait()

	sent := int64(opts.Users * opts.Messages)
	slog.Info("load test finished",
		"users", opts.Users,
		"sent", sent,
		"acks", stats.acks.Load(),
		"broadcasts", stats.broadcasts.Load(),
		"expected_broadcasts", sent*int64(opts.Users-1),
		"errors", stats.errors.Load(),
		"elapsed", time.Since(start).String())

	return nil
}

func readFrames(ctx context.Context, c *websocket.Conn, stats *counters) {
	for {
		_, p, err := c.Read(ctx)
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(p, &f); err != nil {
			stats.errors.Add(1)
			continue
		}

		switch f.Type {
		case "ack":
			stats.acks.Add(1)
		case "error":
			stats.errors.Add(1)
			slog.Warn("server reported error", "code", f.Code)
		default:
			stats.broadcasts.Add(1)
		}
	}
}

func signup(ctx context.Context, client *http.Client, base, name string) (string, error) {
	creds := map[string]string{"username": name, "password": "loadtest-password"}

	if err := call(ctx, client, http.MethodPost, base+"/auth/register", "", creds, nil); err != nil {
		return "", fmt.Errorf("register %s: %w", name, err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := call(ctx, client, http.MethodPost, base+"/auth/login", "", creds, &tok); err != nil {
		return "", fmt.Errorf("login %s: %w", name, err)
	}

	return tok.AccessToken, nil
}

// call sends a JSON request and decodes the JSON answer into out. Auth
// routes are rate limited per IP, so 429s are retried after Retry-After.
func call(ctx context.Context, client *http.Client, method, url, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		res, err := client.Do(req)
		if err != nil {
			return err
		}

		if res.StatusCode == http.StatusTooManyRequests && attempt < maxRetries {
			res.Body.Close()
			wait, _ := strconv.Atoi(res.Header.Get("Retry-After"))
			slog.Info("rate limited; backing off", "url", url, "seconds", max(wait, 1))
			time.Sleep(time.Duration(max(wait, 1)) * time.Second)
			continue
		}

		return decode(res, method, url, out)
	}
}

func decode(res *http.Response, method, url string, out any) error {
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: status %d", method, url, res.StatusCode)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(res.Body).Decode(out)
}
