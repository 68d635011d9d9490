// Package main provides a CI-friendly smoke test for a running justice server.
//
// It validates:
//   - register (or login) of two accounts with cookie sessions
//   - WebSocket handshake, subprotocol selection and hello/hello_ack
//   - chat creation pushes a "chat" frame to the other member
//   - message send pushes a "message" frame to the other member
//   - history fetch over HTTP
//   - ping/pong
//
// A summary table is printed at the end; any failed step exits 1.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	v1 "justice/shared/contracts/realtime/v1"
)

const maxReadBytes = 1 << 20 // 1MiB

var (
	styleOK   = color.New(color.FgGreen, color.OpBold)
	styleFail = color.New(color.FgRed, color.OpBold)
	styleHead = color.New(color.FgCyan, color.OpBold)
)

type step struct {
	name   string
	took   time.Duration
	detail string
	err    error
}

type report struct {
	steps []step
}

// run executes fn as a named step. Later steps are skipped after a failure.
func (r *report) run(name string, fn func() (string, error)) {
	if r.failed() {
		r.steps = append(r.steps, step{name: name, err: errSkipped})
		return
	}
	start := time.Now()
	detail, err := fn()
	r.steps = append(r.steps, step{name: name, took: time.Since(start), detail: detail, err: err})
}

var errSkipped = errors.New("skipped")

func (r *report) failed() bool {
	for _, s := range r.steps {
		if s.err != nil && !errors.Is(s.err, errSkipped) {
			return true
		}
	}
	return false
}

func (r *report) render(w io.Writer) {
	fmt.Fprintln(w, styleHead.Render("justice smoke"))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Result", "Took", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, s := range r.steps {
		result, detail := styleOK.Render("ok"), s.detail
		switch {
		case errors.Is(s.err, errSkipped):
			result = "skip"
		case s.err != nil:
			result, detail = styleFail.Render("FAIL"), s.err.Error()
		}
		table.Append([]string{s.name, result, s.took.Round(time.Millisecond).String(), detail})
	}
	table.Render()
}

type account struct {
	name string
	id   int64
	http *http.Client
}

type wsClient struct {
	conn  *websocket.Conn
	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		base    = flag.String("base", "http://127.0.0.1:8080", "Server base URL")
		origin  = flag.String("origin", "", "Origin header for the WebSocket handshake (empty sends none)")
		pass    = flag.String("password", "smoke-test-password", "Password for the smoke accounts")
		text    = flag.String("text", "hello justice 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
	)
	flag.Parse()

	if err := validateBaseURL(*base); err != nil {
		fatalf("invalid -base: %v", err)
	}
	baseURL := strings.TrimRight(*base, "/")
	root := context.Background()
	suffix := strconv.FormatInt(time.Now().UnixNano()%1_000_000, 36)

	var (
		r      report
		a, b   *account
		ws     *wsClient
		chatID int64
		msgID  int64
	)

	r.run("register A", func() (string, error) {
		var err error
		a, err = signIn(root, baseURL, "smoke_a_"+suffix, *pass, *timeout)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("user_id=%d", a.id), nil
	})
	r.run("register B", func() (string, error) {
		var err error
		b, err = signIn(root, baseURL, "smoke_b_"+suffix, *pass, *timeout)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("user_id=%d", b.id), nil
	})
	r.run("ws connect B", func() (string, error) {
		var err error
		ws, err = connect(root, baseURL, *origin, b, *timeout)
		if err != nil {
			return "", err
		}
		return "subprotocol=" + ws.conn.Subprotocol(), nil
	})
	r.run("ws hello", func() (string, error) {
		if err := ws.write(root, v1.Envelope{V: v1.Version, Type: v1.TypeHello, ID: "b-hello", TS: time.Now().UTC()}, *timeout); err != nil {
			return "", err
		}
		ack, err := ws.readUntil(root, v1.TypeHelloAck, *timeout)
		if err != nil {
			return "", err
		}
		var p v1.HelloAckPayload
		if err := json.Unmarshal(ack.Payload, &p); err != nil {
			return "", fmt.Errorf("hello_ack payload: %w", err)
		}
		if p.UserID != b.id {
			return "", fmt.Errorf("hello_ack user_id=%d want=%d", p.UserID, b.id)
		}
		return "subscription_id=" + p.SubscriptionID, nil
	})
	r.run("create chat", func() (string, error) {
		var out struct {
			ChatID int64 `json:"chat_id"`
		}
		body := map[string]any{"title": "smoke " + suffix, "users_ids": []int64{b.id}}
		if err := a.call(root, http.MethodPost, baseURL+"/chats", body, http.StatusCreated, &out, *timeout); err != nil {
			return "", err
		}
		chatID = out.ChatID
		env, err := ws.readUntil(root, v1.TypeChat, *timeout)
		if err != nil {
			return "", err
		}
		var ev struct {
			ChatID int64 `json:"chat_id"`
		}
		if err := json.Unmarshal(env.Payload, &ev); err != nil || ev.ChatID != chatID {
			return "", fmt.Errorf("chat frame mismatch: %s", env.Payload)
		}
		return fmt.Sprintf("chat_id=%d", chatID), nil
	})
	r.run("send message", func() (string, error) {
		var out struct {
			MessageID int64 `json:"message_id"`
		}
		path := fmt.Sprintf("%s/chats/%d/messages", baseURL, chatID)
		if err := a.call(root, http.MethodPost, path, map[string]string{"content": *text}, http.StatusCreated, &out, *timeout); err != nil {
			return "", err
		}
		msgID = out.MessageID
		env, err := ws.readUntil(root, v1.TypeMessage, *timeout)
		if err != nil {
			return "", err
		}
		var ev struct {
			Message struct {
				ID      int64  `json:"id"`
				Content string `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return "", fmt.Errorf("message frame: %w", err)
		}
		if ev.Message.ID != msgID || ev.Message.Content != *text {
			return "", fmt.Errorf("message frame mismatch: %s", env.Payload)
		}
		return fmt.Sprintf("message_id=%d", msgID), nil
	})
	r.run("history", func() (string, error) {
		var page struct {
			Messages []struct {
				ID int64 `json:"id"`
			} `json:"messages"`
			HasMore bool `json:"has_more"`
		}
		path := fmt.Sprintf("%s/chats/%d/messages?limit=10", baseURL, chatID)
		if err := b.call(root, http.MethodGet, path, nil, http.StatusOK, &page, *timeout); err != nil {
			return "", err
		}
		if len(page.Messages) != 1 || page.Messages[0].ID != msgID {
			return "", fmt.Errorf("unexpected history: %+v", page)
		}
		return fmt.Sprintf("messages=%d has_more=%t", len(page.Messages), page.HasMore), nil
	})
	r.run("ws ping", func() (string, error) {
		if err := ws.write(root, v1.Envelope{V: v1.Version, Type: v1.TypePing, ID: "b-ping", TS: time.Now().UTC()}, *timeout); err != nil {
			return "", err
		}
		pong, err := ws.readUntil(root, v1.TypePong, *timeout)
		if err != nil {
			return "", err
		}
		return "id=" + pong.ID, nil
	})
	r.run("remove chat", func() (string, error) {
		path := fmt.Sprintf("%s/chats/%d", baseURL, chatID)
		if err := a.call(root, http.MethodDelete, path, nil, http.StatusNoContent, nil, *timeout); err != nil {
			return "", err
		}
		return "", nil
	})

	if ws != nil {
		_ = ws.conn.Close(websocket.StatusNormalClosure, "bye")
	}
	r.render(os.Stdout)
	if r.failed() {
		os.Exit(1)
	}
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

// signIn registers name, falling back to login when it already exists.
func signIn(ctx context.Context, base, name, pass string, timeout time.Duration) (*account, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	acc := &account{name: name, http: &http.Client{Jar: jar}}

	var out struct {
		UserID int64 `json:"user_id"`
	}
	creds := map[string]string{"username": name, "password": pass}
	err = acc.call(ctx, http.MethodPost, base+"/users", creds, http.StatusCreated, &out, timeout)
	var se statusError
	if errors.As(err, &se) && se.got == http.StatusConflict {
		err = acc.call(ctx, http.MethodPost, base+"/users/login", creds, http.StatusCreated, &out, timeout)
	}
	if err != nil {
		return nil, err
	}
	acc.id = out.UserID
	return acc, nil
}

type statusError struct {
	got, want int
	body      string
}

func (e statusError) Error() string {
	return fmt.Sprintf("status %d want %d: %s", e.got, e.want, e.body)
}

func (acc *account) call(parent context.Context, method, target string, in any, want int, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := acc.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return statusError{got: res.StatusCode, want: want, body: strings.TrimSpace(string(b))}
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

func connect(parent context.Context, base, origin string, acc *account, timeout time.Duration) (*wsClient, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient:   acc.http,
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol")
		return nil, fmt.Errorf("subprotocol mismatch: got=%q want=%q", sp, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &wsClient{conn: conn, inbox: make(chan v1.Envelope, 64), errCh: make(chan error, 1)}
	go c.readLoop()
	return c, nil
}

func (c *wsClient) readLoop() {
	defer close(c.inbox)
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.fail(err)
			return
		}
		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.fail(fmt.Errorf("bad json: %w", err))
			return
		}
		if err := env.Validate(); err != nil {
			c.fail(fmt.Errorf("bad envelope: %w", err))
			return
		}
		select {
		case c.inbox <- env:
		default:
			c.fail(errors.New("inbox overflow: consumer too slow"))
			return
		}
	}
}

func (c *wsClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *wsClient) write(parent context.Context, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}

// readUntil skips frames of other types and fails on server error frames.
func (c *wsClient) readUntil(parent context.Context, want string, timeout time.Duration) (v1.Envelope, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return v1.Envelope{}, fmt.Errorf("timeout waiting for %q", want)
		case err := <-c.errCh:
			return v1.Envelope{}, fmt.Errorf("connection error waiting for %q: %w", want, err)
		case env, ok := <-c.inbox:
			if !ok {
				return v1.Envelope{}, fmt.Errorf("connection closed waiting for %q", want)
			}
			if env.Type == want {
				return env, nil
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				return v1.Envelope{}, fmt.Errorf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
		}
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
