// Package obsws implements the subset of the obs-websocket v5 protocol that
// scenewatch needs: the Hello/Identify handshake with challenge
// authentication, and the GetCurrentProgramScene / SetCurrentProgramScene
// requests.
package obsws

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scenewatch/scenewatch/internal/logger"
)

const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opEvent           = 5
	opRequest         = 6
	opRequestResponse = 7
)

const (
	subprotocol    = "obswebsocket.json"
	rpcVersion     = 1
	defaultTimeout = 10 * time.Second
)

type message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	RPCVersion     int `json:"rpcVersion"`
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type identifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

type requestEnvelope struct {
	RequestType string      `json:"requestType"`
	RequestID   string      `json:"requestId"`
	RequestData interface{} `json:"requestData,omitempty"`
}

type responseEnvelope struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// Client holds one authenticated session to the endpoint for the process
// lifetime. Requests are serialized; the scheduler issues at most one call
// at a time anyway.
type Client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	nextID uint64
}

// Dial connects to the endpoint, performs the Identify handshake, and
// returns an authenticated client. password may be empty when the server
// does not require authentication.
func Dial(ctx context.Context, url, password string) (*Client, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{subprotocol},
		HandshakeTimeout: defaultTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &Client{conn: conn}
	if err := c.identify(ctx, password); err != nil {
		conn.Close()
		return nil, err
	}

	logger.WithComponent("obsws").Info().
		Str("url", url).
		Msg("Connected to scene endpoint")
	return c, nil
}

// Close tears down the session.
func (c *Client) Close() error {
	return c.conn.Close()
}

// identify runs the Hello -> Identify -> Identified exchange.
func (c *Client) identify(ctx context.Context, password string) error {
	var hello helloData
	msg, err := c.read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read Hello: %w", err)
	}
	if msg.Op != opHello {
		return fmt.Errorf("expected Hello (op %d), got op %d", opHello, msg.Op)
	}
	if err := json.Unmarshal(msg.D, &hello); err != nil {
		return fmt.Errorf("failed to parse Hello: %w", err)
	}

	identify := identifyData{RPCVersion: rpcVersion}
	if hello.Authentication != nil {
		if password == "" {
			return fmt.Errorf("endpoint requires authentication but no password is configured")
		}
		identify.Authentication = authResponse(password,
			hello.Authentication.Salt, hello.Authentication.Challenge)
	}
	if err := c.write(ctx, opIdentify, identify); err != nil {
		return fmt.Errorf("failed to send Identify: %w", err)
	}

	msg, err = c.read(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if msg.Op != opIdentified {
		return fmt.Errorf("expected Identified (op %d), got op %d", opIdentified, msg.Op)
	}
	return nil
}

// authResponse computes the challenge response:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	response := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(response[:])
}

// CurrentScene queries the endpoint's active program scene.
func (c *Client) CurrentScene(ctx context.Context) (string, error) {
	data, err := c.call(ctx, "GetCurrentProgramScene", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		CurrentProgramSceneName string `json:"currentProgramSceneName"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to parse GetCurrentProgramScene response: %w", err)
	}
	return resp.CurrentProgramSceneName, nil
}

// SetCurrentScene activates the named scene.
func (c *Client) SetCurrentScene(ctx context.Context, scene string) error {
	_, err := c.call(ctx, "SetCurrentProgramScene", map[string]string{
		"sceneName": scene,
	})
	return err
}

// call issues one request and waits for its response, skipping any event
// frames that arrive in between. Cancellation of ctx unblocks an in-flight
// read promptly.
func (c *Client) call(ctx context.Context, requestType string, payload interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)

	if err := c.write(ctx, opRequest, requestEnvelope{
		RequestType: requestType,
		RequestID:   id,
		RequestData: payload,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", requestType, err)
	}

	for {
		msg, err := c.read(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", requestType, err)
		}
		if msg.Op != opRequestResponse {
			continue
		}
		var resp responseEnvelope
		if err := json.Unmarshal(msg.D, &resp); err != nil {
			return nil, fmt.Errorf("%s: failed to parse response: %w", requestType, err)
		}
		if resp.RequestID != id {
			continue
		}
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("%s: request failed (code %d): %s",
				requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		return resp.ResponseData, nil
	}
}

func (c *Client) write(ctx context.Context, op int, data interface{}) error {
	d, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(deadlineFrom(ctx))
	return c.conn.WriteJSON(message{Op: op, D: d})
}

// read blocks on the next frame, unblocking early if ctx is cancelled.
func (c *Client) read(ctx context.Context) (*message, error) {
	c.conn.SetReadDeadline(deadlineFrom(ctx))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Force the blocked read to return.
			c.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	var msg message
	if err := c.conn.ReadJSON(&msg); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &msg, nil
}

func deadlineFrom(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(defaultTimeout)
}
