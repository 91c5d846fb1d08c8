package reporter

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DingTalkRobot posts messages to a dingtalk custom robot webhook.
type DingTalkRobot interface {
	SendText(content string, atMobiles []string, isAtAll bool) error
	SendMarkdown(title, text string, atMobiles []string, isAtAll bool) error
	WithSecret(secret string) DingTalkRobot
}

const (
	msgTypeText     = "text"
	msgTypeMarkdown = "markdown"
)

type atParams struct {
	AtMobiles []string `json:"atMobiles,omitempty"`
	IsAtAll   bool     `json:"isAtAll,omitempty"`
}

type textMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
	At atParams `json:"at"`
}

type markdownMessage struct {
	MsgType  string `json:"msgtype"`
	Markdown struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	} `json:"markdown"`
	At atParams `json:"at"`
}

type dingTalkRobot struct {
	webHook string
	secret  string
	client  *http.Client
}

// NewDingTalkRobot returns a robot bound to webHook.
func NewDingTalkRobot(webHook string) DingTalkRobot {
	return &dingTalkRobot{webHook: webHook, client: &http.Client{Timeout: 10 * time.Second}}
}

// WithSecret enables request signing.
func (r *dingTalkRobot) WithSecret(secret string) DingTalkRobot {
	r.secret = secret
	return r
}

func (r *dingTalkRobot) SendText(content string, atMobiles []string, isAtAll bool) error {
	msg := textMessage{MsgType: msgTypeText, At: atParams{AtMobiles: atMobiles, IsAtAll: isAtAll}}
	msg.Text.Content = content
	return r.send(&msg)
}

func (r *dingTalkRobot) SendMarkdown(title, text string, atMobiles []string, isAtAll bool) error {
	msg := markdownMessage{MsgType: msgTypeMarkdown, At: atParams{AtMobiles: atMobiles, IsAtAll: isAtAll}}
	msg.Markdown.Title = title
	msg.Markdown.Text = text
	return r.send(&msg)
}

type dingResponse struct {
	Errcode int    `json:"errcode"`
	Errmsg  string `json:"errmsg"`
}

func (r *dingTalkRobot) send(msg interface{}) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	webURL := r.webHook
	if r.secret != "" {
		webURL += signedQuery(r.secret, time.Now())
	}
	resp, err := r.client.Post(webURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var dr dingResponse
	if err := json.Unmarshal(data, &dr); err != nil {
		return err
	}
	if dr.Errcode != 0 {
		return fmt.Errorf("dingtalk send failed: %v", dr.Errmsg)
	}
	return nil
}

func signedQuery(secret string, now time.Time) string {
	ts := fmt.Sprintf("%d", now.UnixNano()/1e6)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts + "\n" + secret))
	sign := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("&timestamp=%s&sign=%s", ts, url.QueryEscape(sign))
}
