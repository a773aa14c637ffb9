package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/itswincer/inkstone/app/tasks"
)

const (
	headerEvent     = "X-GitHub-Event"
	headerSignature = "X-Hub-Signature-256"

	maxWebhookBody = 1 << 20
)

// GithubWebhook accepts GitHub push notifications. A successful
// check_run means the site was redeployed, so the feed and the valid
// paths are refreshed immediately instead of waiting for the next tick.
func (h *Handler) GithubWebhook(c *gin.Context) {
	if h.webhookSecret == "" {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "webhook secret not configured"})
		return
	}

	event := strings.TrimSpace(c.GetHeader(headerEvent))
	if event == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing event header"})
		return
	}
	signature := strings.TrimSpace(c.GetHeader(headerSignature))
	if signature == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "missing signature header"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		return
	}

	if !verifySignature(h.webhookSecret, body, signature) {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
		return
	}

	if strings.EqualFold(event, "ping") {
		c.Status(http.StatusNoContent)
		return
	}
	if !strings.EqualFold(event, "check_run") {
		c.Status(http.StatusAccepted)
		return
	}

	var payload checkRunPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
		return
	}

	if shouldTrigger(payload) && h.scheduler != nil {
		slog.Info("Webhook triggered content refresh")
		h.scheduler.Trigger(tasks.TaskFeedRefresh, tasks.TaskValidPathsRefresh)
	}

	c.Status(http.StatusAccepted)
}

func verifySignature(secret string, body []byte, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func shouldTrigger(payload checkRunPayload) bool {
	return payload.Action == "completed" &&
		payload.CheckRun != nil &&
		payload.CheckRun.Status == "completed" &&
		payload.CheckRun.Conclusion == "success"
}
