package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/edgard/slackarchive/internal/errors"
	"github.com/edgard/slackarchive/internal/ingest"
)

const (
	slackTimestampHeader = "X-Slack-Request-Timestamp"
	slackSignatureHeader = "X-Slack-Signature"
	slackSignatureScheme = "v0"

	maxEventBody = 1 << 20
)

var errBadSignature = apperrors.NewValidationError("invalid slack signature", nil)

func (s *Server) slackEvents(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError("failed to read request body", err))
		return
	}

	if s.slack.SigningSecret != "" {
		err := verifySlackSignature(s.slack.SigningSecret, r.Header, body, time.Now(), s.slack.MaxClockSkew)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected slack event")
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: apperrors.Code(err)})
			return
		}
	}

	env, err := ingest.ParseEnvelope(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch env.Type {
	case ingest.EnvelopeURLVerification:
		writeJSON(w, http.StatusOK, map[string]string{"challenge": env.Challenge})
		return

	case ingest.EnvelopeEventCallback:
		events, err := ingest.DecodeSlackEvent(env.Event)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		for _, ev := range events {
			if err := s.live.Apply(r.Context(), ingest.SlackSource, ev); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		log.Debug().Str("event_id", env.EventID).Int("events", len(events)).Msg("Applied slack event")

	default:
		log.Debug().Str("type", env.Type).Msg("Ignoring slack envelope")
	}
	w.WriteHeader(http.StatusOK)
}

// verifySlackSignature checks X-Slack-Signature, the hex HMAC-SHA256 of
// "v0:<timestamp>:<body>" keyed with the signing secret. Requests whose
// timestamp is further than skew from now are rejected as replays.
func verifySlackSignature(secret string, h http.Header, body []byte, now time.Time, skew time.Duration) error {
	tsHeader := h.Get(slackTimestampHeader)
	sig := h.Get(slackSignatureHeader)
	if tsHeader == "" || sig == "" {
		return apperrors.NewValidationError("missing slack signature headers", nil)
	}

	sent, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return apperrors.NewValidationError("malformed slack request timestamp", err)
	}
	if math.Abs(now.Sub(time.Unix(sent, 0)).Seconds()) > skew.Seconds() {
		return apperrors.NewValidationError(fmt.Sprintf("slack request timestamp %d outside allowed skew", sent), nil)
	}

	if !hmac.Equal([]byte(sig), []byte(signSlackRequest(secret, tsHeader, body))) {
		return errBadSignature
	}
	return nil
}

func signSlackRequest(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(slackSignatureScheme + ":" + ts + ":"))
	mac.Write(body)
	return slackSignatureScheme + "=" + hex.EncodeToString(mac.Sum(nil))
}
